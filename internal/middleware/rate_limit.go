package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter implements a simple in-memory sliding window rate limiter
type RateLimiter struct {
	mu       sync.RWMutex
	requests map[string][]time.Time
	limit    int           // Max requests
	window   time.Duration // Time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	requests := rl.requests[key]

	var validRequests []time.Time
	for _, t := range requests {
		if t.After(windowStart) {
			validRequests = append(validRequests, t)
		}
	}

	if len(validRequests) >= rl.limit {
		rl.requests[key] = validRequests
		return false
	}

	validRequests = append(validRequests, now)
	rl.requests[key] = validRequests

	return true
}

// Remaining returns the number of remaining requests for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	requests := rl.requests[key]
	count := 0
	for _, t := range requests {
		if t.After(windowStart) {
			count++
		}
	}

	remaining := rl.limit - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset returns the time when the rate limit resets
func (rl *RateLimiter) Reset(key string) time.Time {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	requests := rl.requests[key]
	if len(requests) == 0 {
		return time.Now()
	}

	// Find the oldest request in the window
	oldest := requests[0]
	for _, t := range requests {
		if t.Before(oldest) {
			oldest = t
		}
	}

	return oldest.Add(rl.window)
}

// cleanup periodically removes old entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		windowStart := now.Add(-rl.window)

		for key, requests := range rl.requests {
			var validRequests []time.Time
			for _, t := range requests {
				if t.After(windowStart) {
					validRequests = append(validRequests, t)
				}
			}
			if len(validRequests) == 0 {
				delete(rl.requests, key)
			} else {
				rl.requests[key] = validRequests
			}
		}
		rl.mu.Unlock()
	}
}

// PunchRateLimiter limits punch submissions per terminal IP. A kiosk in
// normal use produces a punch every few seconds at worst; the limit only
// bites on runaway clients and PIN guessing scripts.
type PunchRateLimiter struct {
	limiter *RateLimiter
	limit   int
}

// NewPunchRateLimiter creates a rate limiter for the punch endpoint.
func NewPunchRateLimiter(limit int, window time.Duration) *PunchRateLimiter {
	return &PunchRateLimiter{
		limiter: NewRateLimiter(limit, window),
		limit:   limit,
	}
}

// RateLimitPunch creates middleware that rate limits punch requests by
// client IP. The rejection body uses the terminal's flat response shape,
// not the admin envelope.
func (rl *PunchRateLimiter) RateLimitPunch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)

		if !rl.limiter.Allow(key) {
			writePunchRateLimitError(w, rl.limiter.Reset(key))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.limiter.Remaining(key)))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.limiter.Reset(key).Unix(), 10))

		next.ServeHTTP(w, r)
	})
}

// LoginRateLimiter limits admin login attempts per client IP.
type LoginRateLimiter struct {
	limiter *RateLimiter
	limit   int
}

// NewLoginRateLimiter creates a rate limiter for the login endpoint.
// Limit: 10 attempts per IP per minute.
func NewLoginRateLimiter() *LoginRateLimiter {
	return &LoginRateLimiter{
		limiter: NewRateLimiter(10, time.Minute),
		limit:   10,
	}
}

// RateLimitLogin creates middleware that rate limits login requests by
// client IP, answering in the admin envelope.
func (rl *LoginRateLimiter) RateLimitLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)

		if !rl.limiter.Allow(key) {
			writeEnvelopeRateLimitError(w, rl.limiter.Reset(key))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.limiter.Remaining(key)))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.limiter.Reset(key).Unix(), 10))

		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the client address, preferring proxy headers. Terminals
// sit behind the venue's reverse proxy in every real deployment.
func clientIP(r *http.Request) string {
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop is the original client
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writePunchRateLimitError writes a 429 in the terminal's flat shape.
func writePunchRateLimitError(w http.ResponseWriter, resetTime time.Time) {
	retryAfter := resetTime.Unix() - time.Now().Unix()
	if retryAfter < 0 {
		retryAfter = 0
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": "Too many attempts. Please wait a moment and try again.",
	})
}

// writeEnvelopeRateLimitError writes a 429 in the admin envelope.
func writeEnvelopeRateLimitError(w http.ResponseWriter, resetTime time.Time) {
	retryAfter := resetTime.Unix() - time.Now().Unix()
	if retryAfter < 0 {
		retryAfter = 0
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":    "TOO_MANY_REQUESTS",
			"message": "Rate limit exceeded. Please try again later.",
			"details": map[string]interface{}{
				"retry_after": retryAfter,
			},
		},
		"timestamp": time.Now().UTC(),
	})
}
