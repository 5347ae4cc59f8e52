package punch

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

// DefaultResolverWorkers bounds the parallel hash comparisons per resolution
const DefaultResolverWorkers = 8

// Resolver identifies the staff member a raw PIN belongs to. PINs exist only
// as bcrypt hashes, so there is no keyed lookup: the resolver verifies the
// PIN against every candidate hash, fanned out over a bounded worker pool
// because each comparison costs a full bcrypt round.
type Resolver struct {
	workers int
	logger  *slog.Logger
}

// NewResolver creates a Resolver with the given worker pool size.
func NewResolver(workers int, logger *slog.Logger) *Resolver {
	if workers <= 0 {
		workers = DefaultResolverWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{workers: workers, logger: logger}
}

// Match runs the parallel fan-out and returns every candidate whose hash
// verifies against the PIN. The fan-out always covers the whole set: exiting
// on the first match would miss duplicate-PIN configuration errors and let
// response timing reveal where in the pool a match sits.
func (r *Resolver) Match(ctx context.Context, pin string, candidates []repository.StaffCredential) []repository.StaffCredential {
	if len(candidates) == 0 {
		return nil
	}

	workers := r.workers
	if workers > len(candidates) {
		workers = len(candidates)
	}

	jobs := make(chan repository.StaffCredential)
	matches := make(chan repository.StaffCredential, len(candidates))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cred := range jobs {
				if ctx.Err() != nil {
					continue // drain remaining jobs without burning bcrypt cycles
				}
				if bcrypt.CompareHashAndPassword([]byte(cred.PinHash), []byte(pin)) == nil {
					matches <- cred
				}
			}
		}()
	}

	for _, cred := range candidates {
		jobs <- cred
	}
	close(jobs)
	wg.Wait()
	close(matches)

	var matched []repository.StaffCredential
	for cred := range matches {
		matched = append(matched, cred)
	}
	return matched
}

// Resolve identifies exactly one credential for the PIN among the candidates.
// Zero matches yields ErrInvalidPin. More than one match means two staff hold
// the same PIN, which resolution cannot disambiguate; the resolver logs the
// collision and fails closed with ErrPinConflict.
func (r *Resolver) Resolve(ctx context.Context, pin string, candidates []repository.StaffCredential) (*repository.StaffCredential, error) {
	matched := r.Match(ctx, pin, candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch len(matched) {
	case 1:
		return &matched[0], nil
	case 0:
		return nil, ErrInvalidPin
	default:
		ids := make([]int64, len(matched))
		for i, cred := range matched {
			ids[i] = cred.ID
		}
		r.logger.Error("PIN matches multiple credentials, failing closed",
			"credential_ids", ids,
			"match_count", len(matched),
		)
		return nil, ErrPinConflict
	}
}
