package admin

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// Service errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotConfigured      = errors.New("operator account not configured")
)

// Error codes for API responses
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAuthTokenInvalid   = "AUTH_TOKEN_INVALID"
)

// Service authenticates the operator account. The account lives in
// configuration as a username plus bcrypt password hash; there is no user
// table to enumerate.
type Service struct {
	username     string
	passwordHash string
	tokens       *TokenService
	logger       *slog.Logger
}

// ServiceConfig holds the dependencies for creating an admin Service
type ServiceConfig struct {
	Username     string
	PasswordHash string
	Tokens       *TokenService
	Logger       *slog.Logger
}

// NewService creates a new admin Service instance
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Username == "" || cfg.PasswordHash == "" {
		return nil, ErrNotConfigured
	}
	if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH is not a bcrypt hash: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		tokens:       cfg.Tokens,
		logger:       logger,
	}, nil
}

// LoginResult carries a freshly issued operator token
type LoginResult struct {
	Token     string
	ExpiresIn int64
}

// Login verifies the operator credentials and issues a token. The password
// hash is always compared, even on a username mismatch, so response timing
// does not reveal which half was wrong.
func (s *Service) Login(username, password string) (*LoginResult, error) {
	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passwordErr := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password))

	if !usernameOK || passwordErr != nil {
		s.logger.Warn("operator login rejected", "username", username)
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(s.username)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	s.logger.Info("operator logged in", "username", s.username)

	return &LoginResult{
		Token:     token,
		ExpiresIn: int64(s.tokens.GetTokenExpiry().Seconds()),
	}, nil
}

// ValidateToken validates an operator token, for middleware use
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return s.tokens.ValidateToken(tokenString)
}
