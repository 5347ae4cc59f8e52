package punch

import (
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

const (
	// PinLength is the exact number of digits in a staff PIN
	PinLength = 6
	// DefaultBcryptCost is the default cost factor for PIN hashing
	DefaultBcryptCost = 12
)

// pinRegex matches exactly six ASCII digits
var pinRegex = regexp.MustCompile(`^[0-9]{6}$`)

// IsValidPinFormat reports whether the PIN is exactly six digits.
func IsValidPinFormat(pin string) bool {
	return pinRegex.MatchString(pin)
}

// PinValidator handles PIN hashing and verification
type PinValidator struct {
	cost int
}

// NewPinValidator creates a PinValidator with the given bcrypt cost.
// Costs outside bcrypt's supported range fall back to DefaultBcryptCost.
func NewPinValidator(cost int) *PinValidator {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PinValidator{cost: cost}
}

// HashPin creates a bcrypt hash of the PIN
func (v *PinValidator) HashPin(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), v.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPin compares a raw PIN with its bcrypt hash.
// Returns nil if they match, error otherwise.
func (v *PinValidator) VerifyPin(pin, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
}
