package admin

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-0123456789abcdef0123456789"

func newTestTokenService() *TokenService {
	return NewTokenService(TokenServiceConfig{
		Secret:      testSecret,
		TokenExpiry: 15 * time.Minute,
		Issuer:      "timeclock-test",
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newTestTokenService()

	token, err := svc.GenerateToken("operator")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Username != "operator" {
		t.Errorf("Username = %q, want %q", claims.Username, "operator")
	}
	if claims.Subject != "operator" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "operator")
	}
	if claims.Issuer != "timeclock-test" {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, "timeclock-test")
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := newTestTokenService()
	other := NewTokenService(TokenServiceConfig{
		Secret:      "a-completely-different-secret-value",
		TokenExpiry: 15 * time.Minute,
		Issuer:      "timeclock-test",
	})

	token, err := svc.GenerateToken("operator")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with another secret must not validate")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	svc := newTestTokenService()

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	if _, err := svc.ValidateToken(signed); err == nil {
		t.Error("expired token must not validate")
	}
}

func TestValidateToken_RejectsUnsignedAlgorithm(t *testing.T) {
	svc := newTestTokenService()

	// alg=none with a forged payload must be refused outright
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Username: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("unsigned token must not validate")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := newTestTokenService()

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := svc.ValidateToken(token); err == nil {
			t.Errorf("ValidateToken(%q) succeeded, want error", token)
		}
	}
}

func TestTokenExpiryDefault(t *testing.T) {
	svc := NewTokenService(TokenServiceConfig{Secret: testSecret})
	if got := svc.GetTokenExpiry(); got != 8*time.Hour {
		t.Errorf("default expiry = %v, want 8h", got)
	}
}
