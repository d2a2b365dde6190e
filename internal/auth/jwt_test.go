package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "coursepulse-test-secret"

func TestGenerateAccessToken_CarriesTenantClaims(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateAccessToken("crt_1", "biz_1", "pro")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "crt_1" {
		t.Errorf("subject = %q, want crt_1", claims.Subject)
	}
	if claims.CompanyID != "biz_1" {
		t.Errorf("company = %q, want biz_1", claims.CompanyID)
	}
	if claims.Plan != "pro" {
		t.Errorf("plan = %q, want pro", claims.Plan)
	}
	if claims.Type != TokenTypeAccess {
		t.Errorf("type = %q, want %q", claims.Type, TokenTypeAccess)
	}

	expiry := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if expiry != AccessTokenExpiry {
		t.Errorf("expiry = %v, want %v", expiry, AccessTokenExpiry)
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateRefreshToken("crt_1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Type != TokenTypeRefresh {
		t.Errorf("type = %q, want %q", claims.Type, TokenTypeRefresh)
	}
	if claims.CompanyID != "" || claims.Plan != "" {
		t.Error("refresh tokens must not carry tenant claims")
	}
	if expiry := claims.ExpiresAt.Sub(claims.IssuedAt.Time); expiry != RefreshTokenExpiry {
		t.Errorf("expiry = %v, want %v", expiry, RefreshTokenExpiry)
	}
}

func TestGenerate_EmptyCreatorRejected(t *testing.T) {
	svc := NewJWTService(testSecret)

	if _, err := svc.GenerateAccessToken("", "biz_1", "basic"); !errors.Is(err, ErrEmptyCreatorID) {
		t.Errorf("access token: got %v, want ErrEmptyCreatorID", err)
	}
	if _, err := svc.GenerateRefreshToken(""); !errors.Is(err, ErrEmptyCreatorID) {
		t.Errorf("refresh token: got %v, want ErrEmptyCreatorID", err)
	}
}

func TestValidateToken_Failures(t *testing.T) {
	svc := NewJWTService(testSecret)
	good, err := svc.GenerateAccessToken("crt_1", "biz_1", "basic")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"empty", "", ErrInvalidToken},
		{"wrong secret", mustSign(t, "some-other-secret", time.Now().Add(time.Hour)), ErrInvalidToken},
		{"tampered payload", tamper(good), ErrInvalidToken},
		{"expired", mustSign(t, testSecret, time.Now().Add(-time.Hour)), ErrExpiredToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// mustSign signs an access-style token directly so tests control the
// secret and expiry.
func mustSign(t *testing.T, secret string, expiresAt time.Time) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "crt_1",
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-AccessTokenExpiry)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		CompanyID: "biz_1",
		Type:      TokenTypeAccess,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

// tamper swaps the payload segment so the signature no longer matches.
func tamper(token string) string {
	parts := strings.Split(token, ".")
	parts[1] = "eyJzdWIiOiJjcnRfZXZpbCJ9"
	return strings.Join(parts, ".")
}

func TestValidateToken_RejectsUnexpectedAlgorithm(t *testing.T) {
	svc := NewJWTService(testSecret)

	// alg=none tokens must never validate, signed or not.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "crt_1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: TokenTypeAccess,
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken", err)
	}
}

func TestValidateToken_LeewayToleratesClockSkew(t *testing.T) {
	svc := NewJWTServiceWithLeeway(testSecret, time.Minute)

	// Expired 30s ago but within the 1m leeway.
	token := mustSign(t, testSecret, time.Now().Add(-30*time.Second))
	if _, err := svc.ValidateToken(token); err != nil {
		t.Errorf("token inside leeway rejected: %v", err)
	}

	strict := NewJWTServiceWithLeeway(testSecret, 0)
	if _, err := strict.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("got %v, want ErrExpiredToken with zero leeway", err)
	}
}

func TestRotation_PreviousSecretStillValidates(t *testing.T) {
	oldSvc := NewJWTService("old-secret")
	issued, err := oldSvc.GenerateAccessToken("crt_1", "biz_1", "pro")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	rotated := NewJWTServiceWithRotation("new-secret", "old-secret")

	// Tokens issued before the rotation keep working until they expire.
	claims, err := rotated.ValidateToken(issued)
	if err != nil {
		t.Fatalf("pre-rotation token rejected: %v", err)
	}
	if claims.CompanyID != "biz_1" {
		t.Errorf("company = %q, want biz_1", claims.CompanyID)
	}

	// New tokens are signed with the current secret only.
	fresh, err := rotated.GenerateAccessToken("crt_2", "biz_2", "basic")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := oldSvc.ValidateToken(fresh); !errors.Is(err, ErrInvalidToken) {
		t.Error("token signed with the new secret validated against the old one")
	}
}

func TestRotation_CompletedRotationDropsOldSecret(t *testing.T) {
	oldSvc := NewJWTService("old-secret")
	issued, err := oldSvc.GenerateAccessToken("crt_1", "biz_1", "pro")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Empty previous secret means rotation is finished.
	done := NewJWTServiceWithRotation("new-secret", "")
	if _, err := done.ValidateToken(issued); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken after rotation completes", err)
	}
}

func TestRotation_ExpiredOldTokenReportsExpiry(t *testing.T) {
	rotated := NewJWTServiceWithRotationAndLeeway("new-secret", "old-secret", 0)

	expired := mustSign(t, "old-secret", time.Now().Add(-time.Hour))
	if _, err := rotated.ValidateToken(expired); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("got %v, want ErrExpiredToken", err)
	}
}
