// Package auth implements staff token issuance/verification and the
// symmetric encryption of student LMS tokens at rest.
//
// StaffAuth follows an AuthService shape
// (SignToken/VerifyToken/HashPassword/CheckPassword over HS256 JWTs and
// bcrypt), dropping the multi-tenant tenant_id claim this domain has no
// use for and adding staff_id/role in its place.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/model"
)

// StaffClaims are the JWT claims carried by a staff bearer token.
type StaffClaims struct {
	jwt.RegisteredClaims
	StaffID string `json:"staff_id"`
	Role    string `json:"role"`
}

// StaffAuth signs/verifies staff bearer tokens and hashes/checks staff
// passwords.
type StaffAuth struct {
	secret     []byte
	expiry     time.Duration
	bcryptCost int
}

// NewStaffAuth builds a StaffAuth. bcryptCost must be at least 12.
func NewStaffAuth(secret string, expiry time.Duration, bcryptCost int) *StaffAuth {
	if bcryptCost < 12 {
		bcryptCost = 12
	}
	return &StaffAuth{secret: []byte(secret), expiry: expiry, bcryptCost: bcryptCost}
}

// Expiry returns the configured staff token lifetime, for callers that
// need to report an expires_at alongside a freshly signed token.
func (s *StaffAuth) Expiry() time.Duration {
	return s.expiry
}

// HashPassword returns a bcrypt hash for a plaintext staff password.
func (s *StaffAuth) HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash staff password: %w", err)
	}
	return string(h), nil
}

// CheckPassword verifies a plaintext password against a bcrypt hash.
func (s *StaffAuth) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return apperr.New(apperr.AuthInvalid, "invalid username or password")
	}
	return nil
}

// SignToken issues a signed bearer token carrying (staff_id, role,
// issued_at, expires_at).
func (s *StaffAuth) SignToken(staffID string, role model.StaffRole) (string, error) {
	now := time.Now().UTC()
	claims := StaffClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			Issuer:    "examsync-core",
		},
		StaffID: staffID,
		Role:    string(role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign staff token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a bearer token, rejecting on expiry,
// signature mismatch, or a missing staff_id/role claim. The
// unknown-staff-id case is checked by the caller against the staff
// repository, since that requires a database round trip this package
// does not perform.
func (s *StaffAuth) VerifyToken(tokenStr string) (*StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &StaffClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.AuthInvalid, "invalid or expired token", err)
	}

	claims, ok := token.Claims.(*StaffClaims)
	if !ok || !token.Valid {
		return nil, apperr.New(apperr.AuthInvalid, "invalid token claims")
	}
	if claims.StaffID == "" || claims.Role == "" {
		return nil, apperr.New(apperr.AuthInvalid, "token missing staff_id or role")
	}
	return claims, nil
}
