package auth

import (
	"testing"
	"time"

	"github.com/examsync/core/internal/apperr"
	"github.com/examsync/core/internal/model"
)

func TestStaffAuthRoundTrip(t *testing.T) {
	a := NewStaffAuth("test-secret", time.Hour, 12)

	hash, err := a.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := a.CheckPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("CheckPassword: %v", err)
	}
	if err := a.CheckPassword(hash, "wrong password"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestStaffAuthTokenSignAndVerify(t *testing.T) {
	a := NewStaffAuth("test-secret", time.Hour, 12)

	token, err := a.SignToken("staff-1", model.RoleAdmin)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	claims, err := a.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.StaffID != "staff-1" || claims.Role != string(model.RoleAdmin) {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestStaffAuthRejectsExpiredToken(t *testing.T) {
	a := NewStaffAuth("test-secret", -time.Minute, 12)
	token, err := a.SignToken("staff-1", model.RoleStaff)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	_, err = a.VerifyToken(token)
	if err == nil {
		t.Fatal("expected error for expired token")
	}
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.AuthInvalid {
		t.Fatalf("expected AuthInvalid, got %v", err)
	}
}

func TestStaffAuthRejectsWrongSecret(t *testing.T) {
	a := NewStaffAuth("secret-a", time.Hour, 12)
	token, err := a.SignToken("staff-1", model.RoleStaff)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	b := NewStaffAuth("secret-b", time.Hour, 12)
	if _, err := b.VerifyToken(token); err == nil {
		t.Fatal("expected signature mismatch error")
	}
}

func TestBcryptCostFloorsAt12(t *testing.T) {
	a := NewStaffAuth("secret", time.Hour, 4)
	if a.bcryptCost != 12 {
		t.Errorf("bcryptCost = %d, want floor of 12", a.bcryptCost)
	}
}
