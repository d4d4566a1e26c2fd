package security

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAdminTokenRoundTrip(t *testing.T) {
	t.Parallel()

	token, err := GenerateAdminToken(testSecret, 3, "root", "sess-1", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseAdminToken(testSecret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.AdminID != 3 || claims.Username != "root" || claims.ID != "sess-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err = ParseAdminToken("another-secret-another-secret-xx", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: expected ErrInvalidToken, got %v", err)
	}
	if _, err = ParseClinicToken(testSecret, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("admin token must not parse as clinic token, got %v", err)
	}
}

func TestClinicTokenExpiry(t *testing.T) {
	t.Parallel()

	token, err := GenerateClinicToken(testSecret, 9, "CAV", "cavite", "sess-2", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err = ParseClinicToken(testSecret, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	live, _ := GenerateClinicToken(testSecret, 9, "CAV", "cavite", "sess-3", time.Hour)
	claims, err := ParseClinicToken(testSecret, live)
	if err != nil || claims.ClinicID != 9 || claims.ClinicCode != "CAV" || claims.ID != "sess-3" {
		t.Fatalf("unexpected claims %+v (%v)", claims, err)
	}
}

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	if err := ValidatePassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	if err := ValidatePassword(strings.Repeat("x", 73)); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected too long password, got %v", err)
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "correct horse") || CheckPassword(hash, "wrong horse") {
		t.Fatalf("password check mismatch")
	}
}
