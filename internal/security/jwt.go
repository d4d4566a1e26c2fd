package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// Token audiences keep admin and clinic tokens from being swapped.
const (
	audienceAdmin  = "cardhub-admin"
	audienceClinic = "cardhub-clinic"
)

// AdminClaims defines JWT claims for administrators. RegisteredClaims.ID carries the session id.
type AdminClaims struct {
	AdminID  uint64 `json:"admin_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ClinicClaims defines JWT claims for clinic accounts. RegisteredClaims.ID carries the session id.
type ClinicClaims struct {
	ClinicID   uint64 `json:"clinic_id"`
	ClinicCode string `json:"clinic_code"`
	Username   string `json:"username"`
	jwt.RegisteredClaims
}

func registered(sessionID, audience string, expiry time.Duration) jwt.RegisteredClaims {
	now := time.Now().UTC()
	return jwt.RegisteredClaims{
		ID:        sessionID,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
	}
}

// GenerateAdminToken signs an admin JWT bound to sessionID.
func GenerateAdminToken(secret string, adminID uint64, username, sessionID string, expiry time.Duration) (string, error) {
	claims := AdminClaims{
		AdminID:          adminID,
		Username:         username,
		RegisteredClaims: registered(sessionID, audienceAdmin, expiry),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAdminToken validates an admin JWT and returns its claims.
func ParseAdminToken(secret string, tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if err := parse(secret, tokenString, audienceAdmin, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// GenerateClinicToken signs a clinic JWT bound to sessionID.
func GenerateClinicToken(secret string, clinicID uint64, clinicCode, username, sessionID string, expiry time.Duration) (string, error) {
	claims := ClinicClaims{
		ClinicID:         clinicID,
		ClinicCode:       clinicCode,
		Username:         username,
		RegisteredClaims: registered(sessionID, audienceClinic, expiry),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseClinicToken validates a clinic JWT and returns its claims.
func ParseClinicToken(secret string, tokenString string) (*ClinicClaims, error) {
	claims := &ClinicClaims{}
	if err := parse(secret, tokenString, audienceClinic, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func parse(secret, tokenString, audience string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithAudience(audience), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
