package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimsFor(id uuid.UUID, exp time.Time) StaffClaims {
	return StaffClaims{
		Name: "Dr. Tan",
		Role: "doctor",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			Issuer:    "clinic-idp",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestValidateToken(t *testing.T) {
	svc := NewJWTService(Config{Secret: "s3cret", Issuer: "clinic-idp"})
	staffID := uuid.New()

	token, err := svc.Sign(claimsFor(staffID, time.Now().Add(time.Hour)))
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	got, err := claims.StaffID()
	require.NoError(t, err)
	assert.Equal(t, staffID, got)
	assert.Equal(t, "doctor", claims.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewJWTService(Config{Secret: "s3cret", Issuer: "clinic-idp"})
	other := NewJWTService(Config{Secret: "different"})

	expired, _ := svc.Sign(claimsFor(uuid.New(), time.Now().Add(-time.Hour)))
	forged, _ := other.Sign(claimsFor(uuid.New(), time.Now().Add(time.Hour)))
	badSubject := claimsFor(uuid.New(), time.Now().Add(time.Hour))
	badSubject.Subject = "not-a-uuid"
	badSub, _ := svc.Sign(badSubject)
	noExp := claimsFor(uuid.New(), time.Now())
	noExp.ExpiresAt = nil
	noExpiry, _ := svc.Sign(noExp)

	for name, token := range map[string]string{
		"expired":     expired,
		"forged":      forged,
		"bad subject": badSub,
		"no expiry":   noExpiry,
		"garbage":     "abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
