package service

import (
	"testing"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RoundTrip(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})

	token, err := svc.GenerateToken(100, RoleStudent)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, 100, claims.UserID)
	assert.Equal(t, RoleStudent, claims.Role)
	assert.Equal(t, "100", claims.Subject)
}

func TestAuthService_Rejects(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
	other := NewAuthService(&config.Config{JWTSecret: "other-secret", JWTExpiry: time.Hour})
	expired := NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: -time.Minute})

	foreign, err := other.GenerateToken(100, RoleStudent)
	require.NoError(t, err)
	stale, err := expired.GenerateToken(100, RoleStudent)
	require.NoError(t, err)
	anonymous, err := svc.GenerateToken(0, RoleTeacher)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong secret": foreign,
		"expired":      stale,
		"no user id":   anonymous,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.Error(t, err)
		})
	}

	_, err = svc.GenerateToken(1, "ADMIN")
	assert.Error(t, err)
}
