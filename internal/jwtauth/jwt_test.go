package jwtauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veritas/pkg/domain-errors"
)

const testIssuer = "https://veritas.local"

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService("test-signing-key", testIssuer, time.Hour)

	token, err := svc.GenerateAccessToken("u1", RoleUser, "")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, RoleUser, claims.Role)
	assert.Empty(t, claims.AppID)
	assert.Equal(t, testIssuer, claims.Issuer)
}

func TestGenerateAccessTokenValidation(t *testing.T) {
	svc := NewService("test-signing-key", testIssuer, time.Hour)

	_, err := svc.GenerateAccessToken("", RoleUser, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.GenerateAccessToken("u1", Role("admin"), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestValidateTokenRejections(t *testing.T) {
	svc := NewService("test-signing-key", testIssuer, time.Hour)

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-jwt")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := NewService("another-key", testIssuer, time.Hour)
		token, err := other.GenerateAccessToken("u1", RoleUser, "")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("expired token", func(t *testing.T) {
		shortLived := NewService("test-signing-key", testIssuer, -time.Minute)
		token, err := shortLived.GenerateAccessToken("u1", RoleUser, "")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewService("test-signing-key", "https://somewhere-else", time.Hour)
		token, err := other.GenerateAccessToken("u1", RoleUser, "")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestAppTokenCarriesAppID(t *testing.T) {
	svc := NewService("test-signing-key", testIssuer, time.Hour)

	token, err := svc.GenerateAccessToken("app-demo-v1", RoleApp, "app-demo-v1")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, RoleApp, claims.Role)
	assert.Equal(t, "app-demo-v1", claims.AppID)
}
