package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	cfg := NewTokenConfig("s3cret", time.Hour)
	require.NotNil(t, cfg)
	assert.Len(t, cfg.Secret, 32)

	token, err := GenerateToken("unity-client", cfg)
	require.NoError(t, err)

	parsed, err := ParseToken(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "unity-client", parsed.ClientID)
	assert.True(t, parsed.ExpiresAt.After(parsed.IssuedAt))
}

func TestNewTokenConfig(t *testing.T) {
	assert.Nil(t, NewTokenConfig("", time.Hour))
	assert.Equal(t, DefaultExpiration, NewTokenConfig("x", 0).Expiration)
}

func TestParseTokenRejects(t *testing.T) {
	cfg := NewTokenConfig("s3cret", time.Hour)
	token, err := GenerateToken("client", cfg)
	require.NoError(t, err)

	_, err = ParseToken(token, NewTokenConfig("other", time.Hour))
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = ParseToken("no-dot", cfg)
	assert.ErrorIs(t, err, jwt.ErrTokenMalformed)

	_, err = ParseToken(token, nil)
	assert.Error(t, err)

	expired := &TokenConfig{Secret: cfg.Secret, Expiration: -time.Minute}
	old, err := GenerateToken("client", expired)
	require.NoError(t, err)
	_, err = ParseToken(old, cfg)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "client",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(cfg.Secret)
	require.NoError(t, err)
	_, err = ParseToken(foreign, cfg)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestGenerateTokenErrors(t *testing.T) {
	_, err := GenerateToken("client", nil)
	assert.Error(t, err)

	_, err = GenerateToken("", NewTokenConfig("x", 0))
	assert.Error(t, err)
}

func TestGenerateSecureKey(t *testing.T) {
	key, err := GenerateSecureKey(0)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	other, err := GenerateSecureKey(16)
	require.NoError(t, err)
	assert.Len(t, other, 16)
}
