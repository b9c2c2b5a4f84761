// internal/auth/auth.go
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultExpiration is used when TokenConfig.Expiration is zero
	DefaultExpiration = 24 * time.Hour

	// Issuer is written to and required in every token
	Issuer = "dialogue-engine"
)

// TokenConfig holds the configuration for token generation
type TokenConfig struct {
	Secret     []byte
	Expiration time.Duration
}

// NewTokenConfig derives a 256-bit signing key from secret. An empty secret
// returns nil, which disables authentication.
func NewTokenConfig(secret string, expiration time.Duration) *TokenConfig {
	if secret == "" {
		return nil
	}
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	key := sha256.Sum256([]byte(secret))
	return &TokenConfig{Secret: key[:], Expiration: expiration}
}

// Token identifies a client allowed to drive conversations
type Token struct {
	ClientID  string    `json:"client_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}

// GenerateToken creates an HS256 JWT whose subject is clientID
func GenerateToken(clientID string, config *TokenConfig) (string, error) {
	if config == nil || len(config.Secret) == 0 {
		return "", fmt.Errorf("secret key is required")
	}
	if clientID == "" {
		return "", fmt.Errorf("client id is required")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   clientID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(config.Expiration)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(config.Secret)
}

// ParseToken parses and validates a token. Errors wrap the jwt sentinel
// errors (jwt.ErrTokenExpired, jwt.ErrTokenSignatureInvalid, ...).
func ParseToken(tokenString string, config *TokenConfig) (*Token, error) {
	if config == nil || len(config.Secret) == 0 {
		return nil, fmt.Errorf("secret key is required")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return config.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("invalid token: missing subject")
	}

	token := &Token{ClientID: claims.Subject}
	if claims.ExpiresAt != nil {
		token.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		token.IssuedAt = claims.IssuedAt.Time
	}
	return token, nil
}

// GenerateSecureKey generates a secure random key for token signing
func GenerateSecureKey(length int) ([]byte, error) {
	if length <= 0 {
		length = 32 // Default to 256 bits
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
