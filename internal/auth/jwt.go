package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued token stays valid
const DefaultTokenTTL = 24 * time.Hour

// RoleClient is the only role the server issues
const RoleClient = "client"

var (
	// ErrInvalidAccessKey is returned when a token is requested with a wrong key
	ErrInvalidAccessKey = errors.New("invalid access key")
	// ErrMissingSecret is returned when the issuer has no signing secret
	ErrMissingSecret = errors.New("jwt secret is not configured")
)

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer exchanges the shared access key for signed client tokens
type Issuer struct {
	secret    []byte
	accessKey string
	ttl       time.Duration
	now       func() time.Time
}

// NewIssuer creates a new token issuer
func NewIssuer(secret, accessKey string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		secret:    []byte(secret),
		accessKey: accessKey,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// Enabled reports whether requests must carry a token
func (i *Issuer) Enabled() bool {
	return i != nil && i.accessKey != ""
}

// GenerateClientToken checks the access key and returns a token for clientID
// together with its expiry
func (i *Issuer) GenerateClientToken(clientID, accessKey string) (string, time.Time, error) {
	if subtle.ConstantTimeCompare([]byte(accessKey), []byte(i.accessKey)) != 1 {
		return "", time.Time{}, ErrInvalidAccessKey
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := &JWTClaims{
		ClientID: clientID,
		Role:     RoleClient,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid && claims.Role == RoleClient {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}
