package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrKeyNotAllowed = errors.New("key is outside the downloadable prefixes")
	ErrInvalidToken  = errors.New("invalid download token")
)

// allowedPrefixes are the only storage locations a download grant may point
// at. Everything the pipeline writes lands under one of these.
var allowedPrefixes = []string{"full/", "thumbnails/", "users/"}

// Claims is the payload of one download grant: the object key it unlocks.
type Claims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// Manager issues and verifies short-lived HS256 download grants.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// AllowedKey reports whether key points inside the downloadable prefix set
// and carries no traversal sequence.
func AllowedKey(key string) bool {
	if key == "" || strings.Contains(key, "..") {
		return false
	}
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return true
		}
	}
	return false
}

// Issue signs a grant for key, returning the token and its expiry.
func (m *Manager) Issue(key string) (string, time.Time, error) {
	if !AllowedKey(key) {
		return "", time.Time{}, ErrKeyNotAllowed
	}

	now := time.Now().UTC()
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "download",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the granted object key.
// The prefix check runs again here so a token minted before a policy change
// cannot reach outside the allow-listed locations.
func (m *Manager) Verify(tokenString string) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if !AllowedKey(claims.Key) {
		return "", ErrKeyNotAllowed
	}
	return claims.Key, nil
}
