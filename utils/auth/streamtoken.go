package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// StreamClaims are the claims carried by a job-stream token. EventSource
// clients cannot set request headers, so SSE endpoints authenticate with a
// short-lived signed token passed in the query string instead of the API key.
type StreamClaims struct {
	TenantID uint   `json:"tenant_id"`
	JobUUID  string `json:"job_uuid"`
	jwt.RegisteredClaims
}

// StreamTokenManager issues and validates job-stream tokens.
type StreamTokenManager struct {
	secret []byte
	expiry time.Duration
	issuer string
}

func NewStreamTokenManager(secret string, expiry time.Duration, issuer string) *StreamTokenManager {
	return &StreamTokenManager{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
	}
}

// Issue creates a token scoped to one tenant and one job.
func (m *StreamTokenManager) Issue(tenantID uint, jobUUID string) (string, error) {
	now := time.Now()
	claims := StreamClaims{
		TenantID: tenantID,
		JobUUID:  jobUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses and verifies a stream token.
func (m *StreamTokenManager) Validate(tokenString string) (*StreamClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StreamClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*StreamClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
