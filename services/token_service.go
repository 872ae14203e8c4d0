package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appConfig "github.com/shiyuan-lin/carpool-api/config"
)

// CredentialValidator is the identity collaborator interface: it resolves
// an opaque bearer credential to a user id or fails.
type CredentialValidator interface {
	ValidateCredential(token string) (uint, error)
}

// TokenService validates HS256 bearer tokens whose subject claim carries
// the user id
type TokenService struct {
	secret []byte
}

// NewTokenService creates a token service using the configured JWT secret
func NewTokenService(cfg *appConfig.Config) *TokenService {
	return &TokenService{secret: []byte(cfg.JWTSecret)}
}

// ValidateCredential parses and verifies the token and returns the bound
// user id
func (s *TokenService) ValidateCredential(token string) (uint, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, errForbidden("invalid credential")
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return 0, errForbidden("credential carries no subject")
	}
	userID, err := strconv.ParseUint(subject, 10, 64)
	if err != nil {
		return 0, errForbidden("credential subject is not a user id")
	}
	return uint(userID), nil
}

// IssueToken signs a token for the user, valid for the given duration.
// Used by the development tooling and the test suite; production tokens
// come from the identity collaborator.
func (s *TokenService) IssueToken(userID uint, validFor time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validFor)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
