package testutil

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shiyuan-lin/carpool-api/config"
	"github.com/shiyuan-lin/carpool-api/middleware"
	"github.com/shiyuan-lin/carpool-api/services"
)

// TestJWTSecret is the signing secret shared by test tokens and test routers
const TestJWTSecret = "test-secret"

// TestConfig returns a configuration suitable for tests
func TestConfig() *config.Config {
	return &config.Config{
		DatabaseURL: "sqlite://:memory:",
		Port:        "8080",
		GoEnv:       "test",
		JWTSecret:   TestJWTSecret,
	}
}

// MockAuthMiddleware creates a middleware that binds the given user id to
// the request context without checking any credential
func MockAuthMiddleware(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetUserID(c, userID)
		c.Next()
	}
}

// IssueTestToken signs a short-lived bearer token for the given user using
// the test secret
func IssueTestToken(t *testing.T, userID uint) string {
	t.Helper()
	tokens := services.NewTokenService(TestConfig())
	token, err := tokens.IssueToken(userID, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue test token: %v", err)
	}
	return token
}
