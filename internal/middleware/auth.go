package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/response"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

const (
	AuthContextKey    = "account"
	AccessTokenCookie = "accessToken"
)

// Authenticator resolves an access token to an account
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.Account, error)
}

// ExtractToken returns the access token from the accessToken cookie, or
// from an "Authorization: Bearer <token>" header
func ExtractToken(c *gin.Context) string {
	if token, err := c.Cookie(AccessTokenCookie); err == nil && token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// RequireAuth rejects requests without a valid access token and binds the
// authenticated account to the context
func RequireAuth(auth Authenticator, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			response.Fail(c, logger, response.Unauthorized("Unauthorized request"))
			return
		}

		account, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Fail(c, logger, err)
			return
		}

		c.Set(AuthContextKey, account)
		c.Next()
	}
}

// OptionalAuth binds the account when a valid token is present and never
// rejects the request
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ExtractToken(c); token != "" {
			if account, err := auth.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(AuthContextKey, account)
			}
		}
		c.Next()
	}
}

// CurrentAccount retrieves the authenticated account from the context
func CurrentAccount(c *gin.Context) (*models.Account, bool) {
	value, exists := c.Get(AuthContextKey)
	if !exists {
		return nil, false
	}

	account, ok := value.(*models.Account)
	return account, ok && account != nil
}

// GetAccountID retrieves the authenticated account ID from the context
func GetAccountID(c *gin.Context) (string, bool) {
	account, ok := CurrentAccount(c)
	if !ok {
		return "", false
	}
	return account.ID, true
}
