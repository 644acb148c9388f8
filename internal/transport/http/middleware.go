package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/auth"
)

const (
	// ContextKeyIdentity is the context key for storing the authenticated identity.
	ContextKeyIdentity = "identity"
)

// bearerToken extracts the token from "Authorization: Bearer <token>" or, for browser
// websocket clients that cannot set headers, from the token query parameter.
func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.Request)
		if !ok {
			logger.Debug().Msg("missing or malformed authorization")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header", Code: "unauthorized"})
			return
		}

		identity, err := authService.Authenticate(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token", Code: "unauthorized"})
			return
		}

		c.Set(ContextKeyIdentity, identity)
		c.Next()
	}
}

// identityFrom returns the identity stored by AuthMiddleware.
func identityFrom(c *gin.Context) (string, bool) {
	identity := c.GetString(ContextKeyIdentity)
	return identity, identity != ""
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(started)).
			Msg("http request")
	}
}
