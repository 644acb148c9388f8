package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusForCode maps domain error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case core.ErrCodeNotFound:
		return http.StatusNotFound
	case core.ErrCodeUnauthorized:
		return http.StatusForbidden
	case core.ErrCodeInvalidArgument, core.ErrCodeBadRequest:
		return http.StatusBadRequest
	case core.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError reports err using the domain taxonomy. Store failures are logged, not exposed.
func writeError(c *gin.Context, logger *zerolog.Logger, err error) {
	ce := core.AsCoreError(err)
	status := statusForCode(ce.Code)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code})
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Protocol int    `json:"protocol"`
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Protocol: proto.ProtocolVersion})
}
