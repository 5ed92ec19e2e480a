// Package handlers provides HTTP API request handlers.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/event-connect/backend/internal/auth"
	"github.com/event-connect/backend/internal/model"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// identityFromRequest extracts and verifies the bearer token on a request.
func identityFromRequest(c *gin.Context, verifier auth.Verifier) (*model.Identity, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
		return nil, false
	}
	token := strings.TrimPrefix(header, "Bearer ")

	identity, err := verifier.Verify(token)
	if err != nil {
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
		return nil, false
	}
	return identity, true
}
