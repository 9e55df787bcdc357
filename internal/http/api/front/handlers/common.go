package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/chat"
	"github.com/modelgate/modelgate/internal/providers"
)

// getUserID extracts the user ID from gin context.
func getUserID(c *gin.Context) uint64 {
	val, exists := c.Get("userID")
	if !exists {
		return 0
	}
	switch v := val.(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case int:
		return uint64(v)
	default:
		return 0
	}
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// respondServiceError maps resolution and generation failures to
// deterministic HTTP status codes with a stable error_type string.
func respondServiceError(c *gin.Context, err error) {
	var clientErr *providers.ClientError
	if errors.As(err, &clientErr) {
		c.JSON(statusForErrorType(clientErr.Type), gin.H{
			"error":      clientErr.Message,
			"error_type": string(clientErr.Type),
		})
		return
	}
	switch {
	case errors.Is(err, providers.ErrCredentialNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "credential_not_found"})
	case errors.Is(err, providers.ErrProviderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "error_type": "provider_not_found"})
	case errors.Is(err, providers.ErrServiceCreation):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_type": "service_creation_error"})
	case errors.Is(err, chat.ErrThreadNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "error_type": "thread_not_found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_type": "processing_error"})
	}
}

// statusForErrorType maps a generation error type to an HTTP status.
func statusForErrorType(errType providers.ErrorType) int {
	switch errType {
	case providers.ErrorRateLimit:
		return http.StatusTooManyRequests
	case providers.ErrorBilling:
		return http.StatusPaymentRequired
	case providers.ErrorInvalidContext:
		return http.StatusBadRequest
	case providers.ErrorTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
