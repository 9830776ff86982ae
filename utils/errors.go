package utils

import (
	"net/http"

	"rag-retrieval-service/models"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithEngineError maps a retrieval engine error to the HTTP
// status its taxonomy kind implies and emits the standard envelope.
func RespondWithEngineError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	status := http.StatusInternalServerError

	switch kind {
	case models.KindConfigError, models.KindDimensionMismatch:
		status = http.StatusBadRequest
	case models.KindCollectionNotFound:
		status = http.StatusNotFound
	case models.KindStoreUnavailable:
		status = http.StatusServiceUnavailable
	case models.KindTimeout:
		status = http.StatusGatewayTimeout
	case models.KindComputeFailure:
		status = http.StatusBadGateway
	default:
		kind = "internal_error"
	}

	RespondWithError(c, status, string(kind), err.Error(), nil)
}
