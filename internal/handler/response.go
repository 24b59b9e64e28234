package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"certificate-guard/internal/domain"
)

// respondError escreve o corpo {"error", "message"} com o status do erro de domínio
func respondError(c *gin.Context, err error) {
	status, code, message := classifyError(err)
	c.JSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}

func classifyError(err error) (int, string, string) {
	var validationErr *domain.ValidationError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "validation_error", validationErr.Error()
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, domain.ErrCertificateNotFound):
		return http.StatusNotFound, "certificate_not_found", "Certificate not found"
	case errors.Is(err, domain.ErrAccessBlocked):
		return http.StatusForbidden, "access_blocked", "Access blocked, too many verification attempts"
	case errors.Is(err, domain.ErrBlockNotFound):
		return http.StatusNotFound, "block_not_found", "No block found for this IP"
	case errors.Is(err, domain.ErrUnknownPolicy):
		return http.StatusNotFound, "unknown_policy", err.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable", "Service temporarily unavailable, try again later"
	default:
		return http.StatusInternalServerError, "internal_server_error", "Unexpected error"
	}
}
