package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"certificate-guard/internal/domain"
	"certificate-guard/internal/middleware"
)

// requesterEmailHeader é preenchido pelo provedor de identidade quando há sessão
const requesterEmailHeader = "X-User-Email"

// VerifyRequest é o corpo de POST /certificates/verify
type VerifyRequest struct {
	Token    string `json:"token" binding:"required,max=128"`
	HolderID string `json:"holderId" binding:"required,max=128"`
	Hash     string `json:"hash" binding:"required,max=128"`
}

// ViewCertificateHandler exibe a página pública de um certificado
func (h *Handlers) ViewCertificateHandler(c *gin.Context) {
	ctx := c.Request.Context()

	view, err := h.auditor.ViewCertificate(ctx, domain.ViewRequest{
		Token:          c.Param("token"),
		IP:             middleware.GetClientIP(c),
		RequesterEmail: strings.TrimSpace(c.GetHeader(requesterEmailHeader)),
	})
	if err != nil {
		h.logFailure(c, "Certificate view failed", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// VerifyCertificateHandler confere o hash de autenticidade.
// A resposta nunca traz o hash esperado.
func (h *Handlers) VerifyCertificateHandler(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	valid, err := h.auditor.VerifyCertificate(c.Request.Context(), req.Token, req.HolderID, req.Hash)
	if err != nil {
		h.logFailure(c, "Certificate verification failed", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// logFailure registra apenas falhas inesperadas; resultados de domínio já são logados no serviço
func (h *Handlers) logFailure(c *gin.Context, msg string, err error) {
	if errors.Is(err, domain.ErrStoreUnavailable) || classifyStatus(err) == http.StatusInternalServerError {
		h.logger.WithContext(c.Request.Context()).Error(msg, err, map[string]interface{}{
			"path": c.FullPath(),
		})
	}
}

func classifyStatus(err error) int {
	status, _, _ := classifyError(err)
	return status
}
