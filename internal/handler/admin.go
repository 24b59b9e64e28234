package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"certificate-guard/internal/domain"
	"certificate-guard/internal/logger"
)

// AdminResetRequest representa o corpo da requisição para reset
type AdminResetRequest struct {
	Identity string `json:"identity" binding:"required"`
	Policy   string `json:"policy" binding:"required"`
}

// AdminStatusHandler retorna o contador de uma identidade em uma política
func (h *Handlers) AdminStatusHandler(c *gin.Context) {
	ctx := c.Request.Context()

	identity := strings.TrimSpace(c.Query("identity"))
	policyName := strings.TrimSpace(c.Query("policy"))

	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "identity parameter is required",
		})
		return
	}
	if policyName == "" {
		policyName = domain.PolicyDefault
	}

	policy, ok := h.limiter.Policy(policyName)
	if !ok {
		respondError(c, domain.ErrUnknownPolicy)
		return
	}

	entry, err := h.limiter.GetStatus(ctx, identity, policyName)
	if err != nil {
		h.logger.WithContext(ctx).Error("Failed to get rate limiter status", err, map[string]interface{}{
			"identity": logger.Mask(identity),
			"policy":   policyName,
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Failed to retrieve rate limiter status",
		})
		return
	}

	response := gin.H{
		"identity":  identity,
		"policy":    policy.Name,
		"limit":     policy.MaxRequests,
		"window":    policy.Window.String(),
		"current":   0,
		"remaining": policy.MaxRequests,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if entry != nil {
		response["current"] = entry.Count
		response["remaining"] = max(0, policy.MaxRequests-entry.Count)
		response["reset_time"] = entry.WindowResetAt.Unix()
	}

	c.JSON(http.StatusOK, response)
}

// AdminResetHandler limpa o contador de uma identidade
func (h *Handlers) AdminResetHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req AdminResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	req.Identity = strings.TrimSpace(req.Identity)
	req.Policy = strings.TrimSpace(req.Policy)

	if err := h.limiter.Reset(ctx, req.Identity, req.Policy); err != nil {
		if classifyStatus(err) == http.StatusNotFound {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": err.Error(),
			})
			return
		}

		h.logger.WithContext(ctx).Error("Failed to reset rate limiter", err, map[string]interface{}{
			"identity": logger.Mask(req.Identity),
			"policy":   req.Policy,
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Failed to reset rate limiter",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Rate limiter reset successfully",
		"identity":  req.Identity,
		"policy":    req.Policy,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListBlocksHandler lista os IPs bloqueados de um certificado
func (h *Handlers) ListBlocksHandler(c *gin.Context) {
	blocks, err := h.auditor.ListBlocks(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.logFailure(c, "Failed to list blocks", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"blocks": blocks,
		"count":  len(blocks),
	})
}

// UnblockHandler remove o bloqueio de um IP
func (h *Handlers) UnblockHandler(c *gin.Context) {
	token := c.Param("token")
	ip := c.Param("ip")

	if err := h.auditor.Unblock(c.Request.Context(), token, ip); err != nil {
		h.logFailure(c, "Failed to unblock IP", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "IP unblocked",
		"ip":      ip,
	})
}

// InvalidateCertificateHandler remove um certificado emitido
func (h *Handlers) InvalidateCertificateHandler(c *gin.Context) {
	token := c.Param("token")

	if err := h.auditor.InvalidateCertificate(c.Request.Context(), token); err != nil {
		h.logFailure(c, "Failed to invalidate certificate", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Certificate invalidated",
		"token":   token,
	})
}

// ListAccessHandler lista os acessos recentes de um certificado
func (h *Handlers) ListAccessHandler(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	records, err := h.auditor.ListAccess(c.Request.Context(), c.Param("token"), limit)
	if err != nil {
		h.logFailure(c, "Failed to list access records", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}
