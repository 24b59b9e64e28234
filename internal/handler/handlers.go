package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certificate-guard/internal/domain"
	"certificate-guard/internal/logger"
	"certificate-guard/internal/middleware"
)

// HealthChecker é qualquer dependência que sabe informar a própria saúde
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handlers contém os handlers da API
type Handlers struct {
	limiter   domain.RateLimiterService
	auditor   domain.CertificateAuditor
	checks    map[string]HealthChecker
	logger    domain.Logger
	startTime time.Time
}

// NewHandlers cria uma nova instância dos handlers
func NewHandlers(
	limiter domain.RateLimiterService,
	auditor domain.CertificateAuditor,
	checks map[string]HealthChecker,
	log domain.Logger,
) *Handlers {
	if log == nil {
		log = logger.Nop{}
	}
	return &Handlers{
		limiter:   limiter,
		auditor:   auditor,
		checks:    checks,
		logger:    log,
		startTime: time.Now(),
	}
}

// SetupRoutes configura as rotas da API.
// Com adminToken vazio as rotas administrativas não são registradas.
func (h *Handlers) SetupRoutes(router *gin.Engine, adminToken string) error {
	viewLimiter, err := middleware.NewRateLimiterMiddleware(h.limiter, domain.PolicyCertificateView, h.logger)
	if err != nil {
		return fmt.Errorf("view rate limiter: %w", err)
	}
	verifyLimiter, err := middleware.NewRateLimiterMiddleware(h.limiter, domain.PolicyCertificateVerify, h.logger)
	if err != nil {
		return fmt.Errorf("verify rate limiter: %w", err)
	}

	// Rotas públicas (sem rate limiting)
	router.GET("/health", h.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Rotas de certificado, cada uma com sua política
	certificates := router.Group("/certificates")
	{
		certificates.POST("/verify", verifyLimiter, h.VerifyCertificateHandler)
		certificates.GET("/:token", viewLimiter, h.ViewCertificateHandler)
	}

	if adminToken == "" {
		h.logger.Warn("ADMIN_TOKEN not set, admin routes disabled", nil)
		return nil
	}

	admin := router.Group("/admin")
	admin.Use(middleware.AdminAuth(adminToken))
	{
		admin.GET("/rate-limit/status", h.AdminStatusHandler)
		admin.POST("/rate-limit/reset", h.AdminResetHandler)
		admin.DELETE("/certificates/:token", h.InvalidateCertificateHandler)
		admin.GET("/certificates/:token/blocks", h.ListBlocksHandler)
		admin.DELETE("/certificates/:token/blocks/:ip", h.UnblockHandler)
		admin.GET("/certificates/:token/access", h.ListAccessHandler)
	}
	return nil
}
