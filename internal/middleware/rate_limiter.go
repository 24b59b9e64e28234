package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"certificate-guard/internal/domain"
	"certificate-guard/internal/logger"
)

// RateLimiterMiddleware aplica uma política nomeada a uma rota
type RateLimiterMiddleware struct {
	service domain.RateLimiterService
	policy  domain.RateLimitPolicy
	logger  domain.Logger
}

// NewRateLimiterMiddleware cria o middleware para a política informada.
// Política desconhecida é erro de montagem das rotas e deve aparecer na inicialização.
func NewRateLimiterMiddleware(
	service domain.RateLimiterService,
	policyName string,
	log domain.Logger,
) (gin.HandlerFunc, error) {
	policy, ok := service.Policy(policyName)
	if !ok {
		return nil, &domain.PolicyError{Policy: policyName, Reason: "not registered"}
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop{}
	}

	middleware := &RateLimiterMiddleware{
		service: service,
		policy:  policy,
		logger:  log,
	}
	return middleware.Handle, nil
}

// Handle é o handler principal do middleware
func (m *RateLimiterMiddleware) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	log := m.logger.WithContext(ctx)

	identity := DeriveIdentity(c)

	result, err := m.service.CheckAndConsume(ctx, identity, m.policy)
	if err != nil {
		log.Error("Rate limiter service error", err, map[string]interface{}{
			"policy": m.policy.Name,
			"path":   c.FullPath(),
		})

		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":   "rate_limiter_unavailable",
			"message": "Unable to process rate limit check",
		})
		return
	}

	setRateLimitHeaders(c, result)

	if !result.Allowed {
		log.Info("Request rate limited", map[string]interface{}{
			"identity":    logger.Mask(result.Identity),
			"policy":      result.Policy,
			"limit":       result.Limit,
			"retry_after": result.RetryAfterSeconds,
			"path":        c.FullPath(),
		})

		c.Header("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate_limit_exceeded",
			"message":     "you have reached the maximum number of requests allowed within the current window",
			"retry_after": result.RetryAfterSeconds,
		})
		return
	}

	c.Next()
}

// setRateLimitHeaders define headers informativos de rate limiting
func setRateLimitHeaders(c *gin.Context, result *domain.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	c.Header("X-RateLimit-Policy", result.Policy)
}
