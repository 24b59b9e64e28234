package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"certificate-guard/internal/domain"
	"certificate-guard/internal/logger"
	"certificate-guard/internal/metrics"
)

// RateLimiterService implementa o rate limiting de janela fixa por identidade e política
type RateLimiterService struct {
	storage  domain.RateLimiterStorage
	policies map[string]domain.RateLimitPolicy
	clock    domain.Clock
	logger   domain.Logger
}

// NewRateLimiterService cria uma nova instância do serviço
func NewRateLimiterService(
	storage domain.RateLimiterStorage,
	policies []domain.RateLimitPolicy,
	clock domain.Clock,
	log domain.Logger,
) *RateLimiterService {
	registry := make(map[string]domain.RateLimitPolicy, len(policies))
	for _, p := range policies {
		registry[p.Name] = p
	}
	if log == nil {
		log = logger.Nop{}
	}

	return &RateLimiterService{
		storage:  storage,
		policies: registry,
		clock:    clock,
		logger:   log,
	}
}

// CheckAndConsume consome uma requisição da identidade na política.
// A (MaxRequests+1)-ésima requisição da mesma janela é rejeitada até a janela reiniciar.
func (s *RateLimiterService) CheckAndConsume(ctx context.Context, identity string, policy domain.RateLimitPolicy) (*domain.RateLimitResult, error) {
	log := s.logger.WithContext(ctx)

	if err := policy.Validate(); err != nil {
		log.Error("Invalid rate limit policy", err, map[string]interface{}{
			"policy": policy.Name,
		})
		return nil, err
	}

	// Identidade vazia é erro de configuração: cai no balde compartilhado em vez de liberar
	identity = strings.TrimSpace(identity)
	if identity == "" {
		log.Warn("Empty rate limit identity, using shared bucket", map[string]interface{}{
			"policy": policy.Name,
		})
		identity = domain.UnknownIdentity
	}

	storageKey := buildStorageKey(policy.Name, identity)

	count, resetAt, err := s.storage.Increment(ctx, storageKey, policy.Window)
	if err != nil {
		metrics.RateLimitDecisionsTotal.WithLabelValues(policy.Name, metrics.OutcomeError).Inc()
		log.Error("Failed to increment counter", err, map[string]interface{}{
			"storage_key": storageKey,
			"policy":      policy.Name,
		})
		return nil, fmt.Errorf("failed to increment counter: %w", err)
	}

	now := s.clock.Now()
	remaining := policy.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}

	result := &domain.RateLimitResult{
		Allowed:   count <= policy.MaxRequests,
		Identity:  identity,
		Policy:    policy.Name,
		Limit:     policy.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}

	if !result.Allowed {
		result.RetryAfterSeconds = retryAfterSeconds(resetAt, now)
		log.Info("Rate limit exceeded", map[string]interface{}{
			"storage_key":   storageKey,
			"policy":        policy.Name,
			"current_count": count,
			"limit":         policy.MaxRequests,
			"retry_after":   result.RetryAfterSeconds,
		})
	} else {
		log.Debug("Request allowed", map[string]interface{}{
			"storage_key":   storageKey,
			"policy":        policy.Name,
			"current_count": count,
			"remaining":     remaining,
		})
	}

	metrics.RecordRateLimitDecision(policy.Name, result.Allowed)
	return result, nil
}

// Policy retorna a política registrada com o nome informado
func (s *RateLimiterService) Policy(name string) (domain.RateLimitPolicy, bool) {
	p, ok := s.policies[name]
	return p, ok
}

// Policies retorna as políticas registradas ordenadas por nome
func (s *RateLimiterService) Policies() []domain.RateLimitPolicy {
	out := make([]domain.RateLimitPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetStatus retorna o contador atual de uma identidade (nil se não houver janela ativa)
func (s *RateLimiterService) GetStatus(ctx context.Context, identity, policyName string) (*domain.RateLimitEntry, error) {
	if _, ok := s.policies[policyName]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPolicy, policyName)
	}

	entry, err := s.storage.Get(ctx, buildStorageKey(policyName, identity))
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return entry, nil
}

// Reset limpa o contador de uma identidade
func (s *RateLimiterService) Reset(ctx context.Context, identity, policyName string) error {
	if _, ok := s.policies[policyName]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPolicy, policyName)
	}

	storageKey := buildStorageKey(policyName, identity)
	if err := s.storage.Reset(ctx, storageKey); err != nil {
		return fmt.Errorf("failed to reset key: %w", err)
	}

	s.logger.WithContext(ctx).Info("Rate limit reset", map[string]interface{}{
		"policy":      policyName,
		"storage_key": storageKey,
	})
	return nil
}

// buildStorageKey constrói a chave de storage no formato padrão
func buildStorageKey(policyName, identity string) string {
	if policyName == "" {
		policyName = domain.PolicyDefault
	}
	return fmt.Sprintf("rate_limit:%s:%s", policyName, identity)
}

// retryAfterSeconds arredonda para cima o tempo restante da janela, mínimo de 1s
func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
