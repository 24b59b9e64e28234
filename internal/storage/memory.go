package storage

import (
	"context"
	"sync"
	"time"

	"certificate-guard/internal/clock"
	"certificate-guard/internal/domain"
)

// DefaultCleanupInterval é o intervalo mínimo entre varreduras de entradas expiradas
const DefaultCleanupInterval = time.Minute

// MemoryStorage implementa domain.RateLimiterStorage em memória.
// O estado é local ao processo e some quando ele reinicia.
type MemoryStorage struct {
	mutex           sync.Mutex
	data            map[string]*domain.RateLimitEntry
	clock           domain.Clock
	cleanupInterval time.Duration
	nextCleanup     time.Time
	logger          domain.Logger
}

// MemoryOption customiza o MemoryStorage
type MemoryOption func(*MemoryStorage)

// WithClock injeta o relógio usado para as janelas
func WithClock(c domain.Clock) MemoryOption {
	return func(m *MemoryStorage) { m.clock = c }
}

// WithCleanupInterval define o intervalo entre varreduras
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *MemoryStorage) { m.cleanupInterval = d }
}

// NewMemoryStorage cria uma nova instância do MemoryStorage
func NewMemoryStorage(logger domain.Logger, opts ...MemoryOption) *MemoryStorage {
	storage := &MemoryStorage{
		data:            make(map[string]*domain.RateLimitEntry),
		clock:           clock.System{},
		cleanupInterval: DefaultCleanupInterval,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(storage)
	}
	storage.nextCleanup = storage.clock.Now().Add(storage.cleanupInterval)

	if logger != nil {
		logger.Info("Memory storage initialized", map[string]interface{}{
			"cleanup_interval": storage.cleanupInterval.String(),
		})
	}

	return storage
}

// Increment reinicia a janela se necessário e incrementa o contador.
// Leitura, reset e escrita acontecem sob o mesmo lock.
func (m *MemoryStorage) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.clock.Now()
	m.maybeCleanup(now)

	entry, exists := m.data[key]
	if !exists || entry.Expired(now) {
		entry = &domain.RateLimitEntry{
			Key:           key,
			Count:         0,
			WindowResetAt: now.Add(window),
		}
		m.data[key] = entry
	}

	entry.Count++

	m.logStorageOperation("INCREMENT", key, nil)
	return entry.Count, entry.WindowResetAt, nil
}

// Get recupera o contador atual de uma chave
func (m *MemoryStorage) Get(ctx context.Context, key string) (*domain.RateLimitEntry, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	entry, exists := m.data[key]
	if !exists || entry.Expired(m.clock.Now()) {
		m.logStorageOperation("GET", key, nil)
		return nil, nil
	}

	// Cópia para evitar modificações concorrentes
	result := *entry

	m.logStorageOperation("GET", key, nil)
	return &result, nil
}

// Reset limpa os dados de uma chave
func (m *MemoryStorage) Reset(ctx context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.data, key)

	m.logStorageOperation("RESET", key, nil)
	return nil
}

// Health verifica se o storage está saudável
func (m *MemoryStorage) Health(ctx context.Context) error {
	return nil
}

// Close limpa todos os contadores
func (m *MemoryStorage) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data = make(map[string]*domain.RateLimitEntry)

	if m.logger != nil {
		m.logger.Info("Memory storage closed", nil)
	}
	return nil
}

// Len retorna a quantidade de entradas mantidas
func (m *MemoryStorage) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.data)
}

// maybeCleanup remove entradas expiradas quando o intervalo já passou.
// Deve ser chamado com o lock adquirido.
func (m *MemoryStorage) maybeCleanup(now time.Time) {
	if now.Before(m.nextCleanup) {
		return
	}
	m.nextCleanup = now.Add(m.cleanupInterval)

	removed := 0
	for key, entry := range m.data {
		if entry.Expired(now) {
			delete(m.data, key)
			removed++
		}
	}

	if removed > 0 && m.logger != nil {
		m.logger.Debug("Memory storage cleanup completed", map[string]interface{}{
			"removed_entries":   removed,
			"remaining_entries": len(m.data),
		})
	}
}

// logStorageOperation registra operações de storage
func (m *MemoryStorage) logStorageOperation(operation, key string, err error) {
	if m.logger == nil {
		return
	}

	if err == nil {
		m.logger.Debug("Storage operation completed", map[string]interface{}{
			"operation": operation,
			"key":       key,
		})
		return
	}

	m.logger.Error("Storage operation failed", err, map[string]interface{}{
		"operation": operation,
		"key":       key,
	})
}
