package storage

import (
	"fmt"
	"strings"
	"time"

	"certificate-guard/internal/domain"
)

// StorageType define os tipos de storage disponíveis
type StorageType string

const (
	RedisStorageType  StorageType = "redis"
	MemoryStorageType StorageType = "memory"
)

// StorageConfig contém configurações para criação de storage
type StorageConfig struct {
	Type            StorageType
	RedisConfig     *RedisConfig
	CleanupInterval time.Duration
	Clock           domain.Clock
}

// RedisConfig contém configurações específicas do Redis
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	Database int
}

// StorageFactory cria instâncias de storage seguindo Strategy Pattern
type StorageFactory struct{}

// NewStorageFactory cria uma nova instância da factory
func NewStorageFactory() *StorageFactory {
	return &StorageFactory{}
}

// CreateStorage cria uma instância de storage baseada na configuração
func (f *StorageFactory) CreateStorage(config *StorageConfig, logger domain.Logger) (domain.RateLimiterStorage, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	switch normalizeType(config.Type) {
	case RedisStorageType:
		return f.createRedisStorage(config.RedisConfig, config.Clock, logger)
	default:
		return f.createMemoryStorage(config, logger), nil
	}
}

// createRedisStorage cria uma instância de Redis storage
func (f *StorageFactory) createRedisStorage(config *RedisConfig, clk domain.Clock, logger domain.Logger) (domain.RateLimiterStorage, error) {
	storage, err := NewRedisStorage(config.Host, config.Port, config.Password, config.Database, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis storage: %w", err)
	}
	return storage, nil
}

// createMemoryStorage cria uma instância de Memory storage
func (f *StorageFactory) createMemoryStorage(config *StorageConfig, logger domain.Logger) domain.RateLimiterStorage {
	var opts []MemoryOption
	if config.CleanupInterval > 0 {
		opts = append(opts, WithCleanupInterval(config.CleanupInterval))
	}
	if config.Clock != nil {
		opts = append(opts, WithClock(config.Clock))
	}
	return NewMemoryStorage(logger, opts...)
}

// GetSupportedTypes retorna os tipos de storage suportados
func (f *StorageFactory) GetSupportedTypes() []StorageType {
	return []StorageType{RedisStorageType, MemoryStorageType}
}

// ValidateConfig valida uma configuração de storage
func (f *StorageFactory) ValidateConfig(config *StorageConfig) error {
	if config == nil {
		return fmt.Errorf("storage config cannot be nil")
	}

	switch normalizeType(config.Type) {
	case RedisStorageType:
		return f.validateRedisConfig(config.RedisConfig)
	case MemoryStorageType:
		if config.CleanupInterval < 0 {
			return fmt.Errorf("cleanup interval cannot be negative")
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage type: %s (supported: %v)", config.Type, f.GetSupportedTypes())
	}
}

// validateRedisConfig valida configuração do Redis
func (f *StorageFactory) validateRedisConfig(config *RedisConfig) error {
	if config == nil {
		return fmt.Errorf("redis config cannot be nil")
	}
	if config.Host == "" {
		return fmt.Errorf("redis host cannot be empty")
	}
	if config.Port == "" {
		return fmt.Errorf("redis port cannot be empty")
	}
	if config.Database < 0 || config.Database > 15 {
		return fmt.Errorf("redis database must be between 0 and 15, got: %d", config.Database)
	}
	return nil
}

func normalizeType(t StorageType) StorageType {
	return StorageType(strings.ToLower(strings.TrimSpace(string(t))))
}
