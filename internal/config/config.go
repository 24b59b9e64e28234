package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"certificate-guard/internal/domain"
)

// Config representa todas as configurações da aplicação
type Config struct {
	// Server Configuration
	ServerPort      string        `env:"SERVER_PORT" envDefault:"8080"`
	GinMode         string        `env:"GIN_MODE" envDefault:"debug"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Logging Configuration
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Database Configuration
	DBDriver      string        `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL   string        `env:"DATABASE_URL" envDefault:"certificate_guard.db?_busy_timeout=5000"`
	DBMaxIdle     int           `env:"DB_MAX_IDLE" envDefault:"5"`
	DBMaxOpen     int           `env:"DB_MAX_OPEN" envDefault:"15"`
	DBMaxLifetime time.Duration `env:"DB_MAX_LIFETIME" envDefault:"30m"`

	// Rate Limiter Storage
	RateLimitStorage         string        `env:"RATE_LIMIT_STORAGE" envDefault:"memory"`
	RedisHost                string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort                string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword            string        `env:"REDIS_PASSWORD"`
	RedisDB                  int           `env:"REDIS_DB" envDefault:"0"`
	RateLimitCleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"1m"`

	// Rate Limit Policies
	DefaultLimit        int           `env:"RATE_LIMIT_DEFAULT_LIMIT" envDefault:"60"`
	DefaultWindow       time.Duration `env:"RATE_LIMIT_DEFAULT_WINDOW" envDefault:"1m"`
	CertViewLimit       int           `env:"CERT_VIEW_LIMIT" envDefault:"30"`
	CertViewWindow      time.Duration `env:"CERT_VIEW_WINDOW" envDefault:"1m"`
	CertVerifyLimit     int           `env:"CERT_VERIFY_LIMIT" envDefault:"10"`
	CertVerifyWindow    time.Duration `env:"CERT_VERIFY_WINDOW" envDefault:"1m"`
	RateLimitPolicyFile string        `env:"RATE_LIMIT_POLICY_FILE"`

	// Certificate Audit
	AuditBlockThreshold     int           `env:"AUDIT_BLOCK_THRESHOLD" envDefault:"5"`
	AuditStoreTimeout       time.Duration `env:"AUDIT_STORE_TIMEOUT" envDefault:"3s"`
	AuditBlockCheckFailOpen bool          `env:"AUDIT_BLOCK_CHECK_FAIL_OPEN" envDefault:"false"`
	AuditAsync              bool          `env:"AUDIT_ASYNC" envDefault:"true"`
	CertCacheTTL            time.Duration `env:"CERT_CACHE_TTL" envDefault:"30s"`

	// Admin; vazio desabilita as rotas administrativas
	AdminToken string `env:"ADMIN_TOKEN"`
}

// PolicyFile representa a estrutura do arquivo de políticas
type PolicyFile struct {
	Policies map[string]PolicyFileEntry `json:"policies"`
}

// PolicyFileEntry é uma política no arquivo JSON. Window usa o formato de time.ParseDuration.
type PolicyFileEntry struct {
	Limit       int    `json:"limit"`
	Window      string `json:"window"`
	Description string `json:"description"`
}

// ConfigLoader carrega a configuração do ambiente e do arquivo de políticas
type ConfigLoader struct {
	config   *Config
	policies []domain.RateLimitPolicy
	warnings []string
}

// NewConfigLoader cria uma nova instância do ConfigLoader
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// LoadConfig carrega o .env (se existir), o ambiente e as políticas
func (c *ConfigLoader) LoadConfig(envFiles ...string) (*Config, error) {
	c.warnings = nil

	// Sem .env, segue com as variáveis do sistema
	if err := godotenv.Load(envFiles...); err != nil {
		c.warnings = append(c.warnings, ".env file not found, using system environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.RateLimitStorage = strings.ToLower(strings.TrimSpace(cfg.RateLimitStorage))
	cfg.AdminToken = strings.TrimSpace(cfg.AdminToken)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	policies, err := c.loadPolicies(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate limit policies: %w", err)
	}

	c.config = cfg
	c.policies = policies
	return cfg, nil
}

// GetConfig retorna a configuração atual
func (c *ConfigLoader) GetConfig() *Config {
	return c.config
}

// Policies retorna as políticas carregadas ordenadas por nome
func (c *ConfigLoader) Policies() []domain.RateLimitPolicy {
	return c.policies
}

// Warnings retorna os avisos do último carregamento
func (c *ConfigLoader) Warnings() []string {
	return c.warnings
}

// DefaultPolicies monta as políticas a partir das variáveis de ambiente
func DefaultPolicies(cfg *Config) map[string]domain.RateLimitPolicy {
	return map[string]domain.RateLimitPolicy{
		domain.PolicyDefault: {
			Name:        domain.PolicyDefault,
			Window:      cfg.DefaultWindow,
			MaxRequests: cfg.DefaultLimit,
			Description: "Default policy for unclassified routes",
		},
		domain.PolicyCertificateView: {
			Name:        domain.PolicyCertificateView,
			Window:      cfg.CertViewWindow,
			MaxRequests: cfg.CertViewLimit,
			Description: "Public certificate page views",
		},
		domain.PolicyCertificateVerify: {
			Name:        domain.PolicyCertificateVerify,
			Window:      cfg.CertVerifyWindow,
			MaxRequests: cfg.CertVerifyLimit,
			Description: "Certificate hash verification",
		},
	}
}

// loadPolicies aplica o arquivo de políticas sobre os valores do ambiente
func (c *ConfigLoader) loadPolicies(cfg *Config) ([]domain.RateLimitPolicy, error) {
	registry := DefaultPolicies(cfg)

	if cfg.RateLimitPolicyFile != "" {
		overrides, err := c.LoadPolicyFile(cfg.RateLimitPolicyFile)
		if err != nil {
			return nil, err
		}
		for name, p := range overrides {
			registry[name] = p
		}
	}

	policies := make([]domain.RateLimitPolicy, 0, len(registry))
	for _, p := range registry {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies, nil
}

// LoadPolicyFile lê as políticas do arquivo JSON
func (c *ConfigLoader) LoadPolicyFile(path string) (map[string]domain.RateLimitPolicy, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		c.warnings = append(c.warnings, fmt.Sprintf("policy file %s not found, using environment defaults", path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file PolicyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	policies := make(map[string]domain.RateLimitPolicy, len(file.Policies))
	for name, entry := range file.Policies {
		window, err := time.ParseDuration(entry.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid window for policy %s: %w", name, err)
		}

		p := domain.RateLimitPolicy{
			Name:        name,
			Window:      window,
			MaxRequests: entry.Limit,
			Description: entry.Description,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		policies[name] = p
	}
	return policies, nil
}

// validateConfig valida se as configurações são válidas
func validateConfig(cfg *Config) error {
	switch cfg.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite")
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.RateLimitStorage {
	case "memory", "redis":
	default:
		return fmt.Errorf("RATE_LIMIT_STORAGE must be memory or redis")
	}

	if cfg.RedisDB < 0 || cfg.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15")
	}

	if cfg.RateLimitCleanupInterval <= 0 {
		return fmt.Errorf("RATE_LIMIT_CLEANUP_INTERVAL must be greater than 0")
	}

	if cfg.AuditBlockThreshold <= 0 {
		return fmt.Errorf("AUDIT_BLOCK_THRESHOLD must be greater than 0")
	}

	if cfg.AuditStoreTimeout <= 0 {
		return fmt.Errorf("AUDIT_STORE_TIMEOUT must be greater than 0")
	}

	if cfg.CertCacheTTL < 0 {
		return fmt.Errorf("CERT_CACHE_TTL must not be negative")
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be greater than 0")
	}

	return nil
}
