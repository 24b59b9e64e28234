// Package app monta as dependências do serviço a partir da configuração.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"certificate-guard/internal/clock"
	"certificate-guard/internal/config"
	"certificate-guard/internal/database"
	"certificate-guard/internal/domain"
	"certificate-guard/internal/handler"
	"certificate-guard/internal/middleware"
	"certificate-guard/internal/repository"
	"certificate-guard/internal/service"
	"certificate-guard/internal/storage"
)

// App reúne os componentes montados
type App struct {
	Config         *config.Config
	Logger         domain.Logger
	DB             *gorm.DB
	Repository     *repository.CertificateRepository
	LimiterStorage domain.RateLimiterStorage
	Limiter        *service.RateLimiterService
	Auditor        *service.CertificateAuditor
	Router         *gin.Engine

	cache *repository.CachedCertificateStore
}

// Option customiza a montagem
type Option func(*options)

type options struct {
	clock domain.Clock
}

// WithClock substitui o relógio do sistema
func WithClock(c domain.Clock) Option {
	return func(o *options) { o.clock = c }
}

// OpenDatabase conecta e migra o banco configurado; mensagens do GORM vão para log
func OpenDatabase(cfg *config.Config, log domain.Logger) (*gorm.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdle,
		MaxOpenConns:    cfg.DBMaxOpen,
		ConnMaxLifetime: cfg.DBMaxLifetime,
		LogLevel:        database.LogLevelFor(cfg.LogLevel),
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(db, repository.Models()...); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

// New monta banco, limiter, auditor e rotas
func New(cfg *config.Config, policies []domain.RateLimitPolicy, log domain.Logger, opts ...Option) (*App, error) {
	o := &options{clock: clock.System{}}
	for _, opt := range opts {
		opt(o)
	}

	db, err := OpenDatabase(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{
		Config:     cfg,
		Logger:     log,
		DB:         db,
		Repository: repository.NewCertificateRepository(db),
	}

	var store domain.CertificateStore = a.Repository
	if cfg.CertCacheTTL > 0 {
		a.cache = repository.NewCachedCertificateStore(a.Repository, cfg.CertCacheTTL)
		store = a.cache
	}

	a.LimiterStorage, err = storage.NewStorageFactory().CreateStorage(&storage.StorageConfig{
		Type: storage.StorageType(cfg.RateLimitStorage),
		RedisConfig: &storage.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			Database: cfg.RedisDB,
		},
		CleanupInterval: cfg.RateLimitCleanupInterval,
		Clock:           o.clock,
	}, log)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("create rate limiter storage: %w", err)
	}

	a.Limiter = service.NewRateLimiterService(a.LimiterStorage, policies, o.clock, log)
	a.Auditor = service.NewCertificateAuditor(store, service.AuditorConfig{
		BlockThreshold:     cfg.AuditBlockThreshold,
		StoreTimeout:       cfg.AuditStoreTimeout,
		BlockCheckFailOpen: cfg.AuditBlockCheckFailOpen,
		Async:              cfg.AuditAsync,
	}, o.clock, log)

	a.Router, err = a.newRouter()
	if err != nil {
		a.closeResources()
		return nil, err
	}

	return a, nil
}

func (a *App) newRouter() (*gin.Engine, error) {
	if a.Config.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestContext(a.Logger))

	handlers := handler.NewHandlers(a.Limiter, a.Auditor, map[string]handler.HealthChecker{
		"database":           a.Repository,
		"rate_limit_storage": a.LimiterStorage,
	}, a.Logger)

	if err := handlers.SetupRoutes(router, a.Config.AdminToken); err != nil {
		return nil, fmt.Errorf("setup routes: %w", err)
	}
	return router, nil
}

// Server cria o servidor HTTP com os timeouts padrão
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:         ":" + a.Config.ServerPort,
		Handler:      a.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Close aguarda as auditorias pendentes e libera os recursos
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Auditor != nil {
		if err := a.Auditor.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain auditor: %w", err))
		}
	}
	errs = append(errs, a.closeResources()...)
	return errors.Join(errs...)
}

func (a *App) closeResources() []error {
	var errs []error
	if a.cache != nil {
		a.cache.Stop()
	}
	if a.LimiterStorage != nil {
		if err := a.LimiterStorage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rate limiter storage: %w", err))
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errs
}
