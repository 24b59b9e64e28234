package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"certificate-guard/internal/app"
	"certificate-guard/internal/config"
	"certificate-guard/internal/logger"
)

func main() {
	// Carregar configurações
	configLoader := config.NewConfigLoader()
	cfg, err := configLoader.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Inicializar logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	for _, warning := range configLoader.Warnings() {
		appLogger.Warn(warning, nil)
	}

	policies := configLoader.Policies()
	policyFields := make(map[string]interface{}, len(policies))
	for _, p := range policies {
		policyFields[p.Name] = map[string]interface{}{
			"limit":  p.MaxRequests,
			"window": p.Window.String(),
		}
	}

	appLogger.Info("Starting Certificate Guard API", map[string]interface{}{
		"version":         "1.0.0",
		"log_level":       cfg.LogLevel,
		"port":            cfg.ServerPort,
		"db_driver":       cfg.DBDriver,
		"limiter_storage": cfg.RateLimitStorage,
		"block_threshold": cfg.AuditBlockThreshold,
		"policies":        policyFields,
	})

	if cfg.AuditBlockCheckFailOpen {
		appLogger.Warn("AUDIT_BLOCK_CHECK_FAIL_OPEN enabled, blocked IPs may see certificates while the store is unavailable", nil)
	}

	application, err := app.New(cfg, policies, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize application", err, nil)
		os.Exit(1)
	}

	server := application.Server()

	// Iniciar servidor em goroutine
	go func() {
		appLogger.Info("Starting HTTP server", map[string]interface{}{
			"addr": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Failed to start server", err, nil)
			os.Exit(1)
		}
	}()

	// Aguardar sinais de interrupção
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...", nil)

	// Graceful shutdown: HTTP primeiro, depois auditorias pendentes e conexões
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", err, nil)
	}

	if err := application.Close(ctx); err != nil {
		appLogger.Error("Failed to release resources", err, nil)
		os.Exit(1)
	}

	appLogger.Info("Server stopped gracefully", nil)
}
