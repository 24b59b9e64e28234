package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"certificate-guard/internal/clock"
	"certificate-guard/internal/domain"

	"github.com/go-redis/redis/v8"
)

// incrementScript incrementa o contador e define a expiração da janela no primeiro hit.
// Se a chave perdeu o TTL por qualquer motivo, a janela é restaurada.
var incrementScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisStorage implementa domain.RateLimiterStorage usando Redis.
// Permite que várias instâncias compartilhem os mesmos contadores.
type RedisStorage struct {
	client redis.Cmdable
	clock  domain.Clock
	logger domain.Logger
}

// NewRedisStorage conecta no Redis e valida a conexão.
// clk define a base do ResetAt; nil usa o relógio do sistema.
func NewRedisStorage(host, port, password string, db int, clk domain.Clock, logger domain.Logger) (*RedisStorage, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,

		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger != nil {
		logger.Info("Redis connection established", map[string]interface{}{
			"host": host,
			"port": port,
			"db":   db,
		})
	}

	return NewRedisStorageWithClient(rdb, clk, logger), nil
}

// NewRedisStorageWithClient usa um cliente já configurado
func NewRedisStorageWithClient(client redis.Cmdable, clk domain.Clock, logger domain.Logger) *RedisStorage {
	if clk == nil {
		clk = clock.System{}
	}
	return &RedisStorage{
		client: client,
		clock:  clk,
		logger: logger,
	}
}

// Increment incrementa o contador de forma atômica via script Lua
func (r *RedisStorage) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	windowMs := window.Milliseconds()

	result, err := incrementScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		r.logStorageOperation("INCREMENT", key, err)
		return 0, time.Time{}, fmt.Errorf("failed to increment key %s: %w", key, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		err := fmt.Errorf("invalid increment result for key %s", key)
		r.logStorageOperation("INCREMENT", key, err)
		return 0, time.Time{}, err
	}

	count, err := strconv.Atoi(fmt.Sprint(values[0]))
	if err != nil {
		r.logStorageOperation("INCREMENT", key, err)
		return 0, time.Time{}, fmt.Errorf("invalid count in result for key %s: %w", key, err)
	}

	ttlMs, err := strconv.ParseInt(fmt.Sprint(values[1]), 10, 64)
	if err != nil {
		r.logStorageOperation("INCREMENT", key, err)
		return 0, time.Time{}, fmt.Errorf("invalid ttl in result for key %s: %w", key, err)
	}

	resetAt := r.clock.Now().Add(time.Duration(ttlMs) * time.Millisecond)

	r.logStorageOperation("INCREMENT", key, nil)
	return count, resetAt, nil
}

// Get recupera o contador atual de uma chave
func (r *RedisStorage) Get(ctx context.Context, key string) (*domain.RateLimitEntry, error) {
	pipe := r.client.TxPipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		r.logStorageOperation("GET", key, err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	count, err := getCmd.Int()
	if errors.Is(err, redis.Nil) {
		r.logStorageOperation("GET", key, nil)
		return nil, nil
	}
	if err != nil {
		r.logStorageOperation("GET", key, err)
		return nil, fmt.Errorf("invalid counter for key %s: %w", key, err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}

	r.logStorageOperation("GET", key, nil)
	return &domain.RateLimitEntry{
		Key:           key,
		Count:         count,
		WindowResetAt: r.clock.Now().Add(ttl),
	}, nil
}

// Reset limpa os dados de uma chave
func (r *RedisStorage) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logStorageOperation("RESET", key, err)
		return fmt.Errorf("failed to reset key %s: %w", key, err)
	}

	r.logStorageOperation("RESET", key, nil)
	return nil
}

// Health verifica se o storage está saudável
func (r *RedisStorage) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logStorageOperation("HEALTH", "ping", err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close fecha a conexão com o storage
func (r *RedisStorage) Close() error {
	client, ok := r.client.(*redis.Client)
	if !ok {
		return nil
	}
	if err := client.Close(); err != nil {
		if r.logger != nil {
			r.logger.Error("Failed to close Redis connection", err, nil)
		}
		return err
	}
	if r.logger != nil {
		r.logger.Info("Redis connection closed", nil)
	}
	return nil
}

// logStorageOperation registra operações de storage
func (r *RedisStorage) logStorageOperation(operation, key string, err error) {
	if r.logger == nil {
		return
	}
	if err == nil {
		r.logger.Debug("Storage operation completed", map[string]interface{}{
			"operation": operation,
			"key":       key,
		})
		return
	}
	r.logger.Error("Storage operation failed", err, map[string]interface{}{
		"operation": operation,
		"key":       key,
	})
}
