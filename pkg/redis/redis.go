package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/brightwire/cert-portal/config"
	"github.com/brightwire/cert-portal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// Init connects to Redis and verifies the connection with a ping
func Init(cfg *config.RedisConfig) error {
	logger.Info("Initializing Redis connection", map[string]interface{}{
		"host": cfg.Host,
		"port": cfg.Port,
		"db":   cfg.DB,
	})

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", err, map[string]interface{}{
			"host": cfg.Host,
			"port": cfg.Port,
		})
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established successfully")
	return nil
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	return client
}

// Close closes the Redis connection
func Close() error {
	if client != nil {
		logger.Info("Closing Redis connection")
		return client.Close()
	}
	return nil
}

// TokenStore keeps revoked access tokens, keyed by token id, until they would have expired anyway
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(c *redis.Client) *TokenStore {
	return &TokenStore{client: c}
}

func revokedKey(tokenID string) string {
	return "revoked:" + tokenID
}

// Revoke marks tokenID as logged out for ttl
func (s *TokenStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKey(tokenID), "revoked", ttl).Err(); err != nil {
		logger.Error("Failed to revoke token", err, map[string]interface{}{
			"ttl": ttl.String(),
		})
		return err
	}

	logger.Debug("Token revoked", map[string]interface{}{
		"ttl": ttl.String(),
	})
	return nil
}

// IsRevoked reports whether tokenID was logged out
func (s *TokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	val, err := s.client.Get(ctx, revokedKey(tokenID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		logger.Error("Failed to check revoked token", err)
		return false, err
	}
	return val == "revoked", nil
}
