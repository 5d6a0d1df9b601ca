package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/gamehall/internal/config"
	"github.com/goodtune/gamehall/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyStationPrefix  = "gamehall:station:"
	keyStations       = "gamehall:stations"
	keySessionPrefix  = "gamehall:session:"
	keySessionsActive = "gamehall:sessions:active"
	keySessionsStart  = "gamehall:sessions:by_start"
	keySettings       = "gamehall:settings"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client        *redis.Client
	stationStore  *stationStore
	sessionStore  *sessionStore
	settingsStore *settingsStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry a port
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newStore(client), nil
}

func newStore(client *redis.Client) *Store {
	return &Store{
		client:        client,
		stationStore:  &stationStore{client: client},
		sessionStore:  &sessionStore{client: client},
		settingsStore: &settingsStore{client: client},
	}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Stations returns the StationStore implementation
func (s *Store) Stations() storage.StationStore {
	return s.stationStore
}

// Sessions returns the SessionStore implementation
func (s *Store) Sessions() storage.SessionStore {
	return s.sessionStore
}

// Settings returns the SettingsStore implementation
func (s *Store) Settings() storage.SettingsStore {
	return s.settingsStore
}

func stationKey(id string) string { return keyStationPrefix + id }

func sessionKey(id string) string { return keySessionPrefix + id }
