package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/gamehall/internal/storage"
	"github.com/redis/go-redis/v9"
)

const ratePrefix = "rate:"

type settingsStore struct {
	client *redis.Client
}

// Get returns the stored settings
func (s *settingsStore) Get(ctx context.Context) (*storage.Settings, error) {
	data, err := s.client.HGetAll(ctx, keySettings).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	settings := &storage.Settings{
		Rates: storage.Rates{},
		Theme: data["theme"],
	}
	for field, value := range data {
		if !strings.HasPrefix(field, ratePrefix) {
			continue
		}
		rate, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", field, err)
		}
		settings.Rates[storage.Mode(strings.TrimPrefix(field, ratePrefix))] = rate
	}
	if raw := data["updated_at"]; raw != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		settings.UpdatedAt = updatedAt
	}
	return settings, nil
}

// Put replaces the stored settings
func (s *settingsStore) Put(ctx context.Context, settings storage.Settings) error {
	fields := []interface{}{
		"theme", settings.Theme,
		"updated_at", settings.UpdatedAt.Format(time.RFC3339Nano),
	}
	for mode, rate := range settings.Rates {
		fields = append(fields, ratePrefix+string(mode), rate)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keySettings)
		pipe.HSet(ctx, keySettings, fields...)
		return nil
	})
	return err
}
