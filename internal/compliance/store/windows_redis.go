package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tranche/internal/compliance/models"
	id "tranche/pkg/domain"
)

// RedisWindows persists rolling-window usage in Redis so multiple service
// instances observe one usage record per account. Keys expire a monthly
// window after their last write; an expired key reads as zero usage, which
// matches the lazy reset the engine would apply anyway.
type RedisWindows struct {
	client *redis.Client
}

func NewRedisWindows(client *redis.Client) *RedisWindows {
	return &RedisWindows{client: client}
}

func windowKey(asset id.AssetID, account id.AccountID) string {
	return fmt.Sprintf("tranche:windows:%s:%s", asset, account)
}

func (s *RedisWindows) Usage(ctx context.Context, asset id.AssetID, account id.AccountID) (models.WindowUsage, error) {
	raw, err := s.client.Get(ctx, windowKey(asset, account)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.WindowUsage{}, nil
	}
	if err != nil {
		return models.WindowUsage{}, fmt.Errorf("get window usage: %w", err)
	}
	var u models.WindowUsage
	if err := json.Unmarshal(raw, &u); err != nil {
		return models.WindowUsage{}, fmt.Errorf("decode window usage: %w", err)
	}
	return u, nil
}

func (s *RedisWindows) Put(ctx context.Context, asset id.AssetID, account id.AccountID, u models.WindowUsage) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode window usage: %w", err)
	}
	if err := s.client.Set(ctx, windowKey(asset, account), raw, models.MonthlyWindow+models.DailyWindow).Err(); err != nil {
		return fmt.Errorf("put window usage: %w", err)
	}
	return nil
}
