package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"raffle-system/config"
)

// ThrottleService tracks payment failures per client identity and blocks
// identities that fail too often inside the window. It is purely advisory to
// the raffle core: redis being unavailable never fails an entry.
type ThrottleService struct {
	Redis *redis.Client
	cfg   *config.Config
}

func NewThrottleService(redisClient *redis.Client, cfg *config.Config) *ThrottleService {
	return &ThrottleService{Redis: redisClient, cfg: cfg}
}

// IsBlocked reports whether the client identity is currently blocked.
func (t *ThrottleService) IsBlocked(ctx context.Context, clientID string) (bool, error) {
	blockKey := fmt.Sprintf("throttle:block:%s", clientID)

	exists, err := t.Redis.Exists(ctx, blockKey).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// RecordFailure logs one payment failure for the client identity and blocks it
// once the failure count reaches the configured threshold. Returns whether the
// identity is now blocked.
func (t *ThrottleService) RecordFailure(ctx context.Context, clientID, failureContext string) (bool, error) {
	failKey := fmt.Sprintf("throttle:fail:%s", clientID)
	logKey := fmt.Sprintf("throttle:log:%s", clientID)

	count, err := t.Redis.Incr(ctx, failKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		t.Redis.Expire(ctx, failKey, t.cfg.ThrottleWindow)
	}

	// Failure-attempt log, capped and expiring with the window.
	entry, _ := json.Marshal(map[string]any{
		"context": failureContext,
		"at":      time.Now().Unix(),
	})
	t.Redis.LPush(ctx, logKey, string(entry))
	t.Redis.LTrim(ctx, logKey, 0, 99)
	t.Redis.Expire(ctx, logKey, t.cfg.ThrottleWindow)

	if count < int64(t.cfg.ThrottleMaxFailures) {
		return false, nil
	}

	blockKey := fmt.Sprintf("throttle:block:%s", clientID)
	if err := t.Redis.Set(ctx, blockKey, count, t.cfg.ThrottleBlockTTL).Err(); err != nil {
		return false, err
	}

	slog.Warn("client blocked by throttle", "client", clientID, "failures", count)
	return true, nil
}
