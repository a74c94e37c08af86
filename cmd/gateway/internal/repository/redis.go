package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hazlamahedich/trade/pkg/models"
	"github.com/hazlamahedich/trade/pkg/ratelimit"
)

const (
	stateKeyPrefix     = "debate_stream:"
	rateLimitKeyPrefix = "ws_rate_limit:"
)

// Compile-time check to ensure RedisStore implements StateStore and RateLimiter
var (
	_ StateStore  = (*RedisStore)(nil)
	_ RateLimiter = (*RedisStore)(nil)
)

type RedisStore struct {
	client   redis.Cmdable
	stateTTL time.Duration
	window   *ratelimit.Window
}

// NewRedisStore builds the gateway's Redis-backed state and admission store.
// Every Save refreshes stateTTL; connection attempts are limited to limit per
// window for each address.
func NewRedisStore(client redis.Cmdable, stateTTL time.Duration, limit int, window time.Duration) *RedisStore {
	return &RedisStore{
		client:   client,
		stateTTL: stateTTL,
		window:   ratelimit.NewWindow(client, rateLimitKeyPrefix, limit, window),
	}
}

// Save overwrites the whole snapshot and restarts its expiry.
func (r *RedisStore) Save(ctx context.Context, state models.SessionState) error {
	if state.SessionID == "" {
		return errors.New("session state without id")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", state.SessionID, err)
	}
	if err := r.client.Set(ctx, stateKeyPrefix+state.SessionID, payload, r.stateTTL).Err(); err != nil {
		return fmt.Errorf("save state %s: %w", state.SessionID, err)
	}
	return nil
}

// Get returns nil without error when the session has no stored state.
func (r *RedisStore) Get(ctx context.Context, sessionID string) (*models.SessionState, error) {
	payload, err := r.client.Get(ctx, stateKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", sessionID, err)
	}

	var state models.SessionState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", sessionID, err)
	}
	return &state, nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, stateKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete state %s: %w", sessionID, err)
	}
	return nil
}

func (r *RedisStore) Allow(ctx context.Context, ip string) (bool, error) {
	return r.window.Allow(ctx, ip)
}
