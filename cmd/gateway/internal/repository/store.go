package repository

import (
	"context"

	"github.com/hazlamahedich/trade/pkg/models"
)

// StateStore keeps the resumable snapshot of each debate session.
type StateStore interface {
	Save(ctx context.Context, state models.SessionState) error
	Get(ctx context.Context, sessionID string) (*models.SessionState, error)
	Delete(ctx context.Context, sessionID string) error
}

// RateLimiter counts connection attempts per client address.
type RateLimiter interface {
	Allow(ctx context.Context, ip string) (bool, error)
}
