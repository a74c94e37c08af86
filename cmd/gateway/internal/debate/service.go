package debate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/repository"
	"github.com/hazlamahedich/trade/pkg/market"
	"github.com/hazlamahedich/trade/pkg/models"
)

var ErrShuttingDown = errors.New("debate service is shutting down")

// MarketContextSource gates session start on fresh market data.
type MarketContextSource interface {
	Context(ctx context.Context, asset string) (*models.MarketContext, error)
}

// StartResult describes a session that was accepted.
type StartResult struct {
	DebateID string                 `json:"debateId"`
	Asset    string                 `json:"asset"`
	Status   models.SessionStatus   `json:"status"`
	MaxTurns int                    `json:"maxTurns"`
	Messages []models.DebateMessage `json:"messages,omitempty"`
}

// Service starts sessions and owns the goroutines that run them.
type Service struct {
	engine *Engine
	market MarketContextSource
	states repository.StateStore
	logger *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

func NewService(engine *Engine, src MarketContextSource, states repository.StateStore, logger *zap.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		engine:  engine,
		market:  src,
		states:  states,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start validates the asset, refuses missing or stale market data and then
// runs the session in the background. The request context only bounds the
// gating step; the session outlives the request.
func (s *Service) Start(ctx context.Context, asset string) (*StartResult, error) {
	id, mc, err := s.prepare(ctx, asset)
	if err != nil {
		return nil, err
	}
	if !s.track() {
		return nil, ErrShuttingDown
	}

	go func() {
		defer s.wg.Done()
		if _, err := s.engine.Run(s.baseCtx, id, *mc); err != nil {
			s.logger.Warn("Background debate ended with error", zap.String("session_id", id), zap.Error(err))
		}
	}()

	return &StartResult{
		DebateID: id,
		Asset:    mc.Asset,
		Status:   models.StatusRunning,
		MaxTurns: s.engine.MaxTurns(),
	}, nil
}

// Run is the synchronous variant of Start. It returns once the session is
// terminal, with the full transcript.
func (s *Service) Run(ctx context.Context, asset string) (*StartResult, error) {
	id, mc, err := s.prepare(ctx, asset)
	if err != nil {
		return nil, err
	}

	if !s.track() {
		return nil, ErrShuttingDown
	}
	defer s.wg.Done()

	runCtx, cancel := mergeCancel(ctx, s.baseCtx)
	defer cancel()

	transcript, err := s.engine.Run(runCtx, id, *mc)
	if err != nil {
		return nil, err
	}
	return &StartResult{
		DebateID: id,
		Asset:    mc.Asset,
		Status:   transcript.State.Status,
		MaxTurns: s.engine.MaxTurns(),
		Messages: transcript.Messages,
	}, nil
}

// State returns the stored snapshot of a session, nil when unknown or expired.
func (s *Service) State(ctx context.Context, sessionID string) (*models.SessionState, error) {
	return s.states.Get(ctx, sessionID)
}

// Shutdown cancels running sessions and waits for them to record their
// terminal state, or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Service) prepare(ctx context.Context, asset string) (string, *models.MarketContext, error) {
	if s.baseCtx.Err() != nil {
		return "", nil, ErrShuttingDown
	}

	sym, ok := market.NormalizeAsset(asset)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", market.ErrUnsupportedAsset, asset)
	}

	mc, err := s.market.Context(ctx, sym)
	if err != nil {
		return "", nil, err
	}
	if mc.IsStale {
		return "", nil, fmt.Errorf("%w: %s", market.ErrStaleMarketData, sym)
	}

	id := uuid.NewString()
	ready := models.SessionState{
		SessionID:      id,
		Status:         models.StatusReady,
		Asset:          mc.Asset,
		MaxTurns:       s.engine.MaxTurns(),
		CurrentSpeaker: models.SpeakerBull,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.states.Save(ctx, ready); err != nil {
		s.logger.Warn("Failed to save initial session state", zap.String("session_id", id), zap.Error(err))
	}
	s.logger.Info("Debate accepted", zap.String("session_id", id), zap.String("asset", mc.Asset))
	return id, mc, nil
}

// mergeCancel returns a context cancelled when either parent is.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
