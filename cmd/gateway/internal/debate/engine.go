package debate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/metrics"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/protocol"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/repository"
	"github.com/hazlamahedich/trade/pkg/models"
)

// ErrGenerator marks a turn that failed inside the turn generator.
var ErrGenerator = errors.New("turn generator failed")

const stateWriteTimeout = 5 * time.Second

// Broadcaster delivers an event to every subscriber of a session.
type Broadcaster interface {
	Broadcast(sessionID string, event interface{}) int
}

// Journal records lifecycle transitions of a session.
type Journal interface {
	Record(ctx context.Context, state models.SessionState)
}

// Transcript is the outcome of a finished session.
type Transcript struct {
	State    models.SessionState
	Messages []models.DebateMessage
}

// Engine runs the bull/bear turn loop of one session at a time per call.
// Sessions are independent: Run may be called concurrently for different ids.
type Engine struct {
	generator TurnGenerator
	hub       Broadcaster
	states    repository.StateStore
	journal   Journal
	metrics   *metrics.Metrics
	logger    *zap.Logger
	maxTurns  int
}

func NewEngine(
	generator TurnGenerator,
	hub Broadcaster,
	states repository.StateStore,
	journal Journal,
	m *metrics.Metrics,
	logger *zap.Logger,
	maxTurns int,
) *Engine {
	return &Engine{
		generator: generator,
		hub:       hub,
		states:    states,
		journal:   journal,
		metrics:   m,
		logger:    logger,
		maxTurns:  maxTurns,
	}
}

// MaxTurns is the configured length of a session.
func (e *Engine) MaxTurns() int { return e.maxTurns }

// Run drives a session from running to completed or error. A failed turn is
// fatal for the session and is not retried.
func (e *Engine) Run(ctx context.Context, sessionID string, mc models.MarketContext) (*Transcript, error) {
	log := e.logger.With(zap.String("session_id", sessionID), zap.String("asset", mc.Asset))

	state := models.SessionState{
		SessionID:      sessionID,
		Status:         models.StatusRunning,
		Asset:          mc.Asset,
		CurrentTurn:    0,
		MaxTurns:       e.maxTurns,
		CurrentSpeaker: models.SpeakerBull,
	}
	transcript := &Transcript{Messages: make([]models.DebateMessage, 0, e.maxTurns)}

	e.persist(ctx, &state, log)
	e.broadcast(sessionID, protocol.ActionStatusUpdate, protocol.StatusPayload{DebateID: sessionID, Status: state.Status})
	log.Info("Debate started", zap.Int("max_turns", e.maxTurns))

	for state.CurrentTurn < e.maxTurns {
		speaker := state.CurrentSpeaker
		req := TurnRequest{
			SessionID:        sessionID,
			Speaker:          speaker,
			Turn:             state.CurrentTurn + 1,
			Context:          mc,
			OpposingArgument: lastArgumentOf(transcript.Messages, speaker.Opponent()),
		}

		text, err := e.generate(ctx, req)
		if err != nil {
			return e.fail(ctx, &state, transcript, err, log)
		}

		clean, redacted := Sanitize(text)
		if redacted > 0 {
			log.Warn("Redacted promissory phrases", zap.String("speaker", string(speaker)), zap.Int("count", redacted))
		}

		transcript.Messages = append(transcript.Messages, models.DebateMessage{
			Speaker: speaker,
			Content: clean,
			Turn:    req.Turn,
		})
		state.CurrentTurn = req.Turn
		state.CurrentSpeaker = speaker.Opponent()
		e.metrics.TurnCompleted(redacted)

		e.broadcast(sessionID, protocol.ActionArgumentComplete, protocol.ArgumentPayload{
			DebateID: sessionID,
			Agent:    speaker,
			Content:  clean,
			Turn:     state.CurrentTurn,
		})
		e.broadcast(sessionID, protocol.ActionTurnChange, protocol.TurnChangePayload{
			DebateID:     sessionID,
			CurrentAgent: state.CurrentSpeaker,
		})
		e.persist(ctx, &state, log)
	}

	state.Status = models.StatusCompleted
	e.persist(ctx, &state, log)
	e.broadcast(sessionID, protocol.ActionStatusUpdate, protocol.StatusPayload{DebateID: sessionID, Status: state.Status})
	e.metrics.SessionFinished(string(state.Status))
	log.Info("Debate completed", zap.Int("turns", state.CurrentTurn))

	transcript.State = state
	return transcript, nil
}

// generate runs one turn and re-broadcasts every token the generator emits.
func (e *Engine) generate(ctx context.Context, req TurnRequest) (text string, err error) {
	tokens := make(chan string, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for tok := range tokens {
			e.broadcast(req.SessionID, protocol.ActionTokenReceived, protocol.TokenPayload{
				DebateID: req.SessionID,
				Agent:    req.Speaker,
				Token:    tok,
				Turn:     req.Turn,
			})
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrGenerator, r)
		}
		close(tokens)
		wg.Wait()
	}()

	text, err = e.generator.Generate(ctx, req, tokens)
	if err != nil {
		return "", fmt.Errorf("%w: %s turn %d: %v", ErrGenerator, req.Speaker, req.Turn, err)
	}
	return text, nil
}

func (e *Engine) fail(ctx context.Context, state *models.SessionState, transcript *Transcript, cause error, log *zap.Logger) (*Transcript, error) {
	log.Error("Debate failed", zap.Int("turn", state.CurrentTurn+1), zap.Error(cause))

	state.Status = models.StatusError
	state.Error = cause.Error()
	e.persist(ctx, state, log)
	e.broadcast(state.SessionID, protocol.ActionStatusUpdate, protocol.StatusPayload{DebateID: state.SessionID, Status: state.Status})
	e.broadcast(state.SessionID, protocol.ActionError, protocol.ErrorPayload{
		Code:    protocol.ErrCodeDebateFailed,
		Message: cause.Error(),
	})
	e.metrics.SessionFinished(string(state.Status))

	transcript.State = *state
	return transcript, cause
}

// persist writes the snapshot and journals it. A store failure is logged: the
// session keeps streaming and reconnecting viewers fall back to "ready".
func (e *Engine) persist(ctx context.Context, state *models.SessionState, log *zap.Logger) {
	state.UpdatedAt = time.Now().UTC()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
	defer cancel()

	if err := e.states.Save(writeCtx, *state); err != nil {
		log.Warn("Failed to save session state", zap.String("status", string(state.Status)), zap.Error(err))
	}
	if e.journal != nil {
		e.journal.Record(writeCtx, *state)
	}
}

func (e *Engine) broadcast(sessionID, typ string, payload interface{}) {
	e.hub.Broadcast(sessionID, protocol.NewEvent(typ, payload))
	e.metrics.EventBroadcast(typ)
}

func lastArgumentOf(msgs []models.DebateMessage, speaker models.Speaker) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Speaker == speaker {
			return msgs[i].Content
		}
	}
	return ""
}
