package gateway

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/hub"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/metrics"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/protocol"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/repository"
)

// Authenticator validates the credential presented on the stream URL.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) bool
}

// StaticTokenAuthenticator accepts a fixed set of tokens.
type StaticTokenAuthenticator struct {
	tokens []string
}

func NewStaticTokenAuthenticator(tokens []string) *StaticTokenAuthenticator {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return &StaticTokenAuthenticator{tokens: out}
}

func (a *StaticTokenAuthenticator) Authenticate(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	for _, t := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

// OriginPolicy allow-lists browser origins. A missing Origin header is only
// accepted outside production, for non-browser tooling.
type OriginPolicy struct {
	allowed    map[string]struct{}
	allowEmpty bool
}

func NewOriginPolicy(origins []string, production bool) OriginPolicy {
	p := OriginPolicy{allowed: make(map[string]struct{}, len(origins)), allowEmpty: !production}
	for _, o := range origins {
		p.allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return p
}

func (p OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return p.allowEmpty
	}
	_, ok := p.allowed[strings.TrimRight(origin, "/")]
	return ok
}

// Admit applies the connection-attempt ceiling. An unknown address is
// rejected; a store failure admits the attempt.
func Admit(ctx context.Context, limiter repository.RateLimiter, ip string, logger *zap.Logger) bool {
	if ip == "" || ip == "unknown" {
		return false
	}
	ok, err := limiter.Allow(ctx, ip)
	if err != nil {
		logger.Warn("Rate limiter unavailable, admitting connection", zap.String("ip", ip), zap.Error(err))
		return true
	}
	return ok
}

// Handler upgrades stream requests and attaches admitted viewers to the hub.
type Handler struct {
	hub      *hub.Hub
	states   repository.StateStore
	limiter  repository.RateLimiter
	auth     Authenticator
	origins  OriginPolicy
	metrics  *metrics.Metrics
	logger   *zap.Logger
	timeouts Timeouts
}

func NewHandler(
	h *hub.Hub,
	states repository.StateStore,
	limiter repository.RateLimiter,
	auth Authenticator,
	origins OriginPolicy,
	m *metrics.Metrics,
	logger *zap.Logger,
	t Timeouts,
) *Handler {
	return &Handler{
		hub:      h,
		states:   states,
		limiter:  limiter,
		auth:     auth,
		origins:  origins,
		metrics:  m,
		logger:   logger,
		timeouts: t,
	}
}

// ServeStream handles one viewer of sessionID. Checks run after the upgrade so
// a rejected client sees the close code: admission, origin, credentials, then
// session id format.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Debug("Upgrade failed", zap.Error(err))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Stream handler panicked", zap.String("session_id", sessionID), zap.Any("panic", rec))
			h.reject(conn, protocol.CloseInternalError, "panic")
		}
	}()

	ctx := r.Context()
	ip := ClientIP(r)

	if !Admit(ctx, h.limiter, ip, h.logger) {
		h.reject(conn, protocol.CloseRateLimited, "rate_limited")
		return
	}
	if !h.origins.Allowed(r.Header.Get("Origin")) {
		h.reject(conn, protocol.CloseOriginNotAllowed, "origin")
		return
	}
	if !h.auth.Authenticate(ctx, r.URL.Query().Get("token")) {
		h.reject(conn, protocol.CloseUnauthorized, "unauthorized")
		return
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		h.reject(conn, protocol.CloseDebateNotFound, "not_found")
		return
	}

	status := SessionStatus(ctx, h.states, sessionID, h.logger)
	client := NewClient(conn, h.hub, h.states, sessionID, h.logger, h.timeouts)
	client.Start(status)
	h.logger.Info("Viewer connected", zap.String("session_id", sessionID), zap.String("ip", ip), zap.String("status", string(status)))
}

func (h *Handler) reject(conn net.Conn, code ws.StatusCode, label string) {
	h.metrics.ConnectionRejected(label)
	h.logger.Info("Rejected stream connection", zap.Int("code", int(code)), zap.String("reason", label))
	conn.SetWriteDeadline(time.Now().Add(h.timeouts.WriteWait))
	writeClose(conn, code, protocol.CloseReason(code))
	conn.Close()
}

// ClientIP is the peer address of the request without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
