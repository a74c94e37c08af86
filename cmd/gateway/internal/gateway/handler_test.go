package gateway_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/gateway"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/testutils"
	"github.com/hazlamahedich/trade/pkg/models"
)

func TestStaticTokenAuthenticator(t *testing.T) {
	auth := gateway.NewStaticTokenAuthenticator([]string{" qa-token ", "", "second"})
	ctx := context.Background()

	cases := map[string]bool{
		"qa-token":  true,
		"second":    true,
		"":          false,
		"qa-token ": false,
		"QA-TOKEN":  false,
		"other":     false,
	}
	for token, want := range cases {
		if got := auth.Authenticate(ctx, token); got != want {
			t.Errorf("Authenticate(%q) = %v, want %v", token, got, want)
		}
	}

	if gateway.NewStaticTokenAuthenticator(nil).Authenticate(ctx, "anything") {
		t.Error("No configured tokens must reject everything")
	}
}

func TestOriginPolicy(t *testing.T) {
	dev := gateway.NewOriginPolicy([]string{"http://localhost:3000/", "https://app.example.com"}, false)
	prod := gateway.NewOriginPolicy([]string{"https://app.example.com"}, true)

	if !dev.Allowed("http://localhost:3000") {
		t.Error("Listed origin should pass")
	}
	if !dev.Allowed("https://app.example.com/") {
		t.Error("Trailing slash should not matter")
	}
	if dev.Allowed("https://evil.example.com") {
		t.Error("Unlisted origin should be rejected")
	}
	if !dev.Allowed("") {
		t.Error("Missing origin is allowed outside production")
	}
	if prod.Allowed("") {
		t.Error("Missing origin must be rejected in production")
	}
	if !prod.Allowed("https://app.example.com") {
		t.Error("Listed origin should pass in production")
	}
}

func TestAdmit(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	limiter := &testutils.MockRateLimiter{Limit: 2}
	for i := 1; i <= 3; i++ {
		got := gateway.Admit(ctx, limiter, "10.0.0.1", logger)
		if want := i <= 2; got != want {
			t.Errorf("Attempt %d: admitted=%v, want %v", i, got, want)
		}
	}
	if !gateway.Admit(ctx, limiter, "10.0.0.2", logger) {
		t.Error("Windows are per address")
	}

	for _, ip := range []string{"", "unknown"} {
		if gateway.Admit(ctx, limiter, ip, logger) {
			t.Errorf("Address %q must be rejected", ip)
		}
	}

	down := &testutils.MockRateLimiter{Err: errors.New("redis down")}
	if !gateway.Admit(ctx, down, "10.0.0.1", logger) {
		t.Error("Store failure must admit the attempt")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/debate/x", nil)
	r.RemoteAddr = "192.0.2.7:51234"
	if got := gateway.ClientIP(r); got != "192.0.2.7" {
		t.Errorf("Expected 192.0.2.7, got %q", got)
	}

	r.RemoteAddr = "[2001:db8::1]:443"
	if got := gateway.ClientIP(r); got != "2001:db8::1" {
		t.Errorf("Expected IPv6 host, got %q", got)
	}
}

func TestSessionStatus(t *testing.T) {
	ctx := context.Background()
	states := testutils.NewMockStateStore()

	if got := gateway.SessionStatus(ctx, states, "missing", zap.NewNop()); got != models.StatusReady {
		t.Errorf("Unknown session should be ready, got %s", got)
	}

	states.Save(ctx, models.SessionState{SessionID: "s1", Status: models.StatusRunning})
	if got := gateway.SessionStatus(ctx, states, "s1", zap.NewNop()); got != models.StatusRunning {
		t.Errorf("Expected running, got %s", got)
	}

	states.Fail = true
	if got := gateway.SessionStatus(ctx, states, "s1", zap.NewNop()); got != models.StatusReady {
		t.Errorf("Store failure should read as ready, got %s", got)
	}
}
