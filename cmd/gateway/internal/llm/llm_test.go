package llm_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/debate"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/llm"
	"github.com/hazlamahedich/trade/pkg/config"
	"github.com/hazlamahedich/trade/pkg/models"
)

func turnRequest(speaker models.Speaker, turn int, opposing string) debate.TurnRequest {
	return debate.TurnRequest{
		SessionID: "s1",
		Speaker:   speaker,
		Turn:      turn,
		Context: models.MarketContext{
			Asset:       "BTC",
			Price:       decimal.RequireFromString("64250.1"),
			NewsSummary: []string{"ETF inflows rise", "Hashrate hits record"},
		},
		OpposingArgument: opposing,
	}
}

func sseServer(t *testing.T, chunks []string, body *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		if body != nil {
			require.NoError(t, json.Unmarshal(raw, body))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			payload, _ := json.Marshal(map[string]interface{}{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"created": 1714564800,
				"model":   "gpt-4o-mini",
				"choices": []map[string]interface{}{
					{"index": 0, "delta": map[string]string{"content": c}, "finish_reason": nil},
				},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			w.(http.Flusher).Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGenerator(url string) *llm.OpenAIGenerator {
	return llm.NewOpenAIGenerator(config.LLMConfig{
		APIKey:      "test-key",
		BaseURL:     url,
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
	}, zap.NewNop(), option.WithMaxRetries(0))
}

func collect(tokens chan string) []string {
	close(tokens)
	var out []string
	for tok := range tokens {
		out = append(out, tok)
	}
	return out
}

func TestOpenAIGenerator_StreamsTokens(t *testing.T) {
	var body map[string]interface{}
	srv := sseServer(t, []string{"Demand ", "is ", "", "building."}, &body)
	gen := newGenerator(srv.URL)

	tokens := make(chan string, 16)
	text, err := gen.Generate(context.Background(), turnRequest(models.SpeakerBull, 1, ""), tokens)
	require.NoError(t, err)

	assert.Equal(t, "Demand is building.", text)
	assert.Equal(t, []string{"Demand ", "is ", "building."}, collect(tokens))

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.InDelta(t, 0.7, body["temperature"], 0.0001)

	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	system := msgs[0].(map[string]interface{})
	user := msgs[1].(map[string]interface{})
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "BULL")
	assert.Equal(t, "user", user["role"])
	assert.Contains(t, user["content"], "64250.10")
	assert.Contains(t, user["content"], "ETF inflows rise")
}

func TestOpenAIGenerator_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	tokens := make(chan string, 4)
	_, err := newGenerator(srv.URL).Generate(context.Background(), turnRequest(models.SpeakerBear, 2, "x"), tokens)
	require.Error(t, err)
	assert.Empty(t, collect(tokens))
}

func TestOpenAIGenerator_EmptyCompletion(t *testing.T) {
	srv := sseServer(t, []string{"", "  "}, nil)

	_, err := newGenerator(srv.URL).Generate(context.Background(), turnRequest(models.SpeakerBull, 1, ""), make(chan string, 4))
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}

func TestPrompts(t *testing.T) {
	assert.Contains(t, llm.SystemPrompt(models.SpeakerBull, "ETH"), "BULL case")
	assert.Contains(t, llm.SystemPrompt(models.SpeakerBear, "ETH"), "BEAR case")
	assert.Contains(t, llm.SystemPrompt(models.SpeakerBear, "ETH"), "ETH")

	opening := llm.UserPrompt(turnRequest(models.SpeakerBull, 1, ""))
	assert.Contains(t, opening, "The bear has not spoken yet")
	assert.Contains(t, opening, "Hashrate hits record")

	reply := llm.UserPrompt(turnRequest(models.SpeakerBear, 2, "Demand is building."))
	assert.Contains(t, reply, "Previous bull argument:\nDemand is building.")
	assert.Contains(t, reply, "Turn 2")

	empty := turnRequest(models.SpeakerBull, 1, "")
	empty.Context.NewsSummary = nil
	assert.Contains(t, llm.UserPrompt(empty), "Headlines: none")
}

func TestOfflineGenerator(t *testing.T) {
	gen := llm.NewOfflineGenerator(0)

	for turn := 1; turn <= 4; turn++ {
		speaker := models.SpeakerBull
		if turn%2 == 0 {
			speaker = models.SpeakerBear
		}
		tokens := make(chan string, 64)
		text, err := gen.Generate(context.Background(), turnRequest(speaker, turn, "prior"), tokens)
		require.NoError(t, err)

		assert.Equal(t, text, strings.Join(collect(tokens), ""))
		assert.Contains(t, text, "$64250.10")

		clean, n := debate.Sanitize(text)
		assert.Zero(t, n, "offline arguments must not need redaction")
		assert.Equal(t, text, clean)

		again, _ := gen.Generate(context.Background(), turnRequest(speaker, turn, "prior"), make(chan string, 64))
		assert.Equal(t, text, again, "output is deterministic")
	}
}

func TestOfflineGenerator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := llm.NewOfflineGenerator(0).Generate(ctx, turnRequest(models.SpeakerBull, 1, ""), make(chan string))
	assert.ErrorIs(t, err, context.Canceled)
}
