// Package llm holds the turn generators behind the debate engine.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/debate"
	"github.com/hazlamahedich/trade/pkg/config"
)

// ErrEmptyCompletion is returned when the stream ends without any content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// OpenAIGenerator streams arguments from an OpenAI compatible chat endpoint.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *zap.Logger
}

func NewOpenAIGenerator(cfg config.LLMConfig, logger *zap.Logger, opts ...option.RequestOption) *OpenAIGenerator {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIGenerator{
		client:      openai.NewClient(reqOpts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req debate.TurnRequest, tokens chan<- string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(req.Speaker, req.Context.Asset)),
			openai.UserMessage(UserPrompt(req)),
		},
		Temperature: openai.Float(g.temperature),
	}

	stream := g.client.Chat.Completions.NewStreaming(ctx, params)
	if stream == nil {
		return "", errors.New("llm: streaming not supported")
	}
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			tok := choice.Delta.Content
			if tok == "" {
				continue
			}
			text.WriteString(tok)
			select {
			case tokens <- tok:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("llm: stream %s: %w", g.model, err)
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", ErrEmptyCompletion
	}

	g.logger.Debug("Turn generated",
		zap.String("session_id", req.SessionID),
		zap.String("speaker", string(req.Speaker)),
		zap.Int("turn", req.Turn),
		zap.Int("chars", len(out)),
	)
	return out, nil
}
