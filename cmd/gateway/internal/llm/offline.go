package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/debate"
	"github.com/hazlamahedich/trade/pkg/models"
)

// OfflineGenerator writes deterministic arguments from the market context.
// It stands in for the LLM in local and test environments.
type OfflineGenerator struct {
	tokenDelay time.Duration
}

// NewOfflineGenerator returns a generator that pauses tokenDelay between
// streamed words. Zero streams as fast as the consumer reads.
func NewOfflineGenerator(tokenDelay time.Duration) *OfflineGenerator {
	return &OfflineGenerator{tokenDelay: tokenDelay}
}

func (g *OfflineGenerator) Generate(ctx context.Context, req debate.TurnRequest, tokens chan<- string) (string, error) {
	text := offlineArgument(req)

	for _, word := range strings.SplitAfter(text, " ") {
		if g.tokenDelay > 0 {
			select {
			case <-time.After(g.tokenDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		select {
		case tokens <- word:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, nil
}

func offlineArgument(req debate.TurnRequest) string {
	mc := req.Context
	price := mc.Price.StringFixed(2)

	headline := "no fresh headlines"
	if len(mc.NewsSummary) > 0 {
		headline = fmt.Sprintf("the headline %q", mc.NewsSummary[(req.Turn-1)%len(mc.NewsSummary)])
	}

	var b strings.Builder
	if req.Speaker == models.SpeakerBear {
		fmt.Fprintf(&b, "%s at $%s already prices in %s, and momentum can reverse quickly.", mc.Asset, price, headline)
		if req.OpposingArgument != "" {
			b.WriteString(" The bull case leans on sentiment more than on the numbers.")
		}
		b.WriteString(" Sizing carefully matters more than chasing the move.")
		return b.String()
	}

	fmt.Fprintf(&b, "%s trading at $%s with %s points to building demand.", mc.Asset, price, headline)
	if req.OpposingArgument != "" {
		b.WriteString(" The bear's caution ignores how the data has held up.")
	}
	b.WriteString(" Risk exists, but the setup favors buyers here.")
	return b.String()
}
