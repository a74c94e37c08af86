package llm

import (
	"fmt"
	"strings"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/debate"
	"github.com/hazlamahedich/trade/pkg/models"
)

const bullSystemPrompt = `You argue the BULL case in a live trading debate about %s.
Present the optimistic case for buying.

Rules:
1. Cite the market data you are given: price and headlines.
2. Be confident but never promissory. Never call an outcome "guaranteed" or "risk-free".
3. When the bear has spoken, answer their last point directly.
4. Two or three sentences at most.`

const bearSystemPrompt = `You argue the BEAR case in a live trading debate about %s.
Present the cautious case against buying now.

Rules:
1. Cite the market data you are given: price and headlines.
2. Be firm but never promissory. Never call an outcome "guaranteed" or "certain".
3. When the bull has spoken, answer their last point directly.
4. Two or three sentences at most.`

// SystemPrompt returns the role instructions for speaker.
func SystemPrompt(speaker models.Speaker, asset string) string {
	if speaker == models.SpeakerBear {
		return fmt.Sprintf(bearSystemPrompt, asset)
	}
	return fmt.Sprintf(bullSystemPrompt, asset)
}

// UserPrompt renders the market context and the opponent's last argument.
func UserPrompt(req debate.TurnRequest) string {
	var b strings.Builder
	mc := req.Context

	fmt.Fprintf(&b, "Market context for %s:\n", mc.Asset)
	fmt.Fprintf(&b, "- Price: %s USD\n", mc.Price.StringFixed(2))
	if len(mc.NewsSummary) == 0 {
		b.WriteString("- Headlines: none\n")
	} else {
		b.WriteString("- Headlines:\n")
		for _, title := range mc.NewsSummary {
			fmt.Fprintf(&b, "  * %s\n", title)
		}
	}

	opponent := req.Speaker.Opponent()
	if req.OpposingArgument == "" {
		fmt.Fprintf(&b, "\nThe %s has not spoken yet. Open the debate.\n", opponent)
	} else {
		fmt.Fprintf(&b, "\nPrevious %s argument:\n%s\n", opponent, req.OpposingArgument)
	}
	fmt.Fprintf(&b, "\nTurn %d. Give your %s argument:", req.Turn, req.Speaker)
	return b.String()
}
