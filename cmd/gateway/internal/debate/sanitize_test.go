package debate_test

import (
	"testing"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/debate"
)

func TestSanitize_CaseInsensitive(t *testing.T) {
	for _, in := range []string{"GUARANTEED", "GuArAnTeEd", "guaranteed"} {
		out, n := debate.Sanitize("Returns are " + in + " here")
		if out != "Returns are [REDACTED] here" {
			t.Errorf("Sanitize(%q) = %q", in, out)
		}
		if n != 1 {
			t.Errorf("Expected 1 redaction for %q, got %d", in, n)
		}
	}
}

func TestSanitize_AllPhrases(t *testing.T) {
	in := "A Safe Bet, a sure thing, RISK-FREE, 100% upside, it certainly will rise, price always goes up"
	want := "A [REDACTED], a [REDACTED], [REDACTED], [REDACTED] upside, it [REDACTED] rise, price [REDACTED] up"

	out, n := debate.Sanitize(in)
	if out != want {
		t.Errorf("Got  %q\nWant %q", out, want)
	}
	if n != 6 {
		t.Errorf("Expected 6 redactions, got %d", n)
	}
}

func TestSanitize_SubstringMatch(t *testing.T) {
	out, _ := debate.Sanitize("unguaranteedness")
	if out != "un[REDACTED]ness" {
		t.Errorf("Expected substring redaction, got %q", out)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"BTC is guaranteed to moon, a sure thing",
		"Momentum looks constructive but volatility is high.",
		"[REDACTED] already",
		"100%100% guaranteedguaranteed",
	}
	for _, in := range inputs {
		once, _ := debate.Sanitize(in)
		twice, n := debate.Sanitize(once)
		if once != twice {
			t.Errorf("Not idempotent for %q: %q vs %q", in, once, twice)
		}
		if n != 0 {
			t.Errorf("Second pass redacted %d phrases in %q", n, once)
		}
	}
}

func TestSanitize_CleanTextUnchanged(t *testing.T) {
	in := "ETH at $3,012 with rising volume; downside risk remains if support breaks."
	out, n := debate.Sanitize(in)
	if out != in || n != 0 {
		t.Errorf("Clean text was modified: %q (%d)", out, n)
	}
}
