package debate

import "regexp"

const redactionMarker = "[REDACTED]"

// promissoryPhrases are redacted from every completed argument before it is
// broadcast or stored. Streamed tokens are forwarded as generated.
var promissoryPhrases = []string{
	"guaranteed",
	"risk-free",
	"safe bet",
	"sure thing",
	"100%",
	"certainly will",
	"always goes",
}

var promissoryPatterns = compilePatterns(promissoryPhrases)

func compilePatterns(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(p)))
	}
	return out
}

// Sanitize replaces every denylisted phrase, in any casing, with [REDACTED].
// It returns the cleaned text and the number of replacements.
func Sanitize(content string) (string, int) {
	redacted := 0
	for _, re := range promissoryPatterns {
		matches := re.FindAllStringIndex(content, -1)
		if len(matches) == 0 {
			continue
		}
		redacted += len(matches)
		content = re.ReplaceAllLiteralString(content, redactionMarker)
	}
	return content, redacted
}
