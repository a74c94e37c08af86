package debate

import (
	"context"

	"github.com/hazlamahedich/trade/pkg/models"
)

// TurnRequest is everything a generator needs to write one argument.
type TurnRequest struct {
	SessionID        string
	Speaker          models.Speaker
	Turn             int // 1-based number of the turn being written
	Context          models.MarketContext
	OpposingArgument string // empty on the opening turn
}

// TurnGenerator writes one argument. Partial output may be pushed to tokens as
// it is produced; the full text is returned. The caller owns tokens and closes
// it after Generate returns, so implementations must not close it or keep a
// reference to it.
type TurnGenerator interface {
	Generate(ctx context.Context, req TurnRequest, tokens chan<- string) (string, error)
}
