package reconcile

import (
	"context"
	"fmt"
	"time"
)

const orderNoDayFormat = "20060102"

// NextOrderNumber issues a unique order number: prefix, compact date,
// zero-padded sequence. The sequence comes from the ledger's atomic
// per-day counter, so concurrent issuance from different processes never
// collides.
func (e *Engine) NextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	day := at.UTC().Format(orderNoDayFormat)
	seq, err := e.ledger.NextOrderSequence(ctx, day)
	if err != nil {
		return "", fmt.Errorf("failed to advance order sequence for %s: %w", day, err)
	}
	return fmt.Sprintf("%s%s%04d", e.orderNoPrefix, day, seq), nil
}
