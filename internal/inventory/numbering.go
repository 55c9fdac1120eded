package inventory

import (
	"context"
	"fmt"
	"time"
)

// Document number prefixes.
const (
	PrefixAdjustment  = "ADJ"
	PrefixFulfillment = "FUL"
)

// Sequencer hands out a gapless per-(prefix, day) counter.
type Sequencer interface {
	NextSequence(ctx context.Context, prefix string, day time.Time) (int64, error)
}

// NextNumber allocates the next document number for prefix on the UTC day of at.
func NextNumber(ctx context.Context, seq Sequencer, prefix string, at time.Time) (string, error) {
	day := truncateDay(at)
	n, err := seq.NextSequence(ctx, prefix, day)
	if err != nil {
		return "", fmt.Errorf("inventory: next %s number: %w", prefix, err)
	}
	return FormatNumber(prefix, day, n), nil
}

// FormatNumber renders PREFIX-YYYYMMDD-NNNN.
func FormatNumber(prefix string, day time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.UTC().Format("20060102"), seq)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
