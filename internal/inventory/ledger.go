package inventory

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"
)

// StockLedger is the only writer of stock level quantities. Every method runs
// inside the caller's transaction.
type StockLedger struct {
	clock func() time.Time
}

// GetOrCreate returns the row for key, creating a zero level first when it
// does not exist yet. The row stays locked until the transaction ends.
func (l StockLedger) GetOrCreate(ctx context.Context, tx TxRepository, key StockKey) (StockLevel, error) {
	level, err := tx.GetStockLevelForUpdate(ctx, key)
	if err == nil {
		return level, nil
	}
	if !errors.Is(err, ErrStockLevelNotFound) {
		return StockLevel{}, err
	}
	if err := tx.EnsureStockLevel(ctx, key, l.clock()); err != nil {
		return StockLevel{}, err
	}
	return tx.GetStockLevelForUpdate(ctx, key)
}

// Lock acquires the rows of keys in canonical order (location, then variant)
// so that concurrent multi-row writers never wait on each other in a cycle.
func (l StockLedger) Lock(ctx context.Context, tx TxRepository, keys ...StockKey) (map[StockKey]StockLevel, error) {
	ordered := canonicalKeys(keys)
	levels := make(map[StockKey]StockLevel, len(ordered))
	for _, key := range ordered {
		level, err := l.GetOrCreate(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		levels[key] = level
	}
	return levels, nil
}

// ApplyDelta changes on-hand and reserved quantities of key. A delta that
// would break 0 <= reserved <= on_hand is rejected before anything is written.
func (l StockLedger) ApplyDelta(ctx context.Context, tx TxRepository, key StockKey, deltaOnHand, deltaReserved int64) (StockLevel, error) {
	level, err := l.GetOrCreate(ctx, tx, key)
	if err != nil {
		return StockLevel{}, err
	}
	if deltaOnHand == 0 && deltaReserved == 0 {
		return level, nil
	}
	next := level
	next.OnHand += deltaOnHand
	next.Reserved += deltaReserved
	switch {
	case next.Reserved < 0:
		return level, &InsufficientStockError{
			VariantID: key.VariantID, LocationID: key.LocationID,
			Requested: -deltaReserved, Available: level.Reserved,
		}
	case next.OnHand < 0 || next.Available() < 0:
		return level, &InsufficientStockError{
			VariantID: key.VariantID, LocationID: key.LocationID,
			Requested: deltaReserved - deltaOnHand, Available: level.Available(),
		}
	}
	return l.write(ctx, tx, level, next)
}

// Update applies a non-quantity change such as reorder settings or the last
// count timestamp, under the same version check as quantity writes.
func (l StockLedger) Update(ctx context.Context, tx TxRepository, key StockKey, mutate func(*StockLevel)) (StockLevel, error) {
	level, err := l.GetOrCreate(ctx, tx, key)
	if err != nil {
		return StockLevel{}, err
	}
	next := level
	mutate(&next)
	next.OnHand, next.Reserved = level.OnHand, level.Reserved
	return l.write(ctx, tx, level, next)
}

func (l StockLedger) write(ctx context.Context, tx TxRepository, current, next StockLevel) (StockLevel, error) {
	next.Version = current.Version + 1
	next.UpdatedAt = l.clock()
	ok, err := tx.UpdateStockLevel(ctx, next, current.Version)
	if err != nil {
		return StockLevel{}, err
	}
	if !ok {
		return current, ErrVersionConflict
	}
	return next, nil
}

func canonicalKeys(keys []StockKey) []StockKey {
	seen := make(map[StockKey]struct{}, len(keys))
	ordered := make([]StockKey, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ordered = append(ordered, key)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if c := bytes.Compare(ordered[i].LocationID[:], ordered[j].LocationID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(ordered[i].VariantID[:], ordered[j].VariantID[:]) < 0
	})
	return ordered
}
