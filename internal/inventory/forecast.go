package inventory

import (
	"math"
	"time"
)

// DaysUntilStockout estimates how long available quantity lasts at the average
// daily outbound rate observed over window. Nil means no outbound was seen.
func DaysUntilStockout(available, outbound int64, window time.Duration) *float64 {
	days := window.Hours() / 24
	if outbound <= 0 || days <= 0 {
		return nil
	}
	if available <= 0 {
		zero := 0.0
		return &zero
	}
	rate := float64(outbound) / days
	estimate := math.Round(float64(available)/rate*10) / 10
	return &estimate
}
