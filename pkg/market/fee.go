package market

import (
	"math"
	"math/bits"
)

const (
	// MaxFeeBps caps the fee rate at 10%.
	MaxFeeBps = 1000
	bpsDenom  = 10000
)

// ComputeFee splits amount into the treasury fee, floor(amount*bps/10000),
// and the seller proceeds. The product is taken in 128 bits so it cannot
// overflow. Rates above MaxFeeBps are clamped to it, so the fee never
// exceeds amount.
func ComputeFee(amount int64, bps uint32) (fee, proceeds int64) {
	if amount <= 0 || bps == 0 {
		return 0, amount
	}
	if bps > MaxFeeBps {
		bps = MaxFeeBps
	}
	hi, lo := bits.Mul64(uint64(amount), uint64(bps))
	q, _ := bits.Div64(hi, lo, bpsDenom)
	fee = int64(q)
	return fee, amount - fee
}

func addChecked(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}
