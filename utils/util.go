package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

const MaxDecimalPlaces = 8

var maxDecimalValue = decimal.New(1, 10)

// ValidDecimal reports whether d is positive, carries at most
// MaxDecimalPlaces fractional digits and fits numeric(18,8).
func ValidDecimal(d decimal.Decimal) bool {
	if !d.IsPositive() {
		return false
	}
	if !d.Equal(d.Truncate(MaxDecimalPlaces)) {
		return false
	}
	return d.LessThan(maxDecimalValue)
}

func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

type DelayPolicy struct {
	PartialStep time.Duration
	PartialCap  time.Duration
	IdleStep    time.Duration
	IdleCap     time.Duration
}

var DefaultDelayPolicy = DelayPolicy{
	PartialStep: time.Minute,
	PartialCap:  5 * time.Minute,
	IdleStep:    15 * time.Minute,
	IdleCap:     time.Hour,
}

// ReprocessDelay is the wait before the next matching pass of an order
// that still has quantity left. Passes that filled something come back
// sooner than idle ones; both grow linearly with reprocessCount up to a cap.
func ReprocessDelay(p DelayPolicy, progress bool, reprocessCount int) time.Duration {
	step, limit := p.IdleStep, p.IdleCap

	if progress {
		step, limit = p.PartialStep, p.PartialCap
	}

	delay := step * time.Duration(reprocessCount+1)

	if delay > limit {
		return limit
	}
	return delay
}
