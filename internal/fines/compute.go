// internal/fines/compute.go
package fines

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// OverdueDays counts whole days between the due date and the return,
// rounding any partial day up. Returns on or before the due date are 0.
func OverdueDays(expected, actual time.Time) int {
	if !actual.After(expected) {
		return 0
	}
	late := actual.Sub(expected)
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

// LateFeeAmount is days times the daily rate, rounded to cents.
func LateFeeAmount(days int, dailyRate decimal.Decimal) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(days)).Mul(dailyRate).Round(2)
}
