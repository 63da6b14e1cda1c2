package kpi

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// AchievementPct returns actual/target*100, or zero when target is zero.
// The result is not rounded.
func AchievementPct(actual, target decimal.Decimal) decimal.Decimal {
	if target.IsZero() {
		return decimal.Zero
	}
	return actual.Mul(hundred).Div(target)
}
