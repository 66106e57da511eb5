// Package spend converts subscription prices to a common monthly figure.
// Account deletion summaries and the registry both use it, so the numbers
// they report agree.
package spend

import (
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/shopspring/decimal"
)

var (
	weeklyFactor   = decimal.RequireFromString("4.33")
	biweeklyFactor = decimal.RequireFromString("2.17")
	three          = decimal.NewFromInt(3)
	twelve         = decimal.NewFromInt(12)
)

// monthly converts without rounding. Daily and unknown cycles are taken as
// already monthly.
func monthly(price decimal.Decimal, cycle models.BillingCycle) decimal.Decimal {
	switch cycle {
	case models.CycleWeekly:
		return price.Mul(weeklyFactor)
	case models.CycleBiweekly:
		return price.Mul(biweeklyFactor)
	case models.CycleQuarterly:
		return price.Div(three)
	case models.CycleYearly:
		return price.Div(twelve)
	default:
		return price
	}
}

// Monthly returns the normalized monthly cost of one price, rounded to cents.
func Monthly(price decimal.Decimal, cycle models.BillingCycle) decimal.Decimal {
	return monthly(price, cycle).Round(2)
}

// Total sums the normalized monthly cost of subs and rounds the sum to cents.
func Total(subs []*models.Subscription) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range subs {
		sum = sum.Add(monthly(s.Price, s.BillingCycle))
	}
	return sum.Round(2)
}
