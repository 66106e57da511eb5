package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingCycle is how often a subscription charges.
type BillingCycle string

const (
	CycleDaily     BillingCycle = "Daily"
	CycleWeekly    BillingCycle = "Weekly"
	CycleBiweekly  BillingCycle = "Biweekly"
	CycleMonthly   BillingCycle = "Monthly"
	CycleQuarterly BillingCycle = "Quarterly"
	CycleYearly    BillingCycle = "Yearly"
)

// Valid reports whether c is one of the accepted billing cycles.
func (c BillingCycle) Valid() bool {
	switch c {
	case CycleDaily, CycleWeekly, CycleBiweekly, CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	}
	return false
}

// Subscription is a recurring payment owned by exactly one user.
type Subscription struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Category        string          `json:"category"`
	BillingCycle    BillingCycle    `json:"billingCycle"`
	StartDate       time.Time       `json:"startDate"`
	NextPaymentDate time.Time       `json:"nextPaymentDate"`
	Description     string          `json:"description,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Step moves t forward by one billing period.
func (c BillingCycle) Step(t time.Time) time.Time {
	switch c {
	case CycleDaily:
		return t.AddDate(0, 0, 1)
	case CycleWeekly:
		return t.AddDate(0, 0, 7)
	case CycleBiweekly:
		return t.AddDate(0, 0, 14)
	case CycleQuarterly:
		return t.AddDate(0, 3, 0)
	case CycleYearly:
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// NextPayment returns the first charge on or after now for a subscription
// that started at start.
func (c BillingCycle) NextPayment(start, now time.Time) time.Time {
	next := start
	for next.Before(now) {
		next = c.Step(next)
	}
	return next
}
