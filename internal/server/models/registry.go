package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EmailSource records how an address entered the registry.
type EmailSource string

const (
	EmailSourceSignup EmailSource = "signup"
	EmailSourceChange EmailSource = "change"
	EmailSourceImport EmailSource = "import"
	EmailSourceAdmin  EmailSource = "admin"
)

// SubscriptionStatus of a registry summary entry.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusPaused    SubscriptionStatus = "paused"
)

// EmailEntry is one address in a user's registry email history.
type EmailEntry struct {
	Address    string      `json:"address"`
	IsPrimary  bool        `json:"isPrimary"`
	IsVerified bool        `json:"isVerified"`
	AddedAt    time.Time   `json:"addedAt"`
	LastUsedAt time.Time   `json:"lastUsedAt"`
	Source     EmailSource `json:"source"`
}

// SubscriptionSummary is the registry's view of one active subscription.
type SubscriptionSummary struct {
	SubscriptionID string             `json:"subscriptionId"`
	Name           string             `json:"name"`
	Provider       string             `json:"provider"`
	Price          decimal.Decimal    `json:"price"`
	BillingCycle   BillingCycle       `json:"billingCycle"`
	MonthlyCost    decimal.Decimal    `json:"monthlyCost"`
	AddedAt        time.Time          `json:"addedAt"`
	LastUpdatedAt  time.Time          `json:"lastUpdatedAt"`
	Status         SubscriptionStatus `json:"status"`
}

// UserRegistry is the denormalized per-user aggregate.
type UserRegistry struct {
	UserID            string                `json:"userId"`
	DisplayName       string                `json:"displayName"`
	CurrentEmail      string                `json:"currentEmail"`
	Emails            []EmailEntry          `json:"emails"`
	Subscriptions     []SubscriptionSummary `json:"subscriptions"`
	TotalMonthlySpend decimal.Decimal       `json:"totalMonthlySpend"`
	AccountCreatedAt  time.Time             `json:"accountCreatedAt"`
	LastActive        time.Time             `json:"lastActive"`
	LastUpdated       time.Time             `json:"lastUpdated"`
	Metadata          map[string]string     `json:"metadata,omitempty"`
}
