package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Actor identifies who triggered a deletion.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorAdmin  Actor = "admin"
	ActorSystem Actor = "system"
)

// DeletionMethod distinguishes single from bulk subscription deletion.
type DeletionMethod string

const (
	DeletionIndividual DeletionMethod = "individual"
	DeletionBulk       DeletionMethod = "bulk"
)

// DeletedUser is the immutable snapshot written when an account is destroyed.
type DeletedUser struct {
	ID                string          `json:"id"`
	OriginalUserID    string          `json:"originalUserId"`
	Name              string          `json:"name"`
	Email             string          `json:"email"`
	Bio               string          `json:"bio,omitempty"`
	OriginalCreatedAt time.Time       `json:"originalCreatedAt"`
	DeletedAt         time.Time       `json:"deletedAt"`
	SubscriptionCount int             `json:"subscriptionCount"`
	TotalSpent        decimal.Decimal `json:"totalSpent"`
	Reason            string          `json:"reason,omitempty"`
	DeletedBy         Actor           `json:"deletedBy"`
}

// DeletedSubscription is the immutable snapshot of one destroyed subscription.
type DeletedSubscription struct {
	ID                     string          `json:"id"`
	UserID                 string          `json:"userId"`
	OriginalSubscriptionID string          `json:"originalSubscriptionId"`
	Name                   string          `json:"name"`
	Price                  decimal.Decimal `json:"price"`
	Category               string          `json:"category"`
	BillingCycle           BillingCycle    `json:"billingCycle"`
	StartDate              time.Time       `json:"startDate"`
	NextPaymentDate        time.Time       `json:"nextPaymentDate"`
	Description            string          `json:"description,omitempty"`
	OriginalCreatedAt      time.Time       `json:"originalCreatedAt"`
	DeletedAt              time.Time       `json:"deletedAt"`
	DeletedBy              Actor           `json:"deletedBy"`
	DeletionMethod         DeletionMethod  `json:"deletionMethod"`
	Reason                 string          `json:"reason,omitempty"`
}

// SnapshotSubscription copies every field of s into an archive row.
func SnapshotSubscription(s *Subscription, actor Actor, method DeletionMethod, reason string, at time.Time) *DeletedSubscription {
	return &DeletedSubscription{
		UserID:                 s.UserID,
		OriginalSubscriptionID: s.ID,
		Name:                   s.Name,
		Price:                  s.Price,
		Category:               s.Category,
		BillingCycle:           s.BillingCycle,
		StartDate:              s.StartDate,
		NextPaymentDate:        s.NextPaymentDate,
		Description:            s.Description,
		OriginalCreatedAt:      s.CreatedAt,
		DeletedAt:              at,
		DeletedBy:              actor,
		DeletionMethod:         method,
		Reason:                 reason,
	}
}

// EmailHistory records one committed email change.
type EmailHistory struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	PreviousEmail string    `json:"previousEmail"`
	NewEmail      string    `json:"newEmail"`
	ChangedAt     time.Time `json:"changedAt"`
	Reason        string    `json:"reason,omitempty"`
	IPAddress     string    `json:"ipAddress,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
}
