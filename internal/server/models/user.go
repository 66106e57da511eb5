// Package models defines server-side data models persisted in the database.
package models

import "time"

// ReminderFrequency is how often payment reminders are sent.
type ReminderFrequency string

const (
	FrequencyDaily     ReminderFrequency = "daily"
	FrequencyThreeDays ReminderFrequency = "3days"
	FrequencyWeekly    ReminderFrequency = "weekly"
)

// Valid reports whether f is one of the known frequencies.
func (f ReminderFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyThreeDays, FrequencyWeekly:
		return true
	}
	return false
}

// NotificationPreferences controls payment reminders.
type NotificationPreferences struct {
	PaymentReminders  bool              `json:"paymentReminders"`
	ReminderFrequency ReminderFrequency `json:"reminderFrequency"`
}

// DefaultPreferences is applied on signup.
func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{PaymentReminders: true, ReminderFrequency: FrequencyWeekly}
}

// User is the identity record. PasswordHash and the reset fields never leave
// the server: they are excluded from JSON.
type User struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	Email            string                  `json:"email"`
	PasswordHash     string                  `json:"-"`
	Bio              string                  `json:"bio,omitempty"`
	ResetToken       *string                 `json:"-"`
	ResetTokenExpiry *time.Time              `json:"-"`
	Preferences      NotificationPreferences `json:"notificationPreferences"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}
