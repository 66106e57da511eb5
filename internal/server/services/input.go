package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

var (
	validate = newValidator()
	strict   = bluemonday.StrictPolicy()

	// maxPrice is the largest value a NUMERIC(12,2) column holds.
	maxPrice = decimal.RequireFromString("9999999999.99")
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// SignupInput is the body of a signup request.
type SignupInput struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// LoginInput is the body of a login request.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ProfileInput updates the editable profile fields. Nil fields are kept.
type ProfileInput struct {
	Name        *string                         `json:"name" validate:"omitnil,min=1,max=100"`
	Bio         *string                         `json:"bio" validate:"omitnil,max=500"`
	Preferences *models.NotificationPreferences `json:"preferences"`
}

// ChangeEmailInput is the body of an email change request.
type ChangeEmailInput struct {
	NewEmail string `json:"newEmail" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
	Reason   string `json:"reason" validate:"max=500"`
}

// ChangePasswordInput is the body of a password change request.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// ResetPasswordInput is the body of a password reset request.
type ResetPasswordInput struct {
	Email           string `json:"email" validate:"required,email"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// SubscriptionInput is the body of subscription create and update requests.
// A zero NextPaymentDate is derived from StartDate and BillingCycle.
type SubscriptionInput struct {
	Name            string              `json:"name" validate:"required,max=100"`
	Price           decimal.Decimal     `json:"price"`
	Category        string              `json:"category" validate:"required,max=50"`
	BillingCycle    models.BillingCycle `json:"billingCycle" validate:"required,oneof=Daily Weekly Biweekly Monthly Quarterly Yearly"`
	StartDate       time.Time           `json:"startDate" validate:"required"`
	NextPaymentDate time.Time           `json:"nextPaymentDate"`
	Description     string              `json:"description" validate:"max=500"`
}

// RequestMeta is what the transport knows about the caller.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return common.NewValidationError("", "invalid input")
	}
	fe := verrs[0]
	return common.NewValidationError(fe.Field(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "eqfield":
		return "does not match"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}

// check sanitizes the free-text fields and validates the result, so markup
// alone does not satisfy required.
func (in *SubscriptionInput) check() error {
	in.Name = sanitize(in.Name)
	in.Category = sanitize(in.Category)
	in.Description = sanitize(in.Description)
	if err := validateInput(in); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return common.NewValidationError("price", "must not be negative")
	}
	if in.Price.GreaterThan(maxPrice) {
		return common.NewValidationError("price", "must be at most "+maxPrice.StringFixed(2))
	}
	if in.Price.Exponent() < -2 && !in.Price.Equal(in.Price.Round(2)) {
		return common.NewValidationError("price", "must have at most two decimal places")
	}
	if !in.NextPaymentDate.IsZero() && in.NextPaymentDate.Before(in.StartDate) {
		return common.NewValidationError("nextPaymentDate", "must not be before startDate")
	}
	return nil
}

func (p *ProfileInput) check() error {
	if err := validateInput(p); err != nil {
		return err
	}
	if p.Preferences != nil && !p.Preferences.ReminderFrequency.Valid() {
		return common.NewValidationError("reminderFrequency", "must be one of: daily 3days weekly")
	}
	return nil
}

// checkPasswordBytes rejects passwords bcrypt cannot hash. validator's max
// counts runes, so multi-byte input can pass it and still be too long.
func checkPasswordBytes(field, password string) error {
	if len(password) > maxPasswordBytes {
		return common.NewValidationError(field, fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

// normalizeEmail trims the address. Case is stored as given; the stores
// compare addresses case-insensitively.
func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func sanitize(s string) string {
	return strings.TrimSpace(strict.Sanitize(s))
}

// validID reports whether id can name a stored row. Anything else cannot
// exist and is answered with not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
