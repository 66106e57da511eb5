// Package common contains shared constants and sentinel errors used across
// SubKeeper components.
package common

import "time"

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "session_token"

// ResetTokenBytes is the amount of entropy in a password reset token.
// The hex encoding is twice as long.
const ResetTokenBytes = 32

// GenericResetMessage is returned by forgot-password regardless of whether
// the email belongs to an account.
const GenericResetMessage = "If an account with that email exists, a password reset link has been sent."

// DefaultSessionValidity is the lifetime of a session token and its cookie.
const DefaultSessionValidity = 7 * 24 * time.Hour

// DefaultResetValidity is the lifetime of a password reset token.
const DefaultResetValidity = time.Hour
