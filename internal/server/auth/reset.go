package auth

import (
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
)

// ResetToken is a freshly issued one-time password reset credential.
type ResetToken struct {
	Token     string
	ExpiresAt time.Time
}

// IssueResetToken draws 256 random bits, hex-encoded, expiring ResetValidity
// from now. Storing it on the user row is the caller's job.
func (l *Ledger) IssueResetToken() (*ResetToken, error) {
	token, err := common.MakeRandHexString(common.ResetTokenBytes)
	if err != nil {
		return nil, err
	}
	return &ResetToken{Token: token, ExpiresAt: l.now().Add(l.resetValidity)}, nil
}

// Now is the ledger clock. Reset token validation compares expiry against it.
func (l *Ledger) Now() time.Time { return l.now() }
