// Package auth is the credential ledger: it issues and checks session tokens
// and password-reset tokens. It keeps no state of its own; reset tokens live
// on the user row.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSecret is returned by NewLedger when no signing secret is configured.
var ErrNoSecret = errors.New("session secret is not configured")

// Claims are the registered claims plus the session identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Identity is what a valid session token proves.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Ledger issues and verifies credentials with a process-wide secret.
type Ledger struct {
	secret          []byte
	sessionValidity time.Duration
	resetValidity   time.Duration
	now             func() time.Time
}

// NewLedger fails when secret is empty; callers treat that as a startup error.
func NewLedger(secret string, sessionValidity, resetValidity time.Duration) (*Ledger, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if sessionValidity <= 0 {
		sessionValidity = common.DefaultSessionValidity
	}
	if resetValidity <= 0 {
		resetValidity = common.DefaultResetValidity
	}
	return &Ledger{
		secret:          []byte(secret),
		sessionValidity: sessionValidity,
		resetValidity:   resetValidity,
		now:             time.Now,
	}, nil
}

// SessionValidity is the token lifetime, also used as the cookie max-age.
func (l *Ledger) SessionValidity() time.Duration { return l.sessionValidity }

// IssueSessionToken signs {id, email, name} with an expiry SessionValidity out.
func (l *Ledger) IssueSessionToken(u *models.User) (string, error) {
	now := l.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.sessionValidity)),
		},
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
	})

	return token.SignedString(l.secret)
}

// VerifySessionToken returns the identity of a valid token. Every failure,
// whether signature, algorithm, expiry or shape, yields common.ErrInvalidToken
// (wrapped with common.ErrTokenExpired for expired tokens) and a nil identity.
func (l *Ledger) VerifySessionToken(tokenString string) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(l.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Join(common.ErrInvalidToken, common.ErrTokenExpired)
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return &Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
}
