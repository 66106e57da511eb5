// Package services contains the lifecycle orchestration of SubKeeper: account
// and subscription flows that sequence the stores, the archive, the registry
// and notifications.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/archive"
	"github.com/dmitrijs2005/subkeeper/internal/server/auth"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/notify"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/subkeeper/internal/server/spend"
)

// Notifier submits a notification without waiting for it.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message) <-chan notify.Result
}

// RegistryWriter is the slice of the registry synchronizer the account flows use.
type RegistryWriter interface {
	Resync(ctx context.Context, ownerID string) error
	RecordSignup(ctx context.Context, user *models.User) error
	RecordEmailChange(ctx context.Context, userID, previous, next string) error
	TouchActivity(ctx context.Context, userID string) error
	Remove(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (*models.UserRegistry, error)
}

// Session is a user together with a freshly issued session token.
type Session struct {
	User  *models.User
	Token string
}

// AccountDeps groups the collaborators of AccountService.
type AccountDeps struct {
	Store      dbx.Runner
	Repos      repomanager.RepositoryManager
	Ledger     *auth.Ledger
	Hasher     auth.Hasher
	Archive    *archive.Writer
	Registry   RegistryWriter
	Notifier   Notifier
	Admin      auth.AdminPolicy
	AppBaseURL string
	Log        logging.Logger
}

// AccountService implements signup, sign-in, credential changes and account
// deletion.
type AccountService struct {
	store      dbx.Runner
	repos      repomanager.RepositoryManager
	ledger     *auth.Ledger
	hasher     auth.Hasher
	archive    *archive.Writer
	registry   RegistryWriter
	notifier   Notifier
	admin      auth.AdminPolicy
	appBaseURL string
	log        logging.Logger

	dummyHash func() string
}

// NewAccountService constructs an AccountService.
func NewAccountService(d AccountDeps) *AccountService {
	s := &AccountService{
		store:      d.Store,
		repos:      d.Repos,
		ledger:     d.Ledger,
		hasher:     d.Hasher,
		archive:    d.Archive,
		registry:   d.Registry,
		notifier:   d.Notifier,
		admin:      d.Admin,
		appBaseURL: strings.TrimRight(d.AppBaseURL, "/"),
		log:        d.Log.With("module", "accounts"),
	}
	// compared against when the email is unknown so both paths pay for a hash check
	s.dummyHash = sync.OnceValue(func() string {
		h, err := s.hasher.Hash("subkeeper-dummy-password")
		if err != nil {
			return ""
		}
		return h
	})
	return s
}

func (s *AccountService) bestEffort(ctx context.Context, op, userID string, err error) {
	if err != nil {
		s.log.Warn(ctx, "best-effort step failed", "op", op, "user_id", userID, "error", err)
	}
}

func (s *AccountService) notify(ctx context.Context, kind notify.Kind, to string, data map[string]string) {
	s.notifier.Dispatch(ctx, notify.Message{Kind: kind, To: to, Data: data})
}

func (s *AccountService) session(user *models.User) (*Session, error) {
	token, err := s.ledger.IssueSessionToken(user)
	if err != nil {
		return nil, fmt.Errorf("error issuing session token: %w", err)
	}
	return &Session{User: user, Token: token}, nil
}

// Signup creates an account and signs it in.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = sanitize(in.Name)
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, common.NewValidationError("name", "is required")
	}
	if err := checkPasswordBytes("password", in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	var user *models.User
	err = s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		repo := s.repos.Users(db)
		if _, err := repo.GetByEmail(ctx, in.Email); err == nil {
			return common.ErrorConflict
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		user, err = repo.Create(ctx, &models.User{
			Name:         in.Name,
			Email:        in.Email,
			PasswordHash: hash,
			Preferences:  models.DefaultPreferences(),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	sess, err := s.session(user)
	if err != nil {
		return nil, err
	}

	s.bestEffort(ctx, "registry.signup", user.ID, s.registry.RecordSignup(ctx, user))
	s.notify(ctx, notify.KindWelcome, user.Email, map[string]string{notify.DataName: user.Name})

	return sess, nil
}

// Login verifies credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		user, err = s.repos.Users(db).GetByEmail(ctx, in.Email)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(in.Password, s.dummyHash())
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}

	sess, err := s.session(user)
	if err != nil {
		return nil, err
	}
	s.bestEffort(ctx, "registry.touch", user.ID, s.registry.TouchActivity(ctx, user.ID))
	return sess, nil
}

// Authenticate resolves a session token to its live user.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrorUnauthorized
	}
	id, err := s.ledger.VerifySessionToken(token)
	if err != nil {
		return nil, errors.Join(common.ErrorUnauthorized, err)
	}
	user, err := s.Me(ctx, id.UserID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorUnauthorized
	}
	return user, err
}

// Me returns the user record of userID.
func (s *AccountService) Me(ctx context.Context, userID string) (*models.User, error) {
	if !validID(userID) {
		return nil, common.ErrorNotFound
	}
	var user *models.User
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		user, err = s.repos.Users(db).GetByID(ctx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return user, nil
}

// UpdateProfile changes name, bio and notification preferences.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*models.User, error) {
	if in.Name != nil {
		v := sanitize(*in.Name)
		in.Name = &v
	}
	if in.Bio != nil {
		v := sanitize(*in.Bio)
		in.Bio = &v
	}
	if err := in.check(); err != nil {
		return nil, err
	}

	var updated *models.User
	err := s.store.RunTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)
		user, err := repo.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if in.Name != nil {
			user.Name = *in.Name
		}
		if in.Bio != nil {
			user.Bio = *in.Bio
		}
		if in.Preferences != nil {
			user.Preferences = *in.Preferences
		}
		updated, err = repo.UpdateProfile(ctx, user)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error updating profile: %w", err)
	}

	if in.Name != nil {
		s.bestEffort(ctx, "registry.resync", userID, s.registry.Resync(ctx, userID))
	}
	return updated, nil
}

// ChangeEmail moves the account to a new address after re-checking the
// password. The history row and the address change commit together.
func (s *AccountService) ChangeEmail(ctx context.Context, userID string, in ChangeEmailInput, meta RequestMeta) (*Session, error) {
	in.NewEmail = normalizeEmail(in.NewEmail)
	in.Reason = sanitize(in.Reason)
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}
	if in.NewEmail == user.Email {
		return nil, common.NewValidationError("newEmail", "must differ from the current email")
	}

	previous := user.Email
	err = s.store.RunTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		taken, err := s.repos.Users(tx).EmailTakenByOther(ctx, in.NewEmail, userID)
		if err != nil {
			return err
		}
		if taken {
			return common.ErrorConflict
		}
		if _, err := s.repos.EmailHistory(tx).Append(ctx, &models.EmailHistory{
			UserID:        userID,
			PreviousEmail: previous,
			NewEmail:      in.NewEmail,
			ChangedAt:     s.ledger.Now(),
			Reason:        in.Reason,
			IPAddress:     meta.IPAddress,
			UserAgent:     meta.UserAgent,
		}); err != nil {
			return err
		}
		return s.repos.Users(tx).UpdateEmail(ctx, userID, in.NewEmail)
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorConflict):
			return nil, common.ErrorConflict
		case errors.Is(err, common.ErrorNotFound):
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error changing email: %w", err)
	}
	user.Email = in.NewEmail

	s.bestEffort(ctx, "registry.email", userID, s.registry.RecordEmailChange(ctx, userID, previous, in.NewEmail))
	return s.session(user)
}

// ChangePassword replaces the password after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if err := validateInput(&in); err != nil {
		return err
	}
	if err := checkPasswordBytes("newPassword", in.NewPassword); err != nil {
		return err
	}
	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(in.CurrentPassword, user.PasswordHash) {
		return common.ErrorUnauthorized
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	err = s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.repos.Users(db).UpdatePasswordHash(ctx, userID, hash)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error updating password: %w", err)
	}

	s.notify(ctx, notify.KindPasswordChanged, user.Email, map[string]string{notify.DataName: user.Name})
	return nil
}

// ForgotPassword issues a reset token when the email belongs to an account.
// The returned message is the same in every case.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", common.NewValidationError("email", "is required")
	}

	var user *models.User
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		user, err = s.repos.Users(db).GetByEmail(ctx, email)
		return err
	})
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.log.Error(ctx, "forgot password lookup failed", "error", err)
		}
		return common.GenericResetMessage, nil
	}

	rt, err := s.ledger.IssueResetToken()
	if err != nil {
		s.log.Error(ctx, "reset token generation failed", "user_id", user.ID, "error", err)
		return common.GenericResetMessage, nil
	}
	err = s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.repos.Users(db).SetResetToken(ctx, user.ID, rt.Token, rt.ExpiresAt)
	})
	if err != nil {
		s.log.Error(ctx, "storing reset token failed", "user_id", user.ID, "error", err)
		return common.GenericResetMessage, nil
	}

	s.notify(ctx, notify.KindPasswordReset, user.Email, map[string]string{
		notify.DataName:     user.Name,
		notify.DataResetURL: s.resetURL(user.Email, rt.Token),
	})
	return common.GenericResetMessage, nil
}

func (s *AccountService) resetURL(email, token string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return s.appBaseURL + "/reset-password?" + q.Encode()
}

// ValidateResetToken reports whether the token is live for email without
// consuming it.
func (s *AccountService) ValidateResetToken(ctx context.Context, email, token string) error {
	email = normalizeEmail(email)
	if email == "" || token == "" {
		return common.ErrorUnauthorized
	}
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		_, err := s.repos.Users(db).FindByResetToken(ctx, email, token, s.ledger.Now())
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return fmt.Errorf("error validating reset token: %w", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token. The token is
// consumed in the same statement, so it is accepted at most once.
func (s *AccountService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(&in); err != nil {
		return err
	}
	if err := checkPasswordBytes("password", in.Password); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	var user *models.User
	err = s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		user, err = s.repos.Users(db).ConsumeResetToken(ctx, in.Email, in.Token, hash, s.ledger.Now())
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return fmt.Errorf("error resetting password: %w", err)
	}

	s.notify(ctx, notify.KindPasswordChanged, user.Email, map[string]string{notify.DataName: user.Name})
	return nil
}

// DeleteAccount destroys the caller's own account.
func (s *AccountService) DeleteAccount(ctx context.Context, userID, reason string) (*models.DeletedUser, error) {
	return s.deleteAccount(ctx, userID, archive.Request{Actor: models.ActorUser, Reason: sanitize(reason)})
}

// AdminDeleteAccount destroys targetID on behalf of a privileged caller.
func (s *AccountService) AdminDeleteAccount(ctx context.Context, callerID, targetID, reason string) (*models.DeletedUser, error) {
	if !s.admin.IsPrivileged(callerID) {
		return nil, common.ErrorForbidden
	}
	return s.deleteAccount(ctx, targetID, archive.Request{Actor: models.ActorAdmin, Reason: sanitize(reason)})
}

// SystemDeleteAccount destroys targetID from operator tooling.
func (s *AccountService) SystemDeleteAccount(ctx context.Context, targetID, reason string) (*models.DeletedUser, error) {
	return s.deleteAccount(ctx, targetID, archive.Request{Actor: models.ActorSystem, Reason: sanitize(reason)})
}

func (s *AccountService) deleteAccount(ctx context.Context, userID string, req archive.Request) (*models.DeletedUser, error) {
	// once started, the archive and delete sequence outlives the request
	ctx = context.WithoutCancel(ctx)

	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	var snap *models.DeletedUser
	err = s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		snap, err = s.archive.DeleteUser(ctx, db, user, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error deleting account: %w", err)
	}

	s.bestEffort(ctx, "registry.remove", userID, s.registry.Remove(ctx, userID))
	s.log.Info(ctx, "account deleted", "user_id", userID, "actor", req.Actor, "subscriptions", snap.SubscriptionCount)
	return snap, nil
}

// Registry returns the registry view of userID, rebuilding it if missing.
func (s *AccountService) Registry(ctx context.Context, userID string) (*models.UserRegistry, error) {
	reg, err := s.registry.Get(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		if err := s.registry.Resync(ctx, userID); err != nil {
			return nil, fmt.Errorf("error rebuilding registry: %w", err)
		}
		reg, err = s.registry.Get(ctx, userID)
	}
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error loading registry: %w", err)
	}
	return reg, nil
}

// AdminResync recomputes the registry row of targetID.
func (s *AccountService) AdminResync(ctx context.Context, callerID, targetID string) error {
	if !s.admin.IsPrivileged(callerID) {
		return common.ErrorForbidden
	}
	return s.Resync(ctx, targetID)
}

// Resync recomputes the registry row of userID and reports failures.
func (s *AccountService) Resync(ctx context.Context, userID string) error {
	if !validID(userID) {
		return common.ErrorNotFound
	}
	if err := s.registry.Resync(ctx, userID); err != nil {
		return fmt.Errorf("error resyncing registry: %w", err)
	}
	return nil
}

// SendMonthlyReport mails userID a summary of their active subscriptions and
// waits for the result.
func (s *AccountService) SendMonthlyReport(ctx context.Context, userID string) error {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	var subs []*models.Subscription
	err = s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		subs, err = s.repos.Subscriptions(db).ListByOwner(ctx, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("error listing subscriptions: %w", err)
	}

	res := s.notifier.Dispatch(ctx, notify.Message{
		Kind: notify.KindMonthlyReport,
		To:   user.Email,
		Data: map[string]string{
			notify.DataName:  user.Name,
			notify.DataCount: fmt.Sprint(len(subs)),
			notify.DataTotal: spend.Total(subs).StringFixed(2),
		},
	})
	select {
	case r := <-res:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
