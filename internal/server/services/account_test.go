package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/notify"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup_CreatesUserAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.signup(t, "A", " A@X.com ", "secret1")

	assert.Equal(t, 1, f.m.Store.UserCount())
	assert.Equal(t, "A@X.com", sess.User.Email)
	assert.Equal(t, models.DefaultPreferences(), sess.User.Preferences)

	_, err := f.accounts.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", sess.User.PasswordHash)

	got, err := f.accounts.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, got.ID)

	assert.Equal(t, []notify.Kind{notify.KindWelcome}, f.notes.kinds())

	reg, err := f.sync.Get(ctx, sess.User.ID)
	require.NoError(t, err)
	require.Len(t, reg.Emails, 1)
	assert.Equal(t, models.EmailSourceSignup, reg.Emails[0].Source)
}

func TestSignup_DuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "A", "a@x.com", "secret1")

	_, err := f.accounts.Signup(context.Background(), SignupInput{
		Name: "B", Email: "A@x.com", Password: "secret2", ConfirmPassword: "secret2",
	})
	assert.ErrorIs(t, err, common.ErrorConflict)
	assert.Equal(t, 1, f.m.Store.UserCount())
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    SignupInput
		field string
	}{
		{"missing name", SignupInput{Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1"}, "name"},
		{"markup only name", SignupInput{Name: "<b></b>", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1"}, "name"},
		{"bad email", SignupInput{Name: "A", Email: "nope", Password: "secret1", ConfirmPassword: "secret1"}, "email"},
		{"short password", SignupInput{Name: "A", Email: "a@x.com", Password: "abc", ConfirmPassword: "abc"}, "password"},
		{"mismatch", SignupInput{Name: "A", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret2"}, "confirmPassword"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.accounts.Signup(context.Background(), tt.in)
			require.ErrorIs(t, err, common.ErrorValidation)
			var verr *common.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 0, f.m.Store.UserCount())
		})
	}
}

func TestSignup_SideEffectFailuresAreBestEffort(t *testing.T) {
	f := newFixture(t)
	f.notes.err = errors.New("smtp down")
	f.m.Store.FailOn(memory.OpRegistryUpsert, errors.New("registry down"), 0)

	sess := f.signup(t, "A", "a@x.com", "secret1")
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, 1, f.m.Store.UserCount())
}

func TestSignup_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.m.Store.FailOn(memory.OpUserCreate, errors.New("boom"), 0)

	_, err := f.accounts.Signup(context.Background(), SignupInput{
		Name: "A", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.Error(t, err)
	assert.Empty(t, f.notes.kinds())
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "A", "a@x.com", "secret1")

	sess, err := f.accounts.Login(ctx, LoginInput{Email: "A@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	_, wrongPass := f.accounts.Login(ctx, LoginInput{Email: "a@x.com", Password: "nope"})
	_, unknown := f.accounts.Login(ctx, LoginInput{Email: "b@x.com", Password: "secret1"})
	assert.ErrorIs(t, wrongPass, common.ErrorUnauthorized)
	assert.ErrorIs(t, unknown, common.ErrorUnauthorized)
	assert.Equal(t, wrongPass.Error(), unknown.Error())

	_, err = f.accounts.Login(ctx, LoginInput{Email: "a@x.com"})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestAuthenticate_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "A", "a@x.com", "secret1")

	_, err := f.accounts.Authenticate(ctx, "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.accounts.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.accounts.DeleteAccount(ctx, sess.User.ID, "")
	require.NoError(t, err)
	_, err = f.accounts.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, common.ErrorUnauthorized, "token of a deleted account")
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "A", "a@x.com", "secret1")

	name := "Alice"
	bio := "<script>alert(1)</script>likes jazz"
	prefs := models.NotificationPreferences{PaymentReminders: false, ReminderFrequency: models.FrequencyDaily}
	u, err := f.accounts.UpdateProfile(ctx, sess.User.ID, ProfileInput{Name: &name, Bio: &bio, Preferences: &prefs})
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "likes jazz", u.Bio)
	assert.Equal(t, prefs, u.Preferences)

	reg, err := f.sync.Get(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", reg.DisplayName)

	bad := models.NotificationPreferences{ReminderFrequency: "hourly"}
	_, err = f.accounts.UpdateProfile(ctx, sess.User.ID, ProfileInput{Preferences: &bad})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestChangeEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "A", "a@x.com", "secret1")
	meta := RequestMeta{IPAddress: "10.0.0.1", UserAgent: "test"}

	next, err := f.accounts.ChangeEmail(ctx, sess.User.ID, ChangeEmailInput{NewEmail: "B@x.com", Password: "secret1", Reason: "new job"}, meta)
	require.NoError(t, err)
	assert.Equal(t, "B@x.com", next.User.Email)
	assert.NotEmpty(t, next.Token)

	u, err := f.accounts.Me(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "B@x.com", u.Email)

	hist, err := f.m.EmailHistory(nil).ListByUser(ctx, sess.User.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "a@x.com", hist[0].PreviousEmail)
	assert.Equal(t, "B@x.com", hist[0].NewEmail)
	assert.Equal(t, "10.0.0.1", hist[0].IPAddress)
	assert.Equal(t, "new job", hist[0].Reason)

	reg, err := f.sync.Get(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", reg.CurrentEmail)
	assert.Len(t, reg.Emails, 2)
}

func TestChangeEmail_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "A", "a@x.com", "secret1")
	f.signup(t, "B", "b@x.com", "secret2")

	_, err := f.accounts.ChangeEmail(ctx, a.User.ID, ChangeEmailInput{NewEmail: "c@x.com", Password: "wrong"}, RequestMeta{})
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.accounts.ChangeEmail(ctx, a.User.ID, ChangeEmailInput{NewEmail: "b@x.com", Password: "secret1"}, RequestMeta{})
	assert.ErrorIs(t, err, common.ErrorConflict)
	_, err = f.accounts.ChangeEmail(ctx, a.User.ID, ChangeEmailInput{NewEmail: "B@X.COM", Password: "secret1"}, RequestMeta{})
	assert.ErrorIs(t, err, common.ErrorConflict)

	_, err = f.accounts.ChangeEmail(ctx, a.User.ID, ChangeEmailInput{NewEmail: "a@x.com", Password: "secret1"}, RequestMeta{})
	assert.ErrorIs(t, err, common.ErrorValidation)

	hist, _ := f.m.EmailHistory(nil).ListByUser(ctx, a.User.ID)
	assert.Empty(t, hist)
}

func TestChangeEmail_HistoryFailureLeavesEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "A", "a@x.com", "secret1")
	f.m.Store.FailOn(memory.OpEmailHistoryAppend, errors.New("boom"), 0)

	_, err := f.accounts.ChangeEmail(ctx, a.User.ID, ChangeEmailInput{NewEmail: "c@x.com", Password: "secret1"}, RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, 0, f.m.Store.Calls(memory.OpUserUpdateEmail))

	u, _ := f.accounts.Me(ctx, a.User.ID)
	assert.Equal(t, "a@x.com", u.Email)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "A", "a@x.com", "secret1")

	err := f.accounts.ChangePassword(ctx, a.User.ID, ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "secret9", ConfirmPassword: "secret8"})
	assert.ErrorIs(t, err, common.ErrorValidation)

	err = f.accounts.ChangePassword(ctx, a.User.ID, ChangePasswordInput{CurrentPassword: "wrong1", NewPassword: "secret9", ConfirmPassword: "secret9"})
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	err = f.accounts.ChangePassword(ctx, a.User.ID, ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "secret9", ConfirmPassword: "secret9"})
	require.NoError(t, err)

	_, err = f.accounts.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = f.accounts.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret9"})
	assert.NoError(t, err)

	_, ok := f.notes.last(notify.KindPasswordChanged)
	assert.True(t, ok)
}

func TestPasswordLimitCountsBytes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "A", "a@x.com", "secret1")
	long := strings.Repeat("é", 40)

	assertField := func(t *testing.T, err error, field string) {
		t.Helper()
		var verr *common.ValidationError
		require.True(t, errors.As(err, &verr), "got %v", err)
		assert.Equal(t, field, verr.Field)
	}

	_, err := f.accounts.Signup(ctx, SignupInput{Name: "B", Email: "b@x.com", Password: long, ConfirmPassword: long})
	assertField(t, err, "password")
	assert.Equal(t, 1, f.m.Store.UserCount())

	err = f.accounts.ChangePassword(ctx, a.User.ID, ChangePasswordInput{CurrentPassword: "secret1", NewPassword: long, ConfirmPassword: long})
	assertField(t, err, "newPassword")

	err = f.accounts.ResetPassword(ctx, ResetPasswordInput{Email: "a@x.com", Token: "tok", Password: long, ConfirmPassword: long})
	assertField(t, err, "password")

	_, err = f.accounts.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret1"})
	assert.NoError(t, err)
}

func TestForgotPassword_SameAnswerForEveryEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "A", "a@x.com", "secret1")

	known, err1 := f.accounts.ForgotPassword(ctx, "a@x.com")
	unknown, err2 := f.accounts.ForgotPassword(ctx, "ghost@x.com")
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, known, unknown)
	assert.Equal(t, common.GenericResetMessage, known)

	msg, ok := f.notes.last(notify.KindPasswordReset)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", msg.To)
	assert.True(t, strings.HasPrefix(msg.Data[notify.DataResetURL], "https://app.example.com/reset-password?"))
	assert.Len(t, resetTokenFrom(t, msg), common.ResetTokenBytes*2)
}

func TestForgotPassword_StoreFailureStillGeneric(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "A", "a@x.com", "secret1")
	f.m.Store.FailOn(memory.OpUserSetResetToken, errors.New("boom"), 0)

	msg, err := f.accounts.ForgotPassword(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, common.GenericResetMessage, msg)
	_, sent := f.notes.last(notify.KindPasswordReset)
	assert.False(t, sent)
}

func TestResetPassword_TokenAcceptedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "A", "a@x.com", "secret1")

	_, err := f.accounts.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)
	msg, _ := f.notes.last(notify.KindPasswordReset)
	token := resetTokenFrom(t, msg)

	require.NoError(t, f.accounts.ValidateResetToken(ctx, "a@x.com", token))
	assert.ErrorIs(t, f.accounts.ValidateResetToken(ctx, "b@x.com", token), common.ErrorUnauthorized)

	in := ResetPasswordInput{Email: "a@x.com", Token: token, Password: "newpass1", ConfirmPassword: "newpass1"}
	require.NoError(t, f.accounts.ResetPassword(ctx, in))

	_, err = f.accounts.Login(ctx, LoginInput{Email: "a@x.com", Password: "newpass1"})
	require.NoError(t, err)

	in.Password, in.ConfirmPassword = "another1", "another1"
	assert.ErrorIs(t, f.accounts.ResetPassword(ctx, in), common.ErrorUnauthorized)
	assert.ErrorIs(t, f.accounts.ValidateResetToken(ctx, "a@x.com", token), common.ErrorUnauthorized)

	u, _ := f.accounts.Me(ctx, msgUserID(t, f, "a@x.com"))
	assert.Nil(t, u.ResetToken)
	assert.Nil(t, u.ResetTokenExpiry)
}

func msgUserID(t *testing.T, f *fixture, email string) string {
	t.Helper()
	u, err := f.m.Users(nil).GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.ID
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "A", "a@x.com", "secret1")
	require.NoError(t, f.m.Users(nil).SetResetToken(ctx, a.User.ID, "tok", time.Now().Add(-time.Minute)))

	err := f.accounts.ResetPassword(ctx, ResetPasswordInput{Email: "a@x.com", Token: "tok", Password: "newpass1", ConfirmPassword: "newpass1"})
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.accounts.Login(ctx, LoginInput{Email: "a@x.com", Password: "secret1"})
	assert.NoError(t, err)
}

func TestDeleteAccount_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.signup(t, "A", "a@x.com", "secret1")
	require.NotEmpty(t, sess.Token)
	f.addSub(t, sess.User.ID, "Netflix", "19.99", models.CycleMonthly)

	snap, err := f.accounts.DeleteAccount(ctx, sess.User.ID, "leaving")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SubscriptionCount)
	assert.Equal(t, "19.99", snap.TotalSpent.StringFixed(2))
	assert.Equal(t, models.ActorUser, snap.DeletedBy)

	archived, err := f.m.Archive(nil).ListDeletedUsers(ctx, sess.User.ID)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, 1, archived[0].SubscriptionCount)
	assert.Equal(t, "19.99", archived[0].TotalSpent.StringFixed(2))

	assert.Equal(t, 0, f.m.Store.UserCount())
	assert.Equal(t, 0, f.m.Store.SubscriptionCount(sess.User.ID))
	_, err = f.sync.Get(ctx, sess.User.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeleteAccount_SnapshotFailureTouchesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "A", "a@x.com", "secret1")
	f.addSub(t, sess.User.ID, "Netflix", "19.99", models.CycleMonthly)
	f.m.Store.FailOn(memory.OpArchiveUser, errors.New("archive down"), 0)

	_, err := f.accounts.DeleteAccount(ctx, sess.User.ID, "")
	require.Error(t, err)
	assert.Equal(t, 1, f.m.Store.UserCount())
	assert.Equal(t, 1, f.m.Store.SubscriptionCount(sess.User.ID))
}

func TestDeleteAccount_IgnoresCancellation(t *testing.T) {
	f := newFixture(t)
	sess := f.signup(t, "A", "a@x.com", "secret1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.accounts.DeleteAccount(ctx, sess.User.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, f.m.Store.UserCount())
}

func TestAdminDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "A", "a@x.com", "secret1")
	b := f.signup(t, "B", "b@x.com", "secret2")

	_, err := f.accounts.AdminDeleteAccount(ctx, b.User.ID, a.User.ID, "")
	assert.ErrorIs(t, err, common.ErrorForbidden)
	assert.Equal(t, 2, f.m.Store.UserCount())

	snap, err := f.accounts.AdminDeleteAccount(ctx, adminID, a.User.ID, "abuse")
	require.NoError(t, err)
	assert.Equal(t, models.ActorAdmin, snap.DeletedBy)
	assert.Equal(t, "abuse", snap.Reason)

	_, err = f.accounts.AdminDeleteAccount(ctx, adminID, a.User.ID, "")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.ErrorIs(t, f.accounts.AdminResync(ctx, b.User.ID, b.User.ID), common.ErrorForbidden)
	assert.NoError(t, f.accounts.AdminResync(ctx, adminID, b.User.ID))
}

func TestRegistry_RebuildsMissingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "A", "a@x.com", "secret1")
	require.NoError(t, f.m.Registry(nil).Delete(ctx, a.User.ID))

	reg, err := f.accounts.Registry(ctx, a.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", reg.CurrentEmail)
	require.Len(t, reg.Emails, 1)
	assert.Equal(t, models.EmailSourceImport, reg.Emails[0].Source)
}

func TestSendMonthlyReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signup(t, "A", "a@x.com", "secret1")
	f.addSub(t, a.User.ID, "Netflix", "10.00", models.CycleWeekly)
	f.addSub(t, a.User.ID, "Cloud", "120.00", models.CycleYearly)

	require.NoError(t, f.accounts.SendMonthlyReport(ctx, a.User.ID))
	msg, ok := f.notes.last(notify.KindMonthlyReport)
	require.True(t, ok)
	assert.Equal(t, "2", msg.Data[notify.DataCount])
	assert.Equal(t, "53.30", msg.Data[notify.DataTotal])

	f.notes.err = errors.New("smtp down")
	assert.Error(t, f.accounts.SendMonthlyReport(ctx, a.User.ID))
}
