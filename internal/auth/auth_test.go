package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/storage"
	"github.com/tavernlink/internal/storage/memory"
	"github.com/tavernlink/internal/store"
)

func newService(t *testing.T) (*Service, *store.Store, storage.AttemptStore) {
	t.Helper()
	st := store.New(memory.NewBackend().Repositories(), access.NewDirectory(), nil, store.Options{})
	attempts := memory.New()
	return NewService(st, attempts, NewTokens("test-secret", time.Hour, attempts)), st, attempts
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour, nil)
	raw, exp, err := tokens.Issue("u1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, err := tokens.Validate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestTokenRejectsForeignSecretAndExpiry(t *testing.T) {
	ctx := context.Background()
	raw, _, err := NewTokens("other", time.Hour, nil).Issue("u1")
	require.NoError(t, err)
	_, err = NewTokens("secret", time.Hour, nil).Validate(ctx, raw)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))

	old := NewTokens("secret", time.Minute, nil)
	old.now = func() time.Time { return time.Now().Add(-time.Hour) }
	raw, _, err = old.Issue("u1")
	require.NoError(t, err)
	_, err = NewTokens("secret", time.Minute, nil).Validate(ctx, raw)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))

	_, err = NewTokens("secret", time.Minute, nil).Validate(ctx, "not-a-token")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestRevokeRejectsEarlierTokens(t *testing.T) {
	ctx := context.Background()
	attempts := memory.New()
	tokens := NewTokens("secret", 24*time.Hour, attempts)

	tokens.now = func() time.Time { return time.Now().Add(-time.Minute) }
	stale, _, err := tokens.Issue("u1")
	require.NoError(t, err)

	tokens.now = time.Now
	require.NoError(t, tokens.Revoke(ctx, "u1"))
	_, err = tokens.Validate(ctx, stale)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))

	fresh, _, err := tokens.Issue("u1")
	require.NoError(t, err)
	id, err := tokens.Validate(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestRecoveryKeyFormat(t *testing.T) {
	k, err := NewRecoveryKey()
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`, k)
	assert.Equal(t, normalizeRecoveryKey(k), normalizeRecoveryKey(" "+k+" "))
}

func TestRegisterLoginReset(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	sess, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "wonderland"}, "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.NotEmpty(t, sess.RecoveryKey)
	assert.Equal(t, "alice", sess.User.DisplayName)

	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong-one"}, "10.0.0.1")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
	_, err = svc.Login(ctx, LoginRequest{Username: "nobody", Password: "wonderland"}, "10.0.0.1")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))

	logged, err := svc.Login(ctx, LoginRequest{Username: "ALICE", Password: "wonderland"}, "10.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, logged.RecoveryKey)

	_, err = svc.ResetPassword(ctx, ResetPasswordRequest{Username: "alice", RecoveryKey: "0000-0000-0000-0000", NewPassword: "looking-glass"}, "10.0.0.1")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))

	lower := "  " + sess.RecoveryKey + " "
	reset, err := svc.ResetPassword(ctx, ResetPasswordRequest{Username: "alice", RecoveryKey: lower, NewPassword: "looking-glass"}, "10.0.0.1")
	require.NoError(t, err)
	u, err := svc.Authenticate(ctx, reset.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)

	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "wonderland"}, "10.0.0.1")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "looking-glass"}, "10.0.0.1")
	assert.NoError(t, err)
}

func TestRegisterValidatesPassword(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Register(context.Background(), RegisterRequest{Username: "bob", Password: "123"}, "ip")
	assert.True(t, apperr.Is(err, apperr.Invalid))
}

func TestLoginRateLimited(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	_, err := svc.Register(ctx, RegisterRequest{Username: "carol", Password: "password1"}, "ip")
	require.NoError(t, err)

	for i := 0; i < storage.AttemptLimit; i++ {
		_, err := svc.Login(ctx, LoginRequest{Username: "carol", Password: "nope-nope"}, "1.2.3.4")
		require.True(t, apperr.Is(err, apperr.Unauthorized))
	}
	_, err = svc.Login(ctx, LoginRequest{Username: "carol", Password: "password1"}, "1.2.3.4")
	assert.True(t, apperr.Is(err, apperr.TooManyRequests))

	// другой адрес считается отдельно
	_, err = svc.Login(ctx, LoginRequest{Username: "carol", Password: "password1"}, "5.6.7.8")
	assert.NoError(t, err)
}

func TestAuthenticateDeletedUser(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)
	sess, err := svc.Register(ctx, RegisterRequest{Username: "dave", Password: "password1"}, "ip")
	require.NoError(t, err)
	require.NoError(t, st.DeleteUser(ctx, sess.User.ID, sess.User.ID))

	_, err = svc.Authenticate(ctx, sess.Token)
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}
