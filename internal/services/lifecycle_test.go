package services

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/common"
	"github.com/dmitrijs2005/drawbridge/internal/events"
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddToWaitlist_ListedWithStageOne(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.waitlisted(t, "b@example.com", 2)
	e.waitlisted(t, "a@example.com", 1)

	list, err := e.admin.GetWaitlist(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a@example.com", list[0].Email)
	assert.Equal(t, "b@example.com", list[1].Email)
	for _, a := range list {
		assert.Equal(t, models.StageWaitlisted, a.Stage)
		assert.Equal(t, "10.0.0.1", a.WaitlistIP)
		assert.Equal(t, "/landing", a.WaitlistSourceURL)
	}
	assert.Equal(t, models.Stats{NumWaitlist: 2}, e.stats(t))
}

func TestAddToWaitlist_DuplicateIsRejected(t *testing.T) {
	e := newEnv(t)
	e.waitlisted(t, "a@example.com", 0)
	before := e.snapshot(t)

	err := e.lifecycle.AddToWaitlist(context.Background(), "A@EXAMPLE.com", "1.1.1.1", t0.Add(time.Hour), "/other")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
	assert.Equal(t, before, e.snapshot(t))
	assert.Equal(t, int64(1), e.stats(t).NumWaitlist)
}

func TestAddToWaitlist_RequiresEmail(t *testing.T) {
	e := newEnv(t)
	err := e.lifecycle.AddToWaitlist(context.Background(), "", "ip", t0, "")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestLifecycle_FullScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	at := t0

	require.NoError(t, e.lifecycle.AddToWaitlist(ctx, "A@Example.com", "1.2.3.4", at, "/"))
	assert.Equal(t, "A@Example.com", e.mr.HGet("a@example.com", "email"))
	assert.Equal(t, "1", e.mr.HGet("a@example.com", "stage"))
	assert.Equal(t, "1.2.3.4", e.mr.HGet("a@example.com", "wl_ip"))
	score, err := e.mr.ZScore("waitlist", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, float64(at.UnixMilli()), score)

	inv, err := e.lifecycle.InviteSignup(ctx, "A@Example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, inv)
	assert.Equal(t, "2", e.mr.HGet("a@example.com", "stage"))
	assert.Empty(t, e.zmembers(t, "waitlist"))
	assert.Equal(t, "a@example.com", e.mr.HGet("invited", inv))

	reg, err := e.lifecycle.CreateUnactivatedUser(ctx, Registration{
		InviteToken:       inv,
		Email:             "A@Example.com",
		PasswordHash:      "hash",
		ConfirmationToken: "confirm-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageUnconfirmed, reg.Stage)
	assert.Equal(t, "confirm-1", reg.ConfirmationToken)
	assert.Equal(t, "hash", reg.PasswordHash)
	assert.Equal(t, "a@example.com", e.mr.HGet("unconfirmed", "confirm-1"))
	assert.Empty(t, e.hkeys(t, "invited"))

	act, err := e.lifecycle.ActivateUser(ctx, "confirm-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageActive, act.Stage)
	assert.False(t, act.CreatedAt.IsZero())
	assert.Equal(t, "A@Example.com", act.Email)
	assert.Empty(t, e.hkeys(t, "unconfirmed"))
	assert.Equal(t, []string{"a@example.com"}, e.zmembers(t, "users"))
	userScore, err := e.mr.ZScore("users", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, float64(act.CreatedAt.UnixMilli()), userScore)

	assert.Equal(t, models.Stats{NumUsers: 1}, e.stats(t))
	assert.Equal(t, []events.Kind{
		events.WaitlistJoined,
		events.InviteIssued,
		events.RegistrationCreated,
		events.AccountActivated,
	}, e.sink.Kinds())
}

func TestInviteSignup_SecondCallReturnsSameToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.waitlisted(t, "a@example.com", 0)

	first, err := e.lifecycle.InviteSignup(ctx, "a@example.com")
	require.NoError(t, err)
	second, err := e.lifecycle.InviteSignup(ctx, "A@example.com")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, e.zmembers(t, "waitlist"))
	assert.Equal(t, []string{first}, e.hkeys(t, "invited"))
	assert.Equal(t, models.Stats{NumInvited: 1}, e.stats(t))
}

func TestInviteSignup_ExistingTokenStillLeavesWaitlist(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tok := e.invited(t, "a@example.com", 0)

	_, err := e.mr.ZAdd("waitlist", 1, "a@example.com")
	require.NoError(t, err)
	e.mr.HSet("stats", "numWaitlist", "1")

	again, err := e.lifecycle.InviteSignup(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, tok, again)
	assert.Empty(t, e.zmembers(t, "waitlist"))
	assert.Equal(t, int64(0), e.stats(t).NumWaitlist)
}

func TestInviteSignup_WaitlistedWithLeftoverTokenGetsFreshInvite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.waitlisted(t, "a@example.com", 0)
	e.mr.HSet("a@example.com", "inv_token", "old")
	e.mr.HSet("invited", "old", "a@example.com")
	e.mr.HSet("stats", "numInvited", "1")

	tok, err := e.lifecycle.InviteSignup(ctx, "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "old", tok)

	a, err := e.admin.FindUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.StageInvited, a.Stage)
	assert.Equal(t, tok, a.InviteToken)
	assert.Empty(t, e.zmembers(t, "waitlist"))
	assert.Equal(t, []string{tok}, e.hkeys(t, "invited"))
	assert.Equal(t, models.Stats{NumInvited: 1}, e.stats(t))

	rep, err := e.admin.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, rep.Drift)
}

func TestInviteSignup_WaitlistedWithBareLeftoverToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.waitlisted(t, "a@example.com", 0)
	e.mr.HSet("a@example.com", "inv_token", "old")

	tok, err := e.lifecycle.InviteSignup(ctx, "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "old", tok)
	assert.Equal(t, []string{tok}, e.hkeys(t, "invited"))
	assert.Equal(t, models.Stats{NumInvited: 1}, e.stats(t))
}

func TestInviteSignup_UnknownEmail(t *testing.T) {
	e := newEnv(t)
	_, err := e.lifecycle.InviteSignup(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestInviteSignup_ActiveAccountCannotBeInvited(t *testing.T) {
	e := newEnv(t)
	e.activated(t, "a@example.com", 0)
	e.mr.HDel("a@example.com", "inv_token")

	_, err := e.lifecycle.InviteSignup(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestInviteSignup_ConcurrentChangeIsConflict(t *testing.T) {
	var e *env
	e = newEnvWithStore(t, func(s kv.Store) kv.Store {
		return &meddlingStore{Store: s, meddle: func(ctx context.Context) {
			e.other.HSet(ctx, "a@example.com", "wl_ip", "9.9.9.9")
		}}
	})
	e.mr.HSet("a@example.com", "email", "a@example.com", "stage", "1")
	_, err := e.mr.ZAdd("waitlist", 1, "a@example.com")
	require.NoError(t, err)

	_, err = e.lifecycle.InviteSignup(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, "1", e.mr.HGet("a@example.com", "stage"))
	assert.Equal(t, "", e.mr.HGet("a@example.com", "inv_token"))
	assert.Equal(t, []string{"a@example.com"}, e.zmembers(t, "waitlist"))
	assert.Empty(t, e.hkeys(t, "invited"))
}

func TestUndoInvite_RestoresWaitlistPosition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tok := e.invited(t, "a@example.com", 5)

	require.NoError(t, e.lifecycle.UndoInvite(ctx, "a@example.com", tok, time.Time{}))

	assert.Equal(t, "1", e.mr.HGet("a@example.com", "stage"))
	assert.Equal(t, "", e.mr.HGet("a@example.com", "inv_token"))
	assert.Empty(t, e.hkeys(t, "invited"))
	score, err := e.mr.ZScore("waitlist", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, float64(t0.Add(5*time.Second).UnixMilli()), score)
	assert.Equal(t, models.Stats{NumWaitlist: 1}, e.stats(t))

	fresh, err := e.lifecycle.InviteSignup(ctx, "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, tok, fresh)
}

func TestUndoInvite_ExplicitTime(t *testing.T) {
	e := newEnv(t)
	tok := e.invited(t, "a@example.com", 0)
	at := t0.Add(24 * time.Hour)

	require.NoError(t, e.lifecycle.UndoInvite(context.Background(), "a@example.com", tok, at))
	score, err := e.mr.ZScore("waitlist", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, float64(at.UnixMilli()), score)
}

func TestUndoInvite_WrongTokenChangesNothing(t *testing.T) {
	e := newEnv(t)
	e.invited(t, "a@example.com", 0)
	before := e.snapshot(t)

	err := e.lifecycle.UndoInvite(context.Background(), "a@example.com", "nope", t0)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.Equal(t, before, e.snapshot(t))
}

func TestUndoInvite_NotInvited(t *testing.T) {
	e := newEnv(t)
	e.waitlisted(t, "a@example.com", 0)

	err := e.lifecycle.UndoInvite(context.Background(), "a@example.com", "tok", t0)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestCreateUnactivatedUser_DifferentEmailRekeysRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tok := e.invited(t, "old@example.com", 3)

	a, err := e.lifecycle.CreateUnactivatedUser(ctx, Registration{
		InviteToken:  tok,
		Email:        "New@Example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)

	assert.False(t, e.mr.Exists("old@example.com"))
	require.True(t, e.mr.Exists("new@example.com"))
	assert.Equal(t, "New@Example.com", a.Email)
	assert.Equal(t, "10.0.0.1", a.WaitlistIP)
	assert.Equal(t, t0.Add(3*time.Second), a.WaitlistTime)
	assert.Equal(t, "new@example.com", e.mr.HGet("unconfirmed", a.ConfirmationToken))

	_, err = e.admin.FindUserByEmail(ctx, "old@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCreateUnactivatedUser_CaseOnlyDifferenceKeepsKey(t *testing.T) {
	e := newEnv(t)
	tok := e.invited(t, "a@example.com", 0)

	a, err := e.lifecycle.CreateUnactivatedUser(context.Background(), Registration{
		InviteToken:  tok,
		Email:        "A@Example.COM",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.Equal(t, "A@Example.COM", a.Email)
	assert.Equal(t, "A@Example.COM", e.mr.HGet("a@example.com", "email"))
}

func TestCreateUnactivatedUser_RegistrationEmailTaken(t *testing.T) {
	e := newEnv(t)
	tok := e.invited(t, "a@example.com", 0)
	e.waitlisted(t, "b@example.com", 1)
	before := e.snapshot(t)

	_, err := e.lifecycle.CreateUnactivatedUser(context.Background(), Registration{
		InviteToken: tok, Email: "b@example.com", PasswordHash: "hash",
	})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
	assert.Equal(t, before, e.snapshot(t))
}

func TestCreateUnactivatedUser_ReservesScreenName(t *testing.T) {
	e := newEnv(t)
	tok := e.invited(t, "a@example.com", 0)

	a, err := e.lifecycle.CreateUnactivatedUser(context.Background(), Registration{
		InviteToken: tok, Email: "a@example.com", PasswordHash: "hash", ScreenName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", a.ScreenName)
	assert.Equal(t, "a@example.com", e.mr.HGet("screenNames", "alice"))
}

func TestCreateUnactivatedUser_ScreenNameTakenChangesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.invited(t, "a@example.com", 0)
	_, err := e.lifecycle.CreateUnactivatedUser(ctx, Registration{
		InviteToken: first, Email: "a@example.com", PasswordHash: "h", ScreenName: "Alice",
	})
	require.NoError(t, err)

	second := e.invited(t, "b@example.com", 1)
	before := e.snapshot(t)

	_, err = e.lifecycle.CreateUnactivatedUser(ctx, Registration{
		InviteToken: second, Email: "b@example.com", PasswordHash: "h", ScreenName: "ALICE",
	})
	assert.ErrorIs(t, err, common.ErrScreenNameTaken)
	assert.Equal(t, before, e.snapshot(t))
}

func TestCreateUnactivatedUser_UnknownInviteToken(t *testing.T) {
	e := newEnv(t)
	_, err := e.lifecycle.CreateUnactivatedUser(context.Background(), Registration{
		InviteToken: "nope", Email: "a@example.com", PasswordHash: "h",
	})
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestActivateUser_UnknownTokenMutatesNothing(t *testing.T) {
	e := newEnv(t)
	e.registered(t, "a@example.com", 0)
	before := e.snapshot(t)
	stats := e.stats(t)

	_, err := e.lifecycle.ActivateUser(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.Equal(t, before, e.snapshot(t))
	assert.Equal(t, stats, e.stats(t))

	_, err = e.lifecycle.ActivateUser(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestCounters_FollowPopulations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	const n, m, k, j = 6, 4, 3, 1

	emails := make([]string, n)
	for i := range emails {
		emails[i] = "user" + strconv.Itoa(i) + "@example.com"
		e.waitlisted(t, emails[i], i)
	}

	invites := make([]string, m)
	for i := 0; i < m; i++ {
		tok, err := e.lifecycle.InviteSignup(ctx, emails[i])
		require.NoError(t, err)
		invites[i] = tok
	}

	confirms := make([]string, k)
	for i := 0; i < k; i++ {
		a, err := e.lifecycle.CreateUnactivatedUser(ctx, Registration{
			InviteToken: invites[i], Email: emails[i], PasswordHash: "h",
		})
		require.NoError(t, err)
		confirms[i] = a.ConfirmationToken
	}

	for i := 0; i < j; i++ {
		_, err := e.lifecycle.ActivateUser(ctx, confirms[i])
		require.NoError(t, err)
	}

	assert.Equal(t, models.Stats{
		NumWaitlist:    n - m,
		NumInvited:     m - k,
		NumUnConfirmed: k - j,
		NumUsers:       j,
	}, e.stats(t))

	rep, err := e.admin.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, rep.Drift)
}

func TestLogUserIn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.activated(t, "a@example.com", 0)

	require.NoError(t, e.lifecycle.LogUserIn(ctx, "A@example.com", "8.8.8.8"))
	a, err := e.admin.FindUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "8.8.8.8", a.LastLoginIP)
	assert.False(t, a.LastLogin.IsZero())
	assert.Equal(t, models.StageActive, a.Stage)

	err = e.lifecycle.LogUserIn(ctx, "ghost@example.com", "8.8.8.8")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.False(t, e.mr.Exists("ghost@example.com"))
}

func TestLifecycle_StoreFailure(t *testing.T) {
	e := newEnv(t)
	e.mr.SetError("LOADING")

	err := e.lifecycle.AddToWaitlist(context.Background(), "a@example.com", "ip", t0, "")
	assert.ErrorIs(t, err, common.ErrStore)
}

func TestLifecycle_SinkFailureDoesNotFailTransition(t *testing.T) {
	e := newEnv(t)
	e.lifecycle.sink = failingSink{}

	e.waitlisted(t, "a@example.com", 0)
	_, err := e.lifecycle.InviteSignup(context.Background(), "a@example.com")
	require.NoError(t, err)
}
