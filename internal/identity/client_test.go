package identity

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/voluntr-go/internal/model"
)

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	default:
		t.Fatal("expected a pending notification")
		return Notification{}
	}
}

func TestClient_SignedOutByDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c := svc.NewClient(ctx, "", ClientMeta{})
	defer c.Close()

	user, err := c.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	session, err := c.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	assert.ErrorIs(t, c.SignOut(ctx), ErrNoSession)
}

func TestClient_NotificationSequence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	signUp(t, svc, "v@example.com")

	c := svc.NewClient(ctx, "", ClientMeta{})
	defer c.Close()

	session, err := c.SignIn(ctx, "v@example.com", testPassword)
	require.NoError(t, err)

	n := receive(t, c.Notifications())
	assert.Equal(t, EventSignedIn, n.Kind)
	require.NotNil(t, n.Session)
	assert.Equal(t, session.ID, n.Session.ID)

	user, err := c.GetCurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "v@example.com", user.Email)

	_, err = c.UpdateUser(ctx, "another-long-password")
	require.NoError(t, err)
	n = receive(t, c.Notifications())
	assert.Equal(t, EventUserUpdated, n.Kind)

	refreshed, err := c.Refresh(ctx)
	require.NoError(t, err)
	n = receive(t, c.Notifications())
	assert.Equal(t, EventTokenRefreshed, n.Kind)
	assert.Equal(t, refreshed.AccessToken, c.AccessToken())

	require.NoError(t, c.SignOut(ctx))
	n = receive(t, c.Notifications())
	assert.Equal(t, EventSignedOut, n.Kind)
	assert.Nil(t, n.Session)
	assert.Empty(t, c.AccessToken())
	assert.Zero(t, svc.Hub().Subscribers(user.ID))
}

func TestClient_ObservesOtherClients(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	signUp(t, svc, "v@example.com")

	first := svc.NewClient(ctx, "", ClientMeta{})
	defer first.Close()
	session, err := first.SignIn(ctx, "v@example.com", testPassword)
	require.NoError(t, err)
	receive(t, first.Notifications())

	second := svc.NewClient(ctx, session.AccessToken, ClientMeta{})
	defer second.Close()
	assert.Equal(t, 2, svc.Hub().Subscribers(session.User.ID))

	_, err = second.UpdateUser(ctx, "another-long-password")
	require.NoError(t, err)

	for _, c := range []*Client{first, second} {
		n := receive(t, c.Notifications())
		assert.Equal(t, EventUserUpdated, n.Kind)
	}
}

func TestClient_ExchangeResetToken(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()
	signUp(t, svc, "v@example.com")

	c := svc.NewClient(ctx, "", ClientMeta{})
	defer c.Close()
	require.NoError(t, c.ResetPasswordForEmail(ctx, "v@example.com", ""))

	link, err := url.Parse(mailer.link("v@example.com"))
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	_, err = c.ExchangeResetToken(ctx, token)
	require.NoError(t, err)
	n := receive(t, c.Notifications())
	assert.Equal(t, EventPasswordRecovery, n.Kind)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	c := svc.NewClient(context.Background(), "", ClientMeta{})
	c.Close()
	c.Close()

	_, ok := <-c.Notifications()
	assert.False(t, ok)
}

func TestHub_DropsWhenFull(t *testing.T) {
	svc, _ := newTestService(t)
	hub := svc.Hub()
	ch := make(chan Notification, 1)
	unsubscribe := hub.Subscribe(1, ch)
	defer unsubscribe()

	hub.Publish(1, Notification{Kind: EventSignedIn, Session: &model.Session{ID: "a"}})
	hub.Publish(1, Notification{Kind: EventSignedOut})

	n := <-ch
	assert.Equal(t, EventSignedIn, n.Kind)
	select {
	case <-ch:
		t.Fatal("second notification should have been dropped")
	default:
	}

	unsubscribe()
	unsubscribe()
	assert.Zero(t, hub.Subscribers(1))
}
