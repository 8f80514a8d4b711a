package sessions

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*SessionStore, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewSessionStore(time.Hour)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestSessionExpire(t *testing.T) {
	r := require.New(t)

	store, now := newTestStore()
	session := store.NewSession()
	store.Put(session)

	r.NotNil(store.Get(session.Id), "session should not be nil")

	// Reap, this is too soon for a timeout...
	store.Reap()
	r.Equal(1, store.Len())

	// Move the clock past the expiry.
	*now = now.Add(2 * time.Hour)
	store.Reap()
	r.Equal(0, store.Len())
	r.Nil(store.Get(session.Id), "session should be nil")
}

func TestSessionExpireUpdate(t *testing.T) {
	r := require.New(t)
	store, now := newTestStore()

	// Create a session, the expiration will be sometime in the future.
	session := store.NewSession()
	expiration := session.Expires()
	r.True(expiration.After(*now))

	// Store the session. The expiration should not be updated.
	store.Put(session)
	r.Equal(expiration, session.Expires())

	// Get the session later, this should update the expiration time.
	*now = now.Add(30 * time.Minute)
	session = store.Get(session.Id)
	r.NotNil(session)
	r.Equal(now.Add(time.Hour), session.Expires())
}

func TestExpiredSessionNotReturned(t *testing.T) {
	store, now := newTestStore()
	session := store.NewSession()
	store.Put(session)
	*now = now.Add(61 * time.Minute)
	assert.Nil(t, store.Get(session.Id))
	assert.Equal(t, 0, store.Len())
}

func TestGenerateIDUnique(t *testing.T) {
	store := NewSessionStore(0)
	assert.Equal(t, DefaultTimeout, store.Timeout())
	a := store.GenerateID()
	b := store.GenerateID()
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
}

func TestFindSession(t *testing.T) {
	store, _ := newTestStore()
	session := store.NewSession()
	store.Put(session)

	r := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	assert.Nil(t, store.FindSession(r))

	r.Header.Set(SessionKey, session.Id)
	assert.Equal(t, session, store.FindSession(r))

	r = httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	r.AddCookie(store.Cookie(session))
	assert.Equal(t, session, store.FindSession(r))

	store.Delete(session)
	assert.Nil(t, store.FindSession(r))
}

func TestCookie(t *testing.T) {
	store, _ := newTestStore()
	cookie := store.Cookie(store.NewSession())
	assert.Equal(t, SessionKey, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 3600, cookie.MaxAge)
}

func TestStart(t *testing.T) {
	r := require.New(t)
	store := NewSessionStore(time.Hour)
	session := store.Start(core.NewAnonymousUser("admin"), "127.0.0.1:1234")
	r.Equal("admin", session.Username())
	r.Equal("127.0.0.1:1234", session.RemoteAddr)
	r.False(session.Created.IsZero())
	r.Same(session, store.Get(session.Id))
	r.Equal(1, store.Len())
}
