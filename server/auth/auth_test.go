package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/server/sessions"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserStore struct {
	core.UserStore
	users map[string]string
}

func (s *fakeUserStore) FindByUsernamePassword(username string, password string) (core.User, error) {
	if expected, ok := s.users[username]; ok && expected == password {
		return core.User{Id: "1", Username: username}, nil
	}
	return core.User{}, errors.New("no such user")
}

func loginRequest(username string, password string) *http.Request {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	r := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestUsernamePasswordLogin(t *testing.T) {
	store := sessions.NewSessionStore(0)
	authenticator := NewUsernamePasswordAuthenticator(store,
		&fakeUserStore{users: map[string]string{"admin": "secret"}})

	_, err := authenticator.Login(loginRequest("", "secret"))
	assert.Equal(t, ErrNoUsername, err)
	_, err = authenticator.Login(loginRequest("admin", ""))
	assert.Equal(t, ErrNoPassword, err)
	_, err = authenticator.Login(loginRequest("admin", "wrong"))
	assert.Equal(t, ErrBadLogin, err)

	session, err := authenticator.Login(loginRequest("admin", "secret"))
	require.Nil(t, err)
	assert.Equal(t, "admin", session.Username())
	assert.Equal(t, 1, store.Len())
}

func TestMiddleware(t *testing.T) {
	store := sessions.NewSessionStore(0)
	authenticator := NewUsernamePasswordAuthenticator(store,
		&fakeUserStore{users: map[string]string{"admin": "secret"}})

	var seen *sessions.Session
	handler := Middleware(authenticator, "/api/login")(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			seen = SessionFromContext(r.Context())
		}))

	// No credentials.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "usernamepassword")
	assert.Nil(t, seen)

	// Skipped path.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Basic auth.
	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	r.SetBasicAuth("admin", "secret")
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "admin", seen.Username())
	sessionId := w.Header().Get(sessions.SessionKey)
	assert.NotEmpty(t, sessionId)

	// Session header.
	seen = nil
	r = httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	r.Header.Set(sessions.SessionKey, sessionId)
	handler.ServeHTTP(httptest.NewRecorder(), r)
	require.NotNil(t, seen)
	assert.Equal(t, sessionId, seen.Id)
}

func TestAnonymous(t *testing.T) {
	store := sessions.NewSessionStore(0)
	authenticator := NewAnonymousAuthenticator(store)

	w := httptest.NewRecorder()
	session := authenticator.Authenticate(w, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	require.NotNil(t, session)
	assert.Equal(t, "anonymous", session.Username())
	assert.True(t, session.User.Anonymous)
	assert.Equal(t, session.Id, w.Header().Get(sessions.SessionKey))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "HttpOnly")

	// The session is reused.
	r := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	r.Header.Set(sessions.SessionKey, session.Id)
	assert.Equal(t, session, authenticator.Authenticate(httptest.NewRecorder(), r))
	assert.Equal(t, 1, store.Len())
}
