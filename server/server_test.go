package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jasonish/evecore/config"
	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/server/api"
	"github.com/jasonish/evecore/server/auth"
	"github.com/jasonish/evecore/server/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyUserStore struct {
	core.UserStore
}

func (s *emptyUserStore) FindByUsernamePassword(username string, password string) (core.User, error) {
	return core.User{}, auth.ErrBadLogin
}

func openTestDatastore(t *testing.T) *Datastore {
	datastore, err := OpenDatastore(context.Background(), config.DatabaseConfig{
		Type:   config.DatabaseSqlite,
		Sqlite: config.SqliteConfig{Filename: ":memory:"},
	})
	require.Nil(t, err)
	t.Cleanup(func() { datastore.Close() })
	return datastore
}

func newTestServer(t *testing.T, address string) *Server {
	datastore := openTestDatastore(t)
	sessionStore := sessions.NewSessionStore(sessions.DefaultTimeout)
	authenticator := auth.NewUsernamePasswordAuthenticator(sessionStore, &emptyUserStore{})
	apiContext := api.NewApiContext(datastore, nil, sessionStore, authenticator)
	return NewServer(Options{Address: address}, apiContext, sessionStore, authenticator)
}

func TestOpenDatastore(t *testing.T) {
	datastore := openTestDatastore(t)
	assert.Equal(t, config.DatabaseSqlite, datastore.Type)
	assert.NotNil(t, datastore.Sweeper)
	assert.NotNil(t, datastore.GetEveEventSink())

	_, err := OpenDatastore(context.Background(), config.DatabaseConfig{Type: "mongodb"})
	assert.NotNil(t, err)
}

func TestRoutesRequireAuthentication(t *testing.T) {
	s := httptest.NewServer(newTestServer(t, "").Handler())
	defer s.Close()

	response, err := http.Get(s.URL + "/api/version")
	require.Nil(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, err = http.PostForm(s.URL+"/api/login", nil)
	require.Nil(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, err = http.Get(s.URL + "/metrics")
	require.Nil(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusOK, response.StatusCode)
}

func freeAddress(t *testing.T) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	address := listener.Addr().String()
	listener.Close()
	return address
}

func TestRunStopsOnCancel(t *testing.T) {
	address := freeAddress(t)
	server := newTestServer(t, address)

	started := make(chan struct{})
	server.AddService("test", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- server.Run(ctx)
	}()

	<-started
	assert.Eventually(t, func() bool {
		response, err := http.Get("http://" + address + "/metrics")
		if err != nil {
			return false
		}
		response.Body.Close()
		return response.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunReturnsServiceError(t *testing.T) {
	server := newTestServer(t, freeAddress(t))
	server.AddService("broken", func(ctx context.Context) error {
		return core.NewBadRequestError("broken")
	})

	err := server.Run(context.Background())
	require.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "broken failed"))
}
