package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jasonish/evecore/autoarchive"
	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/ingest"
	"github.com/jasonish/evecore/server/auth"
	"github.com/jasonish/evecore/server/router"
	"github.com/jasonish/evecore/server/sessions"
	"github.com/jasonish/evecore/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	api         *ApiContext
	autoArchive *autoarchive.Store
}

func newTestServer(t *testing.T) *testServer {
	db, err := sqlite.NewSqliteService(":memory:")
	require.Nil(t, err)
	require.Nil(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	datastore := sqlite.NewDataStore(db)
	store, err := autoarchive.NewStore("")
	require.Nil(t, err)

	sessionStore := sessions.NewSessionStore(sessions.DefaultTimeout)
	authenticator := auth.NewAnonymousAuthenticator(sessionStore)
	pipeline := ingest.NewPipeline(datastore, store.Filters)

	apiContext := NewApiContext(datastore, pipeline, sessionStore, authenticator)
	apiContext.SetAutoArchive(store, nil)

	r := router.NewRouter()
	apiContext.InitRoutes(r.Subrouter("/api"))
	handler := auth.Middleware(authenticator, "/api/login")(r.Router)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testServer{
		Server:      server,
		api:         apiContext,
		autoArchive: store,
	}
}

func (s *testServer) do(t *testing.T, method string, path string, body string) (int, map[string]interface{}) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request, err := http.NewRequest(method, s.URL+path, reader)
	require.Nil(t, err)
	response, err := s.Client().Do(request)
	require.Nil(t, err)
	defer response.Body.Close()

	decoded := map[string]interface{}{}
	require.Nil(t, json.NewDecoder(response.Body).Decode(&decoded))
	return response.StatusCode, decoded
}

func (s *testServer) get(t *testing.T, path string, params url.Values) (int, map[string]interface{}) {
	if params != nil {
		path = path + "?" + params.Encode()
	}
	return s.do(t, http.MethodGet, path, "")
}

func alertLine(ts time.Time, src string, dest string, sid int) string {
	return fmt.Sprintf(`{"timestamp":%q,"event_type":"alert","host":"sensor1","src_ip":%q,"dest_ip":%q,"alert":{"signature_id":%d,"signature":"ET DROP Dshield","severity":1,"action":"allowed"}}`,
		eve.FormatTimestampUTC(ts), src, dest, sid)
}

func (s *testServer) seed(t *testing.T) time.Time {
	now := time.Now().UTC().Truncate(time.Second)
	lines := []string{
		alertLine(now.Add(-5*time.Second), "1.1.1.1", "2.2.2.2", 1),
		alertLine(now.Add(-6*time.Second), "1.1.1.1", "2.2.2.2", 1),
		alertLine(now.Add(-7*time.Second), "1.1.1.1", "3.3.3.3", 1),
		fmt.Sprintf(`{"timestamp":%q,"event_type":"flow","host":"sensor1","src_ip":"10.0.0.1","dest_ip":"10.0.0.2","proto":"TCP"}`,
			eve.FormatTimestampUTC(now.Add(-8*time.Second))),
	}
	status, body := s.do(t, http.MethodPost, "/api/submit", strings.Join(lines, "\n"))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(len(lines)), body["Count"])
	return now
}

func groups(body map[string]interface{}) []interface{} {
	events, _ := body["events"].([]interface{})
	return events
}

func TestAlertsAndArchive(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	status, body := s.get(t, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, groups(body), 2)
	assert.Equal(t, false, body["timed_out"])

	first := groups(body)[0].(map[string]interface{})
	metadata := first["_metadata"].(map[string]interface{})
	assert.Equal(t, float64(2), metadata["count"])

	spec := map[string]interface{}{
		"signature_id":  1,
		"src_ip":        "1.1.1.1",
		"dest_ip":       "2.2.2.2",
		"min_timestamp": metadata["min_timestamp"],
		"max_timestamp": metadata["max_timestamp"],
	}
	raw, err := json.Marshal(spec)
	require.Nil(t, err)
	status, _ = s.do(t, http.MethodPost, "/api/alert-group/archive", string(raw))
	require.Equal(t, http.StatusOK, status)

	status, body = s.get(t, "/api/alerts", url.Values{"tags": {"-evebox.archived"}})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, groups(body), 1)
	source := groups(body)[0].(map[string]interface{})["_source"].(map[string]interface{})
	assert.Equal(t, "3.3.3.3", source["dest_ip"])
}

func TestAlertGroupBadRequest(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodPost, "/api/alert-group/star", `{"src_ip": "1.1.1.1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])
}

func TestBadQueryString(t *testing.T) {
	s := newTestServer(t)
	status, body := s.get(t, "/api/alerts", url.Values{"query_string": {`"unterminated`}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])

	status, _ = s.get(t, "/api/events", url.Values{"time_range": {"forever"}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEvents(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	status, body := s.get(t, "/api/events", url.Values{"event_type": {"flow"}})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, groups(body), 1)

	status, body = s.get(t, "/api/events", url.Values{
		"query_string": {"dest_ip:3.3.3.3"},
		"time_range":   {"1h"},
	})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, groups(body), 1)
	id := groups(body)[0].(map[string]interface{})["_id"].(string)

	status, body = s.get(t, "/api/event/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body["_id"])

	status, _ = s.do(t, http.MethodPost, "/api/event/"+id+"/escalate", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodPost, "/api/event/"+id+"/comment", `{"comment": "suspicious"}`)
	assert.Equal(t, http.StatusOK, status)

	status, body = s.get(t, "/api/event/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	tags := body["_source"].(map[string]interface{})["tags"]
	assert.Contains(t, tags, eve.TagEscalated)
}

func TestEventNotFound(t *testing.T) {
	s := newTestServer(t)
	status, body := s.get(t, "/api/event/999", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, body["error"])

	status, _ = s.do(t, http.MethodPost, "/api/event/999/archive", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestReports(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	status, body := s.get(t, "/api/agg", url.Values{"field": {"dest_ip"}, "size": {"5"}})
	require.Equal(t, http.StatusOK, status)
	data := body["data"].([]interface{})
	require.NotEmpty(t, data)
	assert.Equal(t, "2.2.2.2", data[0].(map[string]interface{})["key"])

	status, _ = s.get(t, "/api/agg", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.get(t, "/api/histogram/time", url.Values{"time_range": {"1h"}})
	require.Equal(t, http.StatusOK, status)
	total := 0.0
	for _, bucket := range body["data"].([]interface{}) {
		total += bucket.(map[string]interface{})["count"].(float64)
	}
	assert.Equal(t, float64(4), total)

	status, body = s.get(t, "/api/sensors", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{"sensor1"}, body["data"])
}

func TestSensorsCached(t *testing.T) {
	s := newTestServer(t)
	s.api.sensorCache.Add(sensorCacheKey, []string{"cached"})
	status, body := s.get(t, "/api/sensors", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{"cached"}, body["data"])
}

func TestAutoArchive(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/auto-archive",
		`{"signature_id": 1, "src_ip": "1.1.1.1"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["added"])
	assert.Equal(t, "*,1.1.1.1,*,1", body["key"])

	status, body = s.get(t, "/api/auto-archive", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	// New events matching the rule are archived on ingest.
	s.seed(t)
	status, body = s.get(t, "/api/alerts", url.Values{"tags": {"-evebox.archived"}})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, groups(body), 0)

	status, body = s.do(t, http.MethodDelete, "/api/auto-archive",
		`{"signature_id": 1, "src_ip": "1.1.1.1"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["removed"])
	assert.Equal(t, 0, s.autoArchive.Filters.Len())

	status, _ = s.do(t, http.MethodPost, "/api/auto-archive", `{"src_ip": "1.1.1.1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLoginLogout(t *testing.T) {
	s := newTestServer(t)

	response, err := s.Client().PostForm(s.URL+"/api/login", url.Values{"username": {"admin"}})
	require.Nil(t, err)
	response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)

	var cookie *http.Cookie
	for _, c := range response.Cookies() {
		if c.Name == sessions.SessionKey {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	request, _ := http.NewRequest(http.MethodGet, s.URL+"/api/session", nil)
	request.AddCookie(cookie)
	response, err = s.Client().Do(request)
	require.Nil(t, err)
	var session map[string]interface{}
	require.Nil(t, json.NewDecoder(response.Body).Decode(&session))
	response.Body.Close()
	assert.Equal(t, "admin", session["username"])

	request, _ = http.NewRequest(http.MethodPost, s.URL+"/api/logout", nil)
	request.AddCookie(cookie)
	response, err = s.Client().Do(request)
	require.Nil(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Nil(t, s.api.sessionStore.Get(cookie.Value))
}

func TestVersion(t *testing.T) {
	s := newTestServer(t)
	status, body := s.get(t, "/api/version", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, core.BuildVersion, body["version"])
}

func TestUnimplementedBackend(t *testing.T) {
	sessionStore := sessions.NewSessionStore(sessions.DefaultTimeout)
	authenticator := auth.NewAnonymousAuthenticator(sessionStore)
	apiContext := NewApiContext(&struct{ *core.UnimplementedDatastore }{}, nil,
		sessionStore, authenticator)

	r := router.NewRouter()
	apiContext.InitRoutes(r.Subrouter("/api"))
	server := httptest.NewServer(auth.Middleware(authenticator)(r.Router))
	defer server.Close()

	response, err := server.Client().Get(server.URL + "/api/alerts")
	require.Nil(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, response.StatusCode)

	response, err = server.Client().Post(server.URL+"/api/submit", "application/json",
		strings.NewReader("{}"))
	require.Nil(t, err)
	response.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, response.StatusCode)
}
