package core

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/querystring"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroFill(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	interval := 600 * time.Second
	ms := func(ts time.Time) int64 { return ts.UnixNano() / int64(time.Millisecond) }

	counts := map[int64]uint64{
		BucketStart(t0.Add(10*time.Second), interval):   2,
		BucketStart(t0.Add(1850*time.Second), interval): 1,
	}

	buckets := ZeroFill(t0, t0.Add(3600*time.Second), interval, counts)
	require.Len(t, buckets, 6)

	expected := []uint64{2, 0, 0, 1, 0, 0}
	for i, bucket := range buckets {
		assert.Equal(t, ms(t0.Add(time.Duration(i)*interval)), bucket.Time)
		assert.Equal(t, expected[i], bucket.Count)
	}
}

func TestZeroFillNoGaps(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 3, 17, 0, time.UTC)
	end := start.Add(7 * time.Hour)
	interval := HistogramInterval(end.Sub(start))
	buckets := ZeroFill(start, end, interval, nil)
	step := interval.Nanoseconds() / int64(time.Millisecond)
	for i := 1; i < len(buckets); i++ {
		assert.Equal(t, step, buckets[i].Time-buckets[i-1].Time)
	}
	assert.True(t, buckets[0].Time <= start.UnixNano()/int64(time.Millisecond))
}

func TestHistogramInterval(t *testing.T) {
	assert.Equal(t, time.Minute, HistogramInterval(time.Hour))
	assert.Equal(t, 5*time.Minute, HistogramInterval(90*time.Minute))
	assert.Equal(t, 15*time.Minute, HistogramInterval(24*time.Hour))
	assert.Equal(t, time.Hour, HistogramInterval(48*time.Hour))
	assert.Equal(t, 3*time.Hour, HistogramInterval(7*24*time.Hour))
	assert.Equal(t, 12*time.Hour, HistogramInterval(30*24*time.Hour))
	assert.Equal(t, 24*time.Hour, HistogramInterval(365*24*time.Hour))
}

func TestHistogramResolve(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	start, end, interval := HistogramOptions{}.Resolve(now)
	assert.Equal(t, now.Add(-24*time.Hour), start)
	assert.Equal(t, now, end)
	assert.Equal(t, 15*time.Minute, interval)

	from := now.Add(-time.Hour)
	start, _, interval = HistogramOptions{
		Query: []querystring.Element{querystring.NewFrom(from)},
	}.Resolve(now)
	assert.True(t, start.Equal(from))
	assert.Equal(t, time.Minute, interval)

	_, _, interval = HistogramOptions{Interval: time.Second}.Resolve(now)
	assert.Equal(t, time.Second, interval)
}

func TestGroupByClamp(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	options := GroupByOptions{Field: "src_ip"}
	options.ClampTimeRange(now)
	assert.Equal(t, now.Add(-6*time.Hour), options.MinTimestamp)

	options = GroupByOptions{Field: "dest_port", MinTimestamp: now.Add(-24 * time.Hour)}
	options.ClampTimeRange(now)
	assert.Equal(t, now.Add(-6*time.Hour), options.MinTimestamp)

	// A narrower range is left alone.
	options = GroupByOptions{Field: "proto", MinTimestamp: now.Add(-time.Hour)}
	options.ClampTimeRange(now)
	assert.Equal(t, now.Add(-time.Hour), options.MinTimestamp)

	options = GroupByOptions{
		Field: "proto",
		Query: []querystring.Element{querystring.NewFrom(now.Add(-time.Hour))},
	}
	options.ClampTimeRange(now)
	assert.True(t, options.MinTimestamp.IsZero())

	// Other fields are never clamped.
	options = GroupByOptions{Field: "alert.signature"}
	options.ClampTimeRange(now)
	assert.True(t, options.MinTimestamp.IsZero())
}

func TestSortSensors(t *testing.T) {
	sensors := SortSensors([]string{"b", NoName, "a", "c"})
	assert.Equal(t, []string{"a", "b", "c", NoName}, sensors)
}

func TestHttpStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HttpStatus(nil))
	assert.Equal(t, http.StatusNotImplemented, HttpStatus(Unimplemented("GroupBy")))
	assert.Equal(t, http.StatusNotFound, HttpStatus(NewEventNotFoundError("1")))
	assert.Equal(t, http.StatusBadRequest, HttpStatus(NewBadRequestError("bad")))
	assert.Equal(t, http.StatusBadRequest,
		HttpStatus(errors.Wrap(NewBadRequestError("bad"), "wrapped")))
	_, err := querystring.Parse(`"unterminated`)
	assert.Equal(t, http.StatusBadRequest, HttpStatus(err))
	assert.Equal(t, http.StatusInternalServerError,
		HttpStatus(NewBackendError(errors.New("connection refused"), "query failed")))
	assert.Nil(t, NewBackendError(nil, "nothing"))
}

func TestAlertGroupSpecUnmarshal(t *testing.T) {
	var spec AlertGroupSpec
	err := json.Unmarshal([]byte(`{"signature_id": 2200001, "src_ip": "1.1.1.1", "dest_ip": "2.2.2.2", "min_timestamp": "2024-01-01T00:00:04.000000+0000", "max_timestamp": "2024-01-01T00:00:05Z"}`), &spec)
	require.Nil(t, err)
	assert.Equal(t, uint64(2200001), spec.SignatureID)
	assert.Equal(t, "1.1.1.1", spec.SrcIP)
	assert.Equal(t, "2.2.2.2", spec.DestIP)
	assert.True(t, spec.MinTimestamp.Equal(time.Date(2024, 1, 1, 0, 0, 4, 0, time.UTC)))
	assert.True(t, spec.MaxTimestamp.Equal(time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)))
	assert.Equal(t, "", spec.Sensor)

	var scoped AlertGroupSpec
	require.Nil(t, json.Unmarshal([]byte(`{"signature_id": 1, "sensor": "s1", "min_timestamp": "2024-01-01T00:00:04Z", "max_timestamp": "2024-01-01T00:00:05Z"}`), &scoped))
	assert.Equal(t, "s1", scoped.Sensor)

	err = json.Unmarshal([]byte(`{"src_ip": "1.1.1.1"}`), &spec)
	assert.NotNil(t, err)
}

func TestSplitTags(t *testing.T) {
	must, mustNot := SplitTags([]string{"evebox.escalated", "-evebox.archived", " ", "foo"})
	assert.Equal(t, []string{"evebox.escalated", "foo"}, must)
	assert.Equal(t, []string{"evebox.archived"}, mustNot)
}

func TestHistoryEntryJson(t *testing.T) {
	entry := NewCommentHistoryEntry("looks bad", "admin")
	var decoded map[string]interface{}
	require.Nil(t, json.Unmarshal([]byte(entry.Json()), &decoded))
	assert.Equal(t, "comment", decoded["action"])
	assert.Equal(t, "looks bad", decoded["comment"])
	assert.Equal(t, "admin", decoded["username"])

	var asArray []map[string]interface{}
	require.Nil(t, json.Unmarshal([]byte(NewArchivedHistoryEntry("").JsonArray()), &asArray))
	require.Len(t, asArray, 1)
	assert.Equal(t, "archived", asArray[0]["action"])
	_, hasUsername := asArray[0]["username"]
	assert.False(t, hasUsername)
}

func TestMaterializeEvent(t *testing.T) {
	source := eve.EveEvent{"event_type": "alert"}
	history := []interface{}{NewArchivedHistoryEntry("").AsMap()}
	MaterializeEvent(source, true, true, history)
	assert.Equal(t, []string{eve.TagArchived, eve.TagEscalated}, source.Tags())
	assert.Len(t, source.GetMap("evebox")["history"], 1)

	MaterializeEvent(source, true, false, nil)
	assert.Equal(t, []string{eve.TagArchived}, source.Tags())
}

func TestDhcpLatestPerMac(t *testing.T) {
	events := []eve.EveEvent{
		{"id": 1, "dhcp": map[string]interface{}{"client_mac": "aa"}},
		{"id": 2, "dhcp": map[string]interface{}{"client_mac": "bb"}},
		{"id": 3, "dhcp": map[string]interface{}{"client_mac": "aa"}},
	}
	latest := DhcpLatestPerMac(events)
	require.Len(t, latest, 2)
	assert.Equal(t, 1, latest[0]["id"])
	assert.Equal(t, 2, latest[1]["id"])
}
