package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/querystring"
	"github.com/jasonish/evecore/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T) *DataStore {
	db, err := NewSqliteService(":memory:")
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })
	require.Nil(t, db.Migrate())

	datastore := NewDataStore(db)
	datastore.now = func() time.Time { return t0.Add(time.Hour) }
	return datastore
}

func submit(t *testing.T, datastore *DataStore, events ...string) {
	sink := datastore.GetEveEventSink()
	for _, raw := range events {
		event, err := eve.NewEveEventFromString(raw)
		require.Nil(t, err)
		require.Nil(t, sink.Submit(event))
	}
	count, err := sink.Commit()
	require.Nil(t, err)
	require.Equal(t, uint64(len(events)), count)
}

func alert(ts string, src string, dest string, sid int) string {
	return fmt.Sprintf(`{"timestamp":%q,"event_type":"alert","src_ip":%q,"dest_ip":%q,"alert":{"signature_id":%d,"signature":"ET DROP Dshield","severity":1,"action":"a"}}`,
		ts, src, dest, sid)
}

func seedScenario(t *testing.T, datastore *DataStore) {
	submit(t, datastore,
		alert("2024-01-01T00:00:05Z", "1.1.1.1", "2.2.2.2", 1),
		alert("2024-01-01T00:00:04Z", "1.1.1.1", "2.2.2.2", 1),
		alert("2024-01-01T00:00:03Z", "1.1.1.1", "3.3.3.3", 1),
	)
}

func TestAlerts(t *testing.T) {
	datastore := setup(t)
	seedScenario(t, datastore)

	result, err := datastore.Alerts(context.Background(), core.AlertQueryOptions{})
	require.Nil(t, err)
	assert.False(t, result.TimedOut)
	require.Len(t, result.Events, 2)

	first := result.Events[0]
	assert.Equal(t, uint64(2), first.Metadata.Count)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 4, 0, time.UTC), first.Metadata.MinTimestamp)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC), first.Metadata.MaxTimestamp)
	assert.Equal(t, "2.2.2.2", first.Source.DestIp())
	assert.Equal(t, "1", first.ID)

	second := result.Events[1]
	assert.Equal(t, uint64(1), second.Metadata.Count)
	assert.Equal(t, "3.3.3.3", second.Source.DestIp())
}

func TestArchiveEventHistory(t *testing.T) {
	datastore := setup(t)
	seedScenario(t, datastore)
	ctx := context.Background()

	require.Nil(t, datastore.ArchiveEvent(ctx, "1", "admin"))
	require.Nil(t, datastore.ArchiveEvent(ctx, "1", "admin"))

	event, err := datastore.GetEventById(ctx, "1")
	require.Nil(t, err)
	require.NotNil(t, event)
	assert.True(t, event.Source.HasTag(eve.TagArchived))

	history := event.Source.GetMap("evebox")["history"].([]interface{})
	require.Len(t, history, 2)
	assert.Equal(t, "archived", history[0].(map[string]interface{})["action"])
	assert.Equal(t, "admin", history[1].(map[string]interface{})["username"])

	require.Nil(t, datastore.CommentOnEvent(ctx, "1", "looks bad", "admin"))
	event, err = datastore.GetEventById(ctx, "1")
	require.Nil(t, err)
	history = event.Source.GetMap("evebox")["history"].([]interface{})
	require.Len(t, history, 3)
	assert.Equal(t, "looks bad", history[2].(map[string]interface{})["comment"])
}

func TestEventNotFound(t *testing.T) {
	datastore := setup(t)
	ctx := context.Background()

	event, err := datastore.GetEventById(ctx, "42")
	assert.Nil(t, err)
	assert.Nil(t, event)

	assert.True(t, core.IsEventNotFound(datastore.ArchiveEvent(ctx, "42", "")))
	assert.True(t, core.IsEventNotFound(datastore.EscalateEvent(ctx, "not-a-number", "")))
}

func TestAlertGroupOperations(t *testing.T) {
	datastore := setup(t)
	seedScenario(t, datastore)
	ctx := context.Background()

	spec := core.AlertGroupSpec{
		SignatureID:  1,
		SrcIP:        "1.1.1.1",
		DestIP:       "2.2.2.2",
		MinTimestamp: time.Date(2024, 1, 1, 0, 0, 4, 0, time.UTC),
		MaxTimestamp: time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC),
	}

	// Escalating twice only records one history entry.
	require.Nil(t, datastore.EscalateAlertGroup(ctx, spec, "admin"))
	require.Nil(t, datastore.EscalateAlertGroup(ctx, spec, "admin"))
	event, err := datastore.GetEventById(ctx, "2")
	require.Nil(t, err)
	assert.True(t, event.Source.HasTag(eve.TagEscalated))
	assert.Len(t, event.Source.GetMap("evebox")["history"], 1)

	result, err := datastore.Alerts(ctx, core.AlertQueryOptions{Tags: []string{"evebox.escalated"}})
	require.Nil(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, uint64(2), result.Events[0].Metadata.EscalatedCount)

	require.Nil(t, datastore.ArchiveAlertGroup(ctx, spec, "admin"))
	result, err = datastore.Alerts(ctx, core.AlertQueryOptions{Tags: []string{"-evebox.archived"}})
	require.Nil(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "3.3.3.3", result.Events[0].Source.DestIp())

	result, err = datastore.Alerts(ctx, core.AlertQueryOptions{Tags: []string{"evebox.archived"}})
	require.Nil(t, err)
	require.Len(t, result.Events, 1)
	assert.True(t, result.Events[0].Source.HasTag(eve.TagArchived))

	require.Nil(t, datastore.DeEscalateAlertGroup(ctx, spec, "admin"))
	event, err = datastore.GetEventById(ctx, "2")
	require.Nil(t, err)
	assert.False(t, event.Source.HasTag(eve.TagEscalated))
	assert.Len(t, event.Source.GetMap("evebox")["history"], 3)
}

func TestEventsQueryString(t *testing.T) {
	datastore := setup(t)
	seedScenario(t, datastore)
	submit(t, datastore,
		`{"timestamp":"2024-01-01T00:00:06Z","event_type":"stats","stats":{"uptime":1}}`,
		`{"timestamp":"2024-01-01T00:00:07Z","event_type":"dns","src_ip":"10.0.0.1","dest_ip":"8.8.8.8","dns":{"type":"query","rrname":"www.example.com"}}`,
	)
	ctx := context.Background()

	events, err := datastore.Events(ctx, core.EventQueryOptions{})
	require.Nil(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "dns", events[0].Source.EventType())

	query := func(qs string) []core.Event {
		elements, err := querystring.Parse(qs)
		require.Nil(t, err)
		events, err := datastore.Events(ctx, core.EventQueryOptions{Query: elements})
		require.Nil(t, err)
		return events
	}

	assert.Len(t, query("dest_ip:3.3.3.3"), 1)
	assert.Len(t, query("-dest_ip:3.3.3.3"), 3)
	assert.Len(t, query("@sid:1"), 3)
	assert.Len(t, query(`alert.signature:"drop dshield"`), 3)
	assert.Len(t, query("dshield"), 3)
	assert.Len(t, query("-dshield"), 1)
	assert.Len(t, query("example"), 1)
	assert.Len(t, query("@ip:2.2.2.2"), 2)
	assert.Len(t, query("@from:2024-01-01T00:00:04Z @before:2024-01-01T00:00:07Z"), 2)

	events, err = datastore.Events(ctx, core.EventQueryOptions{EventType: "stats"})
	require.Nil(t, err)
	assert.Len(t, events, 1)

	events, err = datastore.Events(ctx, core.EventQueryOptions{Order: "asc", Size: 2})
	require.Nil(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "3.3.3.3", events[0].Source.DestIp())
}

func TestNumericValueMatchesOnlyNumbers(t *testing.T) {
	datastore := setup(t)
	submit(t, datastore,
		`{"timestamp":"2024-01-01T00:00:01Z","event_type":"flow","host":"10abc","src_ip":"10.0.0.1","dest_port":10}`,
		`{"timestamp":"2024-01-01T00:00:02Z","event_type":"flow","host":"s1","src_ip":"10.0.0.2","dest_port":10.0}`,
	)
	ctx := context.Background()

	count := func(qs string) int {
		elements, err := querystring.Parse(qs)
		require.Nil(t, err)
		events, err := datastore.Events(ctx, core.EventQueryOptions{Query: elements})
		require.Nil(t, err)
		return len(events)
	}

	assert.Equal(t, 0, count("src_ip:10"))
	assert.Equal(t, 0, count("host:10"))
	assert.Equal(t, 2, count("dest_port:10"))
	assert.Equal(t, 2, count("-host:10"))
}

func TestAlertGroupSensor(t *testing.T) {
	datastore := setup(t)
	submit(t, datastore,
		`{"timestamp":"2024-01-01T00:00:05Z","event_type":"alert","host":"s1","src_ip":"a","dest_ip":"b","alert":{"signature_id":7}}`,
		`{"timestamp":"2024-01-01T00:00:04Z","event_type":"alert","host":"s2","src_ip":"a","dest_ip":"b","alert":{"signature_id":7}}`,
		`{"timestamp":"2024-01-01T00:00:03Z","event_type":"alert","src_ip":"a","dest_ip":"b","alert":{"signature_id":7}}`,
	)
	ctx := context.Background()

	spec := core.AlertGroupSpec{
		SignatureID:  7,
		SrcIP:        "a",
		DestIP:       "b",
		MinTimestamp: time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC),
		MaxTimestamp: time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC),
		Sensor:       "s1",
	}
	require.Nil(t, datastore.ArchiveAlertGroup(ctx, spec, "admin"))

	archived := func(id string) bool {
		event, err := datastore.GetEventById(ctx, id)
		require.Nil(t, err)
		return event.Source.HasTag(eve.TagArchived)
	}
	assert.True(t, archived("1"))
	assert.False(t, archived("2"))
	assert.False(t, archived("3"))

	spec.Sensor = core.NoName
	require.Nil(t, datastore.ArchiveAlertGroup(ctx, spec, "admin"))
	assert.False(t, archived("2"))
	assert.True(t, archived("3"))
}

func TestGroupBy(t *testing.T) {
	datastore := setup(t)
	events := []string{}
	for i := 0; i < 12; i++ {
		for j := 0; j <= i; j++ {
			events = append(events, alert("2024-01-01T00:10:00Z", "1.1.1.1", "2.2.2.2", 100+i))
		}
	}
	submit(t, datastore, events...)

	results, err := datastore.GroupBy(context.Background(), core.GroupByOptions{
		Field: "alert.signature_id",
		Size:  10,
		Order: "desc",
	})
	require.Nil(t, err)
	require.Len(t, results, 10)
	assert.Equal(t, int64(111), results[0].Key)
	assert.Equal(t, uint64(12), results[0].Count)
	for i := 1; i < len(results); i++ {
		assert.True(t, results[i].Count <= results[i-1].Count)
	}
}

func TestHistogramZeroFill(t *testing.T) {
	datastore := setup(t)
	submit(t, datastore,
		alert("2024-01-01T00:00:10Z", "1.1.1.1", "2.2.2.2", 1),
		alert("2024-01-01T00:00:20Z", "1.1.1.1", "2.2.2.2", 1),
		alert("2024-01-01T00:30:50Z", "1.1.1.1", "2.2.2.2", 1),
	)

	buckets, err := datastore.HistogramTime(context.Background(), core.HistogramOptions{
		Interval:     600 * time.Second,
		MinTimestamp: t0,
		MaxTimestamp: t0.Add(3600 * time.Second),
	})
	require.Nil(t, err)
	require.Len(t, buckets, 6)
	counts := []uint64{}
	for _, bucket := range buckets {
		counts = append(counts, bucket.Count)
	}
	assert.Equal(t, []uint64{2, 0, 0, 1, 0, 0}, counts)
	assert.Equal(t, t0.UnixNano()/int64(time.Millisecond), buckets[0].Time)
}

func TestStatsAgg(t *testing.T) {
	datastore := setup(t)
	for i, value := range []int{10, 20, 5, 15} {
		ts := eve.FormatTimestampUTC(t0.Add(time.Duration(i) * time.Minute))
		submit(t, datastore, fmt.Sprintf(
			`{"timestamp":%q,"event_type":"stats","host":"s1","stats":{"decoder":{"pkts":%d}}}`,
			ts, value))
	}

	options := stats.AggOptions{
		Field:     "decoder.pkts",
		StartTime: t0,
		EndTime:   t0.Add(time.Hour),
	}
	points, err := datastore.StatsAgg(context.Background(), options)
	require.Nil(t, err)
	require.Len(t, points, 4)

	diff := stats.Diff(points)
	values := []int64{}
	for _, p := range diff {
		values = append(values, p.Value)
	}
	assert.Equal(t, []int64{10, 5, 10}, values)

	bySensor, err := datastore.StatsAggBySensor(context.Background(), options)
	require.Nil(t, err)
	assert.Len(t, bySensor["s1"], 4)

	_, err = datastore.StatsAgg(context.Background(), stats.AggOptions{Field: "x"})
	assert.True(t, core.IsBadRequest(err))
}

func TestDhcpAndSensors(t *testing.T) {
	datastore := setup(t)
	submit(t, datastore,
		`{"timestamp":"2024-01-01T00:00:01Z","event_type":"dhcp","host":"s1","dhcp":{"dhcp_type":"ack","client_mac":"aa","assigned_ip":"10.0.0.1"}}`,
		`{"timestamp":"2024-01-01T00:00:02Z","event_type":"dhcp","host":"s1","dhcp":{"dhcp_type":"ack","client_mac":"aa","assigned_ip":"10.0.0.2"}}`,
		`{"timestamp":"2024-01-01T00:00:03Z","event_type":"dhcp","dhcp":{"dhcp_type":"ack","client_mac":"bb","assigned_ip":"10.0.0.3"}}`,
		`{"timestamp":"2024-01-01T00:00:04Z","event_type":"dhcp","host":"s2","dhcp":{"dhcp_type":"request","client_mac":"cc"}}`,
	)
	ctx := context.Background()

	events, err := datastore.Dhcp(ctx, core.DhcpOptions{DhcpType: "ack"})
	require.Nil(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "bb", events[0].GetMap("dhcp").GetString("client_mac"))
	assert.Equal(t, "10.0.0.2", events[1].GetMap("dhcp").GetString("assigned_ip"))

	events, err = datastore.Dhcp(ctx, core.DhcpOptions{DhcpType: "ack", Sensor: core.NoName})
	require.Nil(t, err)
	require.Len(t, events, 1)

	sensors, err := datastore.GetSensors(ctx)
	require.Nil(t, err)
	assert.Equal(t, []string{"s1", "s2", core.NoName}, sensors)
}

func TestDnsReverseLookup(t *testing.T) {
	datastore := setup(t)
	submit(t, datastore,
		`{"timestamp":"2024-01-01T00:30:00Z","event_type":"dns","src_ip":"8.8.8.8","dest_ip":"10.0.0.1","dns":{"type":"answer","rrname":"example.com","rrtype":"A","rdata":"1.2.3.4"}}`,
		`{"timestamp":"2024-01-01T00:31:00Z","event_type":"dns","src_ip":"8.8.8.8","dest_ip":"10.0.0.9","dns":{"type":"answer","rrname":"other.com","rrtype":"A","rdata":"1.2.3.4"}}`,
	)

	rrnames, err := datastore.DnsReverseLookup(context.Background(), core.DnsReverseLookupOptions{
		SrcIp:  "1.2.3.4",
		DestIp: "10.0.0.1",
	})
	require.Nil(t, err)
	assert.Equal(t, []string{"example.com"}, rrnames)
}

func TestIngestTagsSetColumns(t *testing.T) {
	datastore := setup(t)
	submit(t, datastore,
		`{"timestamp":"2024-01-01T00:00:05Z","event_type":"alert","src_ip":"a","dest_ip":"b","tags":["evebox.archived","evebox.auto-archived"],"alert":{"signature_id":9999}}`)

	result, err := datastore.Alerts(context.Background(), core.AlertQueryOptions{Tags: []string{"evebox.archived"}})
	require.Nil(t, err)
	require.Len(t, result.Events, 1)

	result, err = datastore.Alerts(context.Background(), core.AlertQueryOptions{Tags: []string{"evebox.auto-archived"}})
	require.Nil(t, err)
	require.Len(t, result.Events, 1)
}

func TestPurgerDryRun(t *testing.T) {
	datastore := setup(t)
	seedScenario(t, datastore)
	ctx := context.Background()

	purger := datastore.Retention()
	purger.now = func() time.Time { return t0.Add(40 * 24 * time.Hour) }

	result, err := purger.Sweep(ctx, 30, false)
	require.Nil(t, err)
	assert.Equal(t, int64(3), result.Count)
	assert.False(t, result.Deleted)

	events, err := datastore.Events(ctx, core.EventQueryOptions{})
	require.Nil(t, err)
	assert.Len(t, events, 3)

	require.Nil(t, datastore.EscalateEvent(ctx, "3", ""))
	result, err = purger.Sweep(ctx, 30, true)
	require.Nil(t, err)
	assert.Equal(t, int64(2), result.Count)

	events, err = datastore.Events(ctx, core.EventQueryOptions{})
	require.Nil(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "3", events[0].ID)
}

func TestBuilderErrors(t *testing.T) {
	builder := SqlBuilder{}
	builder.Select("*")
	builder.ApplyQueryString([]querystring.Element{querystring.NewKeyValue("a..b", "x")})
	_, _, err := builder.Build()
	assert.True(t, core.IsBadRequest(err))

	path, err := jsonPath("http.http-user-agent")
	require.Nil(t, err)
	assert.Equal(t, `$.http."http-user-agent"`, path)

	assert.Equal(t, `%50\%\_x%`, likeContains("50%_x"))
}
