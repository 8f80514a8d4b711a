package autoarchive

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/sqlite"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alert(t *testing.T, raw string) eve.EveEvent {
	event, err := eve.NewEveEventFromString(raw)
	require.Nil(t, err)
	return event
}

func TestApplySignatureOnlyRule(t *testing.T) {
	filters := NewFilters()
	assert.True(t, filters.Add(FilterEntry{SignatureId: 9999}))

	event := alert(t, `{"event_type":"alert","src_ip":"a","dest_ip":"b","host":"s1","alert":{"signature_id":9999}}`)
	assert.True(t, filters.Apply(event))
	assert.Equal(t, []string{
		eve.TagArchived,
		eve.TagAutoArchived,
		eve.TagAutoArchivedByServer,
	}, event.Tags())

	// Applying again doesn't duplicate tags.
	assert.True(t, filters.Apply(event))
	assert.Len(t, event.Tags(), 3)

	other := alert(t, `{"event_type":"alert","src_ip":"a","dest_ip":"b","alert":{"signature_id":1}}`)
	assert.False(t, filters.Apply(other))
	assert.Empty(t, other.Tags())
}

func TestMatchPrecedence(t *testing.T) {
	filters := NewFilters()
	filters.Add(FilterEntry{SignatureId: 1})
	filters.Add(FilterEntry{SrcIp: "10.0.0.1", DestIp: "10.0.0.2", SignatureId: 1})
	filters.Add(FilterEntry{SensorName: "s1", SignatureId: 1})
	filters.Add(FilterEntry{SensorName: "s1", SrcIp: "10.0.0.1", DestIp: "10.0.0.2", SignatureId: 1})

	event := alert(t, `{"event_type":"alert","host":"s1","src_ip":"10.0.0.1","dest_ip":"10.0.0.2","alert":{"signature_id":1}}`)
	entry, ok := filters.Match(event)
	require.True(t, ok)
	assert.Equal(t, "s1,10.0.0.1,10.0.0.2,1", entry.Key())

	filters.Remove(entry)
	entry, _ = filters.Match(event)
	assert.Equal(t, "s1,*,*,1", entry.Key())

	filters.Remove(entry)
	entry, _ = filters.Match(event)
	assert.Equal(t, "*,10.0.0.1,10.0.0.2,1", entry.Key())

	filters.Remove(entry)
	entry, _ = filters.Match(event)
	assert.Equal(t, "*,*,*,1", entry.Key())

	filters.Remove(entry)
	_, ok = filters.Match(event)
	assert.False(t, ok)
}

func TestNoNameSensorRule(t *testing.T) {
	filters := NewFilters()
	filters.Add(FilterEntry{SensorName: core.NoName, SignatureId: 3})

	noHost := alert(t, `{"event_type":"alert","src_ip":"a","dest_ip":"b","alert":{"signature_id":3}}`)
	entry, ok := filters.Match(noHost)
	require.True(t, ok)
	assert.Equal(t, "(no-name),*,*,3", entry.Key())

	withHost := alert(t, `{"event_type":"alert","host":"s1","src_ip":"a","dest_ip":"b","alert":{"signature_id":3}}`)
	_, ok = filters.Match(withHost)
	assert.False(t, ok)

	assert.True(t, entry.Matches("", "a", "b", 3))
	assert.False(t, entry.Matches("s1", "a", "b", 3))
}

func TestOnlyAlertsMatch(t *testing.T) {
	filters := NewFilters()
	filters.Add(FilterEntry{SignatureId: 1})
	assert.False(t, filters.Apply(alert(t, `{"event_type":"flow","alert":{"signature_id":1}}`)))
}

func TestKeyRoundTrip(t *testing.T) {
	entry := FilterEntry{SensorName: "s1", DestIp: "1.1.1.1", SignatureId: 42}
	assert.Equal(t, "s1,*,1.1.1.1,42", entry.Key())
	parsed, err := ParseKey(entry.Key())
	require.Nil(t, err)
	assert.Equal(t, entry.Normalize(), parsed)

	_, err = ParseKey("s1,*,42")
	assert.NotNil(t, err)
	_, err = ParseKey("*,*,*,abc")
	assert.NotNil(t, err)
}

func TestValidate(t *testing.T) {
	assert.True(t, core.IsBadRequest(FilterEntry{}.Validate()))
	assert.True(t, core.IsBadRequest(FilterEntry{SrcIp: "a,b", SignatureId: 1}.Validate()))
	assert.Nil(t, FilterEntry{SignatureId: 1}.Validate())
}

func TestListSorted(t *testing.T) {
	filters := NewFilters()
	filters.Replace([]FilterEntry{
		{SignatureId: 2},
		{SensorName: "a", SignatureId: 1},
		{SignatureId: 1},
	})
	keys := []string{}
	for _, entry := range filters.List() {
		keys = append(keys, entry.Key())
	}
	assert.Equal(t, []string{"*,*,*,1", "*,*,*,2", "a,*,*,1"}, keys)
}

func TestStoreSaveAndLoad(t *testing.T) {
	dir, err := ioutil.TempDir("", "autoarchive")
	require.Nil(t, err)
	defer os.RemoveAll(dir)
	filename := filepath.Join(dir, "autoarchive.yaml")

	store, err := NewStore(filename)
	require.Nil(t, err)
	assert.Equal(t, 0, store.Filters.Len())

	added, err := store.Add(FilterEntry{SensorName: "s1", SignatureId: 2200001})
	require.Nil(t, err)
	assert.True(t, added)
	added, err = store.Add(FilterEntry{SensorName: "s1", SignatureId: 2200001})
	require.Nil(t, err)
	assert.False(t, added)

	_, err = store.Add(FilterEntry{})
	assert.NotNil(t, err)

	entries, err := LoadFile(filename)
	require.Nil(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s1,*,*,2200001", entries[0].Key())

	removed, err := store.Remove(entries[0])
	require.Nil(t, err)
	assert.True(t, removed)
	entries, err = LoadFile(filename)
	require.Nil(t, err)
	assert.Empty(t, entries)
}

func TestLoadFileSkipsInvalid(t *testing.T) {
	dir, err := ioutil.TempDir("", "autoarchive")
	require.Nil(t, err)
	defer os.RemoveAll(dir)
	filename := filepath.Join(dir, "rules.yaml")
	require.Nil(t, ioutil.WriteFile(filename, []byte(`rules:
  - signature_id: 1
  - sensor: s1
  - src_ip: 10.0.0.1
    signature_id: 2
`), 0644))

	entries, err := LoadFile(filename)
	require.Nil(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "*,*,*,1", entries[0].Key())
	assert.Equal(t, "*,10.0.0.1,*,2", entries[1].Key())
}

func TestWatchReloads(t *testing.T) {
	dir, err := ioutil.TempDir("", "autoarchive")
	require.Nil(t, err)
	defer os.RemoveAll(dir)
	filename := filepath.Join(dir, "rules.yaml")

	store, err := NewStore(filename)
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Watch(ctx)
		close(done)
	}()

	// Written repeatedly as the watcher may not be ready for the first
	// write.
	assert.Eventually(t, func() bool {
		ioutil.WriteFile(filename, []byte("rules:\n  - signature_id: 7\n"), 0644)
		return store.Filters.Len() == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}

type fakeDatastore struct {
	core.UnimplementedDatastore
	lock     sync.Mutex
	groups   []core.AggAlert
	options  []core.AlertQueryOptions
	archived []core.AlertGroupSpec
	fail     string
}

func (d *fakeDatastore) Alerts(ctx context.Context, options core.AlertQueryOptions) (*core.AlertsResult, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.options = append(d.options, options)
	return &core.AlertsResult{Events: d.groups}, nil
}

func (d *fakeDatastore) ArchiveAlertGroup(ctx context.Context, p core.AlertGroupSpec, username string) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if p.DestIP == d.fail {
		return errors.New("archive failed")
	}
	d.archived = append(d.archived, p)
	return nil
}

func (d *fakeDatastore) archivedCount() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.archived)
}

func group(t *testing.T, src string, dest string) core.AggAlert {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return core.AggAlert{
		ID:     "1",
		Source: alert(t, `{"event_type":"alert","host":"s1","src_ip":"`+src+`","dest_ip":"`+dest+`","alert":{"signature_id":5}}`),
		Metadata: core.AggAlertMetadata{
			Count:        1,
			MinTimestamp: ts,
			MaxTimestamp: ts.Add(time.Second),
		},
	}
}

func TestProcessArchivesMatchingGroups(t *testing.T) {
	datastore := &fakeDatastore{
		groups: []core.AggAlert{
			group(t, "10.0.0.1", "10.0.0.2"),
			group(t, "10.0.0.9", "10.0.0.2"),
			group(t, "10.0.0.1", "10.0.0.3"),
		},
		fail: "10.0.0.3",
	}
	processor := NewProcessor(datastore)

	err := processor.Process(context.Background(),
		FilterEntry{SensorName: "s1", SrcIp: "10.0.0.1", SignatureId: 5})
	require.Nil(t, err)

	require.Len(t, datastore.options, 1)
	assert.Equal(t, "s1", datastore.options[0].Sensor)
	assert.Equal(t, []string{"-" + eve.TagArchived}, datastore.options[0].Tags)
	require.Len(t, datastore.options[0].Query, 1)
	assert.Equal(t, "alert.signature_id", datastore.options[0].Query[0].Key)

	// The group from another source is skipped, the failing group is
	// logged and skipped.
	require.Len(t, datastore.archived, 1)
	assert.Equal(t, uint64(5), datastore.archived[0].SignatureID)
	assert.Equal(t, "10.0.0.1", datastore.archived[0].SrcIP)
	assert.Equal(t, "10.0.0.2", datastore.archived[0].DestIP)
	assert.Equal(t, "s1", datastore.archived[0].Sensor)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), datastore.archived[0].MaxTimestamp)
}

func TestProcessWildcardSensorSpansSensors(t *testing.T) {
	datastore := &fakeDatastore{
		groups: []core.AggAlert{group(t, "10.0.0.1", "10.0.0.2")},
	}
	err := NewProcessor(datastore).Process(context.Background(), FilterEntry{SignatureId: 5})
	require.Nil(t, err)
	assert.Equal(t, "", datastore.options[0].Sensor)
	require.Len(t, datastore.archived, 1)
	assert.Equal(t, "", datastore.archived[0].Sensor)
}

func TestProcessSkipsGroupFromOtherSensor(t *testing.T) {
	datastore := &fakeDatastore{
		groups: []core.AggAlert{group(t, "10.0.0.1", "10.0.0.2")},
	}
	err := NewProcessor(datastore).Process(context.Background(),
		FilterEntry{SensorName: "s2", SignatureId: 5})
	require.Nil(t, err)
	assert.Empty(t, datastore.archived)
}

func sqliteAlert(ts string, host string) string {
	return `{"timestamp":"` + ts + `","event_type":"alert","host":"` + host +
		`","src_ip":"a","dest_ip":"b","alert":{"signature_id":7,"signature":"s","severity":1}}`
}

func TestProcessSensorRuleLeavesOtherSensors(t *testing.T) {
	db, err := sqlite.NewSqliteService(":memory:")
	require.Nil(t, err)
	defer db.Close()
	require.Nil(t, db.Migrate())
	datastore := sqlite.NewDataStore(db)

	sink := datastore.GetEveEventSink()
	for _, raw := range []string{
		sqliteAlert("2024-01-01T00:00:05Z", "s1"),
		sqliteAlert("2024-01-01T00:00:04Z", "s2"),
		sqliteAlert("2024-01-01T00:00:03Z", "s1"),
	} {
		require.Nil(t, sink.Submit(alert(t, raw)))
	}
	_, err = sink.Commit()
	require.Nil(t, err)

	ctx := context.Background()
	err = NewProcessor(datastore).Process(ctx, FilterEntry{SensorName: "s1", SignatureId: 7})
	require.Nil(t, err)

	inbox := func(sensor string) int {
		result, err := datastore.Alerts(ctx, core.AlertQueryOptions{
			Sensor: sensor,
			Tags:   []string{"-" + eve.TagArchived},
		})
		require.Nil(t, err)
		return len(result.Events)
	}
	assert.Equal(t, 0, inbox("s1"))
	require.Equal(t, 1, inbox("s2"))
}

func TestProcessorRun(t *testing.T) {
	datastore := &fakeDatastore{
		groups: []core.AggAlert{group(t, "10.0.0.1", "10.0.0.2")},
	}
	processor := NewProcessor(datastore)
	processor.Submit(FilterEntry{SignatureId: 5})
	processor.Submit(FilterEntry{SignatureId: 5, DestIp: "10.0.0.2"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		processor.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return datastore.archivedCount() == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, processor.Pending())

	cancel()
	<-done
}
