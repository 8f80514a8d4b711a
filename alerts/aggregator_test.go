package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/jasonish/evecore/eve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alertRow(t *testing.T, id int, ts string, src string, dest string, sid int, escalated bool) Row {
	event, err := eve.NewEveEventFromString(fmt.Sprintf(
		`{"timestamp":%q,"event_type":"alert","src_ip":%q,"dest_ip":%q,"alert":{"signature_id":%d,"signature":"s","severity":1,"action":"a"}}`,
		ts, src, dest, sid))
	require.Nil(t, err)
	return Row{
		ID:        fmt.Sprintf("%d", id),
		Timestamp: event.Timestamp(),
		Escalated: escalated,
		Source:    event,
	}
}

func TestAggregateThreeAlerts(t *testing.T) {
	a := NewAggregator(0)
	assert.True(t, a.Add(alertRow(t, 1, "2024-01-01T00:00:05Z", "1.1.1.1", "2.2.2.2", 1, false)))
	assert.True(t, a.Add(alertRow(t, 2, "2024-01-01T00:00:04Z", "1.1.1.1", "2.2.2.2", 1, true)))
	assert.True(t, a.Add(alertRow(t, 3, "2024-01-01T00:00:03Z", "1.1.1.1", "3.3.3.3", 1, false)))

	result := a.Result()
	assert.False(t, result.TimedOut)
	require.Len(t, result.Events, 2)

	first := result.Events[0]
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, uint64(2), first.Metadata.Count)
	assert.Equal(t, uint64(1), first.Metadata.EscalatedCount)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 4, 0, time.UTC), first.Metadata.MinTimestamp.UTC())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC), first.Metadata.MaxTimestamp.UTC())
	assert.Equal(t, "2.2.2.2", first.Source.DestIp())

	second := result.Events[1]
	assert.Equal(t, uint64(1), second.Metadata.Count)
	assert.Equal(t, "3.3.3.3", second.Source.DestIp())

	require.NotNil(t, result.MinTimestamp)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC), result.MinTimestamp.UTC())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC), result.MaxTimestamp.UTC())
}

func TestAggregateEmpty(t *testing.T) {
	result := NewAggregator(time.Second).Result()
	assert.NotNil(t, result.Events)
	assert.Empty(t, result.Events)
	assert.False(t, result.TimedOut)
	assert.Nil(t, result.MinTimestamp)
}

func TestGroupsDistinguishSignature(t *testing.T) {
	a := NewAggregator(0)
	a.Add(alertRow(t, 1, "2024-01-01T00:00:05Z", "1.1.1.1", "2.2.2.2", 1, false))
	a.Add(alertRow(t, 2, "2024-01-01T00:00:04Z", "1.1.1.1", "2.2.2.2", 2, false))
	assert.Len(t, a.Result().Events, 2)
}

// A clock that advances one second each time it is read.
type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestSoftTimeoutFinishesSecond(t *testing.T) {
	clock := &tickingClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := NewAggregatorWithClock(1500*time.Millisecond, clock.Now)

	// 1s elapsed since creation, not yet timed out.
	assert.True(t, a.Add(alertRow(t, 1, "2024-01-01T00:00:10.900Z", "1.1.1.1", "2.2.2.2", 1, false)))
	assert.False(t, a.TimedOut())
	// 2s elapsed, times out in second 10.
	assert.True(t, a.Add(alertRow(t, 2, "2024-01-01T00:00:10.500Z", "1.1.1.1", "2.2.2.2", 1, false)))
	assert.True(t, a.TimedOut())
	assert.True(t, a.Add(alertRow(t, 3, "2024-01-01T00:00:10.200Z", "1.1.1.1", "3.3.3.3", 1, false)))
	// Still in second 10, included.
	assert.True(t, a.Add(alertRow(t, 4, "2024-01-01T00:00:10.000Z", "1.1.1.1", "4.4.4.4", 1, false)))
	// Second 9, the aggregation ends here.
	assert.False(t, a.Add(alertRow(t, 5, "2024-01-01T00:00:09.999Z", "1.1.1.1", "5.5.5.5", 1, false)))
	assert.False(t, a.Add(alertRow(t, 6, "2024-01-01T00:00:09.000Z", "1.1.1.1", "6.6.6.6", 1, false)))

	result := a.Result()
	assert.True(t, result.TimedOut)
	require.Len(t, result.Events, 3)
	total := uint64(0)
	for _, group := range result.Events {
		total += group.Metadata.Count
		assert.False(t, group.Metadata.MinTimestamp.Before(
			time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)))
	}
	assert.Equal(t, uint64(4), total)
}

func TestTookIncludesTimeBeforeFirstRow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAggregatorWithClock(0, func() time.Time { return now })

	// The query took a while before the first row arrived.
	now = now.Add(250 * time.Millisecond)
	a.Add(alertRow(t, 1, "2024-01-01T00:00:05Z", "1.1.1.1", "2.2.2.2", 1, false))
	now = now.Add(50 * time.Millisecond)

	assert.Equal(t, int64(300), a.Result().Took)
}

func TestTookWithoutRows(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAggregatorWithClock(time.Second, func() time.Time { return now })
	now = now.Add(40 * time.Millisecond)

	result := a.Result()
	assert.Empty(t, result.Events)
	assert.Equal(t, int64(40), result.Took)
}

func TestResultOrderedByMaxTimestamp(t *testing.T) {
	a := NewAggregator(0)
	a.Add(alertRow(t, 1, "2024-01-01T00:00:09Z", "1.1.1.1", "2.2.2.2", 1, false))
	a.Add(alertRow(t, 2, "2024-01-01T00:00:08Z", "1.1.1.1", "3.3.3.3", 1, false))
	a.Add(alertRow(t, 3, "2024-01-01T00:00:07Z", "1.1.1.1", "2.2.2.2", 1, false))
	a.Add(alertRow(t, 4, "2024-01-01T00:00:06Z", "1.1.1.1", "4.4.4.4", 1, false))

	events := a.Result().Events
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Metadata.MaxTimestamp.After(events[i-1].Metadata.MaxTimestamp))
	}
	for _, group := range events {
		assert.True(t, group.Metadata.Count >= group.Metadata.EscalatedCount)
		assert.False(t, group.Metadata.MinTimestamp.After(group.Metadata.MaxTimestamp))
	}
}
