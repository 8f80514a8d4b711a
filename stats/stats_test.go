package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(values ...int64) []Point {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result := []Point{}
	for i, value := range values {
		result = append(result, Point{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Value:     value,
		})
	}
	return result
}

func values(points []Point) []int64 {
	result := []int64{}
	for _, p := range points {
		result = append(result, p.Value)
	}
	return result
}

func TestDiffWithCounterReset(t *testing.T) {
	input := points(10, 20, 5, 15)
	diff := Diff(input)
	assert.Equal(t, []int64{10, 5, 10}, values(diff))

	// Each diff is reported at the later bucket.
	assert.Equal(t, input[1].Timestamp, diff[0].Timestamp)
	assert.Equal(t, input[3].Timestamp, diff[2].Timestamp)
}

func TestDiffShortInput(t *testing.T) {
	assert.Empty(t, Diff(nil))
	assert.Empty(t, Diff(points(1)))
}

func TestInterval(t *testing.T) {
	assert.Equal(t, time.Minute, Interval(30*time.Minute))
	assert.Equal(t, time.Minute, Interval(time.Hour))
	assert.Equal(t, 5*time.Minute, Interval(2*time.Hour))
	assert.Equal(t, time.Hour, Interval(3*24*time.Hour))
	assert.Equal(t, 24*time.Hour, Interval(30*24*time.Hour))
}

func TestValidate(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	options := AggOptions{Field: "decoder.pkts", StartTime: now.Add(-time.Hour)}
	require.Nil(t, options.Validate(now))
	assert.Equal(t, now, options.EndTime)
	assert.Equal(t, time.Minute, options.Interval())
	assert.Equal(t, "stats.decoder.pkts", options.FieldPath())

	options = AggOptions{Field: "decoder.pkts'); drop table events", StartTime: now}
	assert.NotNil(t, options.Validate(now))

	options = AggOptions{StartTime: now}
	assert.NotNil(t, options.Validate(now))

	options = AggOptions{Field: "x", StartTime: now, EndTime: now.Add(-time.Hour)}
	assert.NotNil(t, options.Validate(now))
}

func TestCollector(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCollector(time.Minute)
	c.Add("a", start.Add(10*time.Second), 5)
	c.Add("a", start.Add(50*time.Second), 7)
	c.Add("a", start.Add(70*time.Second), 9)
	c.Add("b", start.Add(20*time.Second), 100)

	bySensor := c.BySensor()
	assert.Equal(t, []int64{7, 9}, values(bySensor["a"]))
	assert.Equal(t, []int64{100}, values(bySensor["b"]))
	assert.Equal(t, start, bySensor["a"][0].Timestamp)

	assert.Equal(t, []int64{100, 9}, values(c.Points()))
}

func TestBucket(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 7, 31, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), Bucket(ts, 5*time.Minute))
}
