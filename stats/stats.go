/* Copyright (c) 2024 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

// Package stats holds the backend independent parts of the Suricata
// stats aggregations: interval selection, bucketing and the per bucket
// derivative of counters.
package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Point is the value of a counter for one time bucket.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     int64     `json:"value"`
}

type AggOptions struct {
	// Dotted path of the counter below "stats", eg. "decoder.pkts".
	Field     string
	StartTime time.Time
	// Now if zero.
	EndTime time.Time
	// Limit to one sensor, core.NoName for events without a host.
	Sensor string
}

var intervalSteps = []struct {
	maxRange time.Duration
	interval time.Duration
}{
	{time.Hour, time.Minute},
	{24 * time.Hour, 5 * time.Minute},
	{7 * 24 * time.Hour, time.Hour},
}

// Interval returns the bucket size for a time range.
func Interval(timeRange time.Duration) time.Duration {
	for _, step := range intervalSteps {
		if timeRange <= step.maxRange {
			return step.interval
		}
	}
	return 24 * time.Hour
}

// Validate checks the options and fills in the end time.
func (o *AggOptions) Validate(now time.Time) error {
	if o.Field == "" {
		return errors.New("field is required")
	}
	for _, r := range o.Field {
		if !(r == '.' || r == '_' || r == '-' || (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return errors.Errorf("invalid field name: %s", o.Field)
		}
	}
	if o.StartTime.IsZero() {
		return errors.New("start time is required")
	}
	if o.EndTime.IsZero() {
		o.EndTime = now
	}
	if o.EndTime.Before(o.StartTime) {
		return errors.New("end time is before start time")
	}
	return nil
}

// Interval returns the bucket size for the options time range.
func (o AggOptions) Interval() time.Duration {
	return Interval(o.EndTime.Sub(o.StartTime))
}

// FieldPath returns the full dotted path of the counter in a stats event.
func (o AggOptions) FieldPath() string {
	if strings.HasPrefix(o.Field, "stats.") {
		return o.Field
	}
	return "stats." + o.Field
}

// Bucket returns the start of the bucket containing ts.
func Bucket(ts time.Time, interval time.Duration) time.Time {
	seconds := int64(interval / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	unix := ts.Unix()
	return time.Unix(unix-unix%seconds, 0).UTC()
}

// Diff returns the per bucket change of a counter. A value lower than
// the previous one is taken as a counter reset and reported as is.
func Diff(points []Point) []Point {
	if len(points) < 2 {
		return []Point{}
	}
	result := make([]Point, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		value := points[i].Value
		if value >= points[i-1].Value {
			value -= points[i-1].Value
		}
		result = append(result, Point{
			Timestamp: points[i].Timestamp,
			Value:     value,
		})
	}
	return result
}

// DiffBySensor applies Diff to each sensor.
func DiffBySensor(points map[string][]Point) map[string][]Point {
	result := make(map[string][]Point, len(points))
	for sensor, values := range points {
		result[sensor] = Diff(values)
	}
	return result
}

// Sort orders points by timestamp.
func Sort(points []Point) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}

// Collector accumulates the max value per bucket and sensor for
// backends that bucket in Go.
type Collector struct {
	interval time.Duration
	buckets  map[string]map[int64]int64
}

func NewCollector(interval time.Duration) *Collector {
	return &Collector{
		interval: interval,
		buckets:  map[string]map[int64]int64{},
	}
}

func (c *Collector) Add(sensor string, ts time.Time, value int64) {
	bucket := Bucket(ts, c.interval).Unix()
	sensorBuckets := c.buckets[sensor]
	if sensorBuckets == nil {
		sensorBuckets = map[int64]int64{}
		c.buckets[sensor] = sensorBuckets
	}
	if existing, ok := sensorBuckets[bucket]; !ok || value > existing {
		sensorBuckets[bucket] = value
	}
}

// BySensor returns the points per sensor, ordered by time.
func (c *Collector) BySensor() map[string][]Point {
	result := make(map[string][]Point, len(c.buckets))
	for sensor, buckets := range c.buckets {
		points := make([]Point, 0, len(buckets))
		for ts, value := range buckets {
			points = append(points, Point{Timestamp: time.Unix(ts, 0).UTC(), Value: value})
		}
		Sort(points)
		result[sensor] = points
	}
	return result
}

// Points returns the max across all sensors per bucket.
func (c *Collector) Points() []Point {
	merged := map[int64]int64{}
	for _, buckets := range c.buckets {
		for ts, value := range buckets {
			if existing, ok := merged[ts]; !ok || value > existing {
				merged[ts] = value
			}
		}
	}
	points := make([]Point, 0, len(merged))
	for ts, value := range merged {
		points = append(points, Point{Timestamp: time.Unix(ts, 0).UTC(), Value: value})
	}
	Sort(points)
	return points
}
