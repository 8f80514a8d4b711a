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

package core

import (
	"sort"
	"time"

	"github.com/jasonish/evecore/querystring"
)

type HistogramOptions struct {
	// Bucket size, selected from the time range when zero.
	Interval     time.Duration
	Query        []querystring.Element
	MinTimestamp time.Time
	MaxTimestamp time.Time
	EventType    string
	Sensor       string
}

type HistogramBucket struct {
	// Start of the bucket in milliseconds since the epoch.
	Time  int64  `json:"time"`
	Count uint64 `json:"count"`
}

// The default range of a histogram without a lower bound.
const DefaultHistogramRange = 24 * time.Hour

var histogramSteps = []struct {
	maxRange time.Duration
	interval time.Duration
}{
	{time.Hour, time.Minute},
	{6 * time.Hour, 5 * time.Minute},
	{24 * time.Hour, 15 * time.Minute},
	{3 * 24 * time.Hour, time.Hour},
	{14 * 24 * time.Hour, 3 * time.Hour},
	{60 * 24 * time.Hour, 12 * time.Hour},
}

// HistogramInterval selects a bucket size for a time range.
func HistogramInterval(timeRange time.Duration) time.Duration {
	for _, step := range histogramSteps {
		if timeRange <= step.maxRange {
			return step.interval
		}
	}
	return 24 * time.Hour
}

// Resolve returns the time range and interval for the histogram. The
// range comes from the options, then the query, falling back to the
// last 24 hours.
func (o HistogramOptions) Resolve(now time.Time) (start time.Time, end time.Time, interval time.Duration) {
	start = o.MinTimestamp
	if start.IsZero() {
		if lower, ok := querystring.LowerBound(o.Query); ok {
			start = lower
		} else {
			start = now.Add(-DefaultHistogramRange)
		}
	}
	end = o.MaxTimestamp
	if end.IsZero() {
		if upper, ok := querystring.UpperBound(o.Query); ok {
			end = upper
		} else {
			end = now
		}
	}
	if end.Before(start) {
		end = start
	}
	interval = o.Interval
	if interval <= 0 {
		interval = HistogramInterval(end.Sub(start))
	}
	return start, end, interval
}

// BucketStart returns the start of the bucket ts falls in, in
// milliseconds.
func BucketStart(ts time.Time, interval time.Duration) int64 {
	ms := interval.Nanoseconds() / int64(time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	t := ts.UnixNano() / int64(time.Millisecond)
	return t - floorMod(t, ms)
}

func floorMod(a int64, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// ZeroFill returns a bucket for every interval in [start, end), using the
// counts keyed by bucket start in milliseconds and zero where there is no
// count. Counts outside of the range are kept.
func ZeroFill(start time.Time, end time.Time, interval time.Duration, counts map[int64]uint64) []HistogramBucket {
	step := interval.Nanoseconds() / int64(time.Millisecond)
	if step <= 0 {
		step = 1
	}
	first := BucketStart(start, interval)
	last := end.UnixNano() / int64(time.Millisecond)

	buckets := map[int64]uint64{}
	for t := first; t < last; t += step {
		buckets[t] = 0
	}
	if len(buckets) == 0 {
		buckets[first] = 0
	}
	for t, count := range counts {
		buckets[t] += count
	}

	result := make([]HistogramBucket, 0, len(buckets))
	for t, count := range buckets {
		result = append(result, HistogramBucket{Time: t, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Time < result[j].Time
	})
	return result
}
