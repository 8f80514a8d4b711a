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

// Package alerts groups a stream of alert events into alert groups keyed
// on signature ID, source and destination address.
package alerts

import (
	"sort"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
)

// Row is one alert event read from a datastore. Rows must be fed to the
// Aggregator newest first.
type Row struct {
	ID        string
	Timestamp time.Time
	Escalated bool
	Source    eve.EveEvent
}

type groupKey struct {
	signatureID uint64
	srcIP       string
	destIP      string
}

// Aggregator builds alert groups from rows ordered by timestamp
// descending, with an optional soft timeout.
//
// The timeout clock starts when the aggregator is created, so time spent
// waiting on the query counts against it. Once expired the aggregator
// keeps accepting rows in the same second as the row being processed
// when the timeout was noticed, so a second is never split between two
// requests, then stops.
type Aggregator struct {
	timeout time.Duration
	now     func() time.Time

	groups map[groupKey]*core.AggAlert
	order  []*core.AggAlert

	started  time.Time
	timedOut bool
	abortAt  time.Time
	done     bool

	minTimestamp time.Time
	maxTimestamp time.Time
}

func NewAggregator(timeout time.Duration) *Aggregator {
	return NewAggregatorWithClock(timeout, time.Now)
}

func NewAggregatorWithClock(timeout time.Duration, now func() time.Time) *Aggregator {
	return &Aggregator{
		timeout: timeout,
		now:     now,
		groups:  map[groupKey]*core.AggAlert{},
		started: now(),
	}
}

// Add adds a row to the aggregation. False is returned once the
// aggregation is complete and no more rows should be read; the row that
// returned false is not included.
func (a *Aggregator) Add(row Row) bool {
	if a.done {
		return false
	}

	if a.timedOut {
		if row.Timestamp.Before(a.abortAt) {
			a.done = true
			return false
		}
	} else if a.timeout > 0 && a.now().Sub(a.started) > a.timeout {
		a.timedOut = true
		a.abortAt = row.Timestamp.Truncate(time.Second)
	}

	a.add(row)
	return true
}

func (a *Aggregator) add(row Row) {
	sid, _ := row.Source.GetAlertSignatureId()
	key := groupKey{
		signatureID: sid,
		srcIP:       row.Source.SrcIp(),
		destIP:      row.Source.DestIp(),
	}

	if a.minTimestamp.IsZero() || row.Timestamp.Before(a.minTimestamp) {
		a.minTimestamp = row.Timestamp
	}
	if a.maxTimestamp.IsZero() || row.Timestamp.After(a.maxTimestamp) {
		a.maxTimestamp = row.Timestamp
	}

	group := a.groups[key]
	if group == nil {
		group = &core.AggAlert{
			ID:     row.ID,
			Source: row.Source,
			Metadata: core.AggAlertMetadata{
				Count:        1,
				MinTimestamp: row.Timestamp,
				MaxTimestamp: row.Timestamp,
			},
		}
		if row.Escalated {
			group.Metadata.EscalatedCount = 1
		}
		a.groups[key] = group
		a.order = append(a.order, group)
		return
	}

	group.Metadata.Count++
	if row.Escalated {
		group.Metadata.EscalatedCount++
	}
	// Rows arrive newest first, but don't trust that for the bounds.
	if row.Timestamp.Before(group.Metadata.MinTimestamp) {
		group.Metadata.MinTimestamp = row.Timestamp
	}
	if row.Timestamp.After(group.Metadata.MaxTimestamp) {
		group.Metadata.MaxTimestamp = row.Timestamp
		group.ID = row.ID
		group.Source = row.Source
	}
}

func (a *Aggregator) TimedOut() bool {
	return a.timedOut
}

// Result returns the alert groups ordered by their newest alert.
func (a *Aggregator) Result() *core.AlertsResult {
	events := make([]core.AggAlert, 0, len(a.order))
	for _, group := range a.order {
		events = append(events, *group)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Metadata.MaxTimestamp.After(events[j].Metadata.MaxTimestamp)
	})

	result := &core.AlertsResult{
		Events:   events,
		TimedOut: a.timedOut,
		Took:     int64(a.now().Sub(a.started) / time.Millisecond),
	}
	if !a.minTimestamp.IsZero() {
		min := a.minTimestamp
		max := a.maxTimestamp
		result.MinTimestamp = &min
		result.MaxTimestamp = &max
	}
	return result
}
