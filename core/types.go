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
	"encoding/json"
	"strings"
	"time"

	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/querystring"
	"github.com/jasonish/evecore/util"
	"github.com/pkg/errors"
)

// EveEventSink is an interface representing an event sink. An
// implementation will write the event to a datastore.
type EveEventSink interface {
	// Submit takes an event for submission to the datastore.
	Submit(event eve.EveEvent) error

	// Commit flushes the submitted events to the datastore, returning the
	// number of events the datastore acknowledged.
	Commit() (uint64, error)
}

// Event is a single stored event as returned by the datastores.
type Event struct {
	ID     string       `json:"_id"`
	Source eve.EveEvent `json:"_source"`
}

// AlertGroupSpec identifies a group of alerts, all alerts with the
// signature ID, source and destination address within the time range.
// If Sensor is set only the alerts from that sensor are in the group,
// NoName selecting alerts without a host.
type AlertGroupSpec struct {
	SignatureID  uint64    `json:"signature_id"`
	SrcIP        string    `json:"src_ip"`
	DestIP       string    `json:"dest_ip"`
	MinTimestamp time.Time `json:"min_timestamp"`
	MaxTimestamp time.Time `json:"max_timestamp"`
	Sensor       string    `json:"sensor,omitempty"`
}

// UnmarshalJSON accepts timestamps in both EVE and RFC3339 format, as
// the timestamps are usually echoed back from an alert query.
func (s *AlertGroupSpec) UnmarshalJSON(b []byte) error {
	var raw util.JsonMap
	if err := util.DecodeJson(b, &raw); err != nil {
		return err
	}
	sid, ok := util.AsInt64(raw.Get("signature_id"))
	if !ok {
		if asString := raw.GetString("signature_id"); asString != "" {
			if err := json.Unmarshal([]byte(asString), &sid); err != nil {
				return NewBadRequestError("invalid signature_id: %s", asString)
			}
		} else {
			return NewBadRequestError("missing signature_id")
		}
	}
	s.SignatureID = uint64(sid)
	s.SrcIP = raw.GetString("src_ip")
	s.DestIP = raw.GetString("dest_ip")
	s.Sensor = raw.GetString("sensor")

	var err error
	if s.MinTimestamp, err = eve.ParseTimestamp(raw.GetString("min_timestamp")); err != nil {
		return NewBadRequestError("invalid min_timestamp: %s", raw.GetString("min_timestamp"))
	}
	if s.MaxTimestamp, err = eve.ParseTimestamp(raw.GetString("max_timestamp")); err != nil {
		return NewBadRequestError("invalid max_timestamp: %s", raw.GetString("max_timestamp"))
	}
	return nil
}

// AlertQueryOptions includes the options for querying alerts which are then
// returned as alert groups.
type AlertQueryOptions struct {
	// The parsed user query.
	Query []querystring.Element

	// Tags that events must have, a tag prefixed with "-" must not be
	// present.
	Tags []string

	// Limit to alerts from this sensor, NoName for events without a host.
	Sensor string

	// Lower bound on the timestamp, ignored if the query has its own lower
	// bound. Zero for none.
	TimestampGte time.Time

	// Soft deadline for the query, zero for none.
	Timeout time.Duration
}

// SplitTags splits the tag list into the tags that must be present and
// those that must not.
func SplitTags(tags []string) (mustHave []string, mustNotHave []string) {
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if strings.HasPrefix(tag, "-") {
			mustNotHave = append(mustNotHave, tag[1:])
		} else {
			mustHave = append(mustHave, tag)
		}
	}
	return mustHave, mustNotHave
}

type AggAlertMetadata struct {
	Count          uint64    `json:"count"`
	EscalatedCount uint64    `json:"escalated_count"`
	MinTimestamp   time.Time `json:"min_timestamp"`
	MaxTimestamp   time.Time `json:"max_timestamp"`
}

// AggAlert is one group of alerts. The source is the newest event in
// the group.
type AggAlert struct {
	ID       string           `json:"_id"`
	Source   eve.EveEvent     `json:"_source"`
	Metadata AggAlertMetadata `json:"_metadata"`
}

type AlertsResult struct {
	Events       []AggAlert `json:"events"`
	TimedOut     bool       `json:"timed_out"`
	Took         int64      `json:"took"`
	MinTimestamp *time.Time `json:"min_timestamp,omitempty"`
	MaxTimestamp *time.Time `json:"max_timestamp,omitempty"`
}

const DefaultEventQuerySize = 500

type EventQueryOptions struct {
	Query []querystring.Element

	// Zero values for no bound.
	MinTimestamp time.Time
	MaxTimestamp time.Time

	// Event type to limit results to. When empty, stats events are
	// excluded.
	EventType string

	Sensor string

	// Number of results to return, DefaultEventQuerySize if 0.
	Size int64

	// "asc" or "desc" (default).
	Order string

	// Field to sort by, the timestamp if empty.
	SortBy string
}

func (o EventQueryOptions) SizeOrDefault() int64 {
	if o.Size <= 0 {
		return DefaultEventQuerySize
	}
	return o.Size
}

func (o EventQueryOptions) Ascending() bool {
	return strings.ToLower(o.Order) == "asc"
}

// Fields where a group by over a long time range is too expensive. For
// these the time range is limited to highCardinalityWindow.
var highCardinalityFields = map[string]bool{
	"src_port":  true,
	"dest_port": true,
	"proto":     true,
	"src_ip":    true,
	"dest_ip":   true,
}

const highCardinalityWindow = 6 * time.Hour

type GroupByOptions struct {
	Field        string
	Size         int64
	Order        string
	Query        []querystring.Element
	MinTimestamp time.Time
	MaxTimestamp time.Time
	EventType    string
	Sensor       string
}

func (o GroupByOptions) Ascending() bool {
	return strings.ToLower(o.Order) == "asc"
}

func (o GroupByOptions) SizeOrDefault() int64 {
	if o.Size <= 0 {
		return 10
	}
	return o.Size
}

// ClampTimeRange limits the lower bound of a group by on a high
// cardinality field to 6 hours before now.
func (o *GroupByOptions) ClampTimeRange(now time.Time) {
	if !highCardinalityFields[o.Field] {
		return
	}
	min := now.Add(-highCardinalityWindow)
	lower := o.MinTimestamp
	if queryLower, ok := querystring.LowerBound(o.Query); ok && queryLower.After(lower) {
		lower = queryLower
	}
	if lower.IsZero() || lower.Before(min) {
		o.MinTimestamp = min
	}
}

type GroupByResult struct {
	Key   interface{} `json:"key"`
	Count uint64      `json:"count"`
}

type DhcpOptions struct {
	// Zero for no lower bound.
	Earliest time.Time

	// "ack", "request", etc.
	DhcpType string

	Sensor string
}

type DnsReverseLookupOptions struct {
	// Upper bound of the search window, now if zero. The window is the
	// hour before it.
	Before time.Time
	Sensor string
	SrcIp  string
	DestIp string
}

const DnsReverseLookupWindow = time.Hour

// Range returns the time window to look for DNS answers in.
func (o DnsReverseLookupOptions) Range(now time.Time) (time.Time, time.Time) {
	before := o.Before
	if before.IsZero() {
		before = now
	}
	return before.Add(-DnsReverseLookupWindow), before
}

// DhcpLatestPerMac reduces a list of DHCP events, ordered newest first, to
// the most recent event per client MAC address.
func DhcpLatestPerMac(events []eve.EveEvent) []eve.EveEvent {
	seen := map[string]bool{}
	result := []eve.EveEvent{}
	for _, event := range events {
		mac := event.GetMap("dhcp").GetString("client_mac")
		if seen[mac] {
			continue
		}
		seen[mac] = true
		result = append(result, event)
	}
	return result
}

// UniqueStrings returns values with duplicates removed, keeping the
// first occurrence.
func UniqueStrings(values []string) []string {
	seen := map[string]bool{}
	result := []string{}
	for _, value := range values {
		if !seen[value] {
			seen[value] = true
			result = append(result, value)
		}
	}
	return result
}

// RequireTimestamp returns an error if ts is zero.
func RequireTimestamp(name string, ts time.Time) error {
	if ts.IsZero() {
		return errors.WithStack(NewBadRequestError("%s is required", name))
	}
	return nil
}
