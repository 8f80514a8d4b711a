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

// Package autoarchive archives alerts matching operator defined rules
// as they are received, and the already stored alerts when a rule is
// added.
package autoarchive

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/pkg/errors"
)

const Wildcard = "*"

// FilterEntry is an auto-archive rule. An empty or "*" sensor or address
// matches any value. The signature ID is required.
type FilterEntry struct {
	SensorName  string `json:"sensor_name" yaml:"sensor"`
	SrcIp       string `json:"src_ip" yaml:"src_ip"`
	DestIp      string `json:"dest_ip" yaml:"dest_ip"`
	SignatureId uint64 `json:"signature_id" yaml:"signature_id"`
}

func wildcard(value string) string {
	if value == "" {
		return Wildcard
	}
	return value
}

// Key returns the canonical form of the entry, sensor,src_ip,dest_ip,sid.
func (f FilterEntry) Key() string {
	return key(wildcard(f.SensorName), wildcard(f.SrcIp), wildcard(f.DestIp), f.SignatureId)
}

func key(sensor string, src string, dest string, sid uint64) string {
	return fmt.Sprintf("%s,%s,%s,%d", sensor, src, dest, sid)
}

// Normalize returns the entry with wildcards for empty fields.
func (f FilterEntry) Normalize() FilterEntry {
	f.SensorName = wildcard(f.SensorName)
	f.SrcIp = wildcard(f.SrcIp)
	f.DestIp = wildcard(f.DestIp)
	return f
}

func (f FilterEntry) Validate() error {
	if f.SignatureId == 0 {
		return core.NewBadRequestError("signature_id is required")
	}
	for _, value := range []string{f.SensorName, f.SrcIp, f.DestIp} {
		if strings.Contains(value, ",") {
			return core.NewBadRequestError("invalid value: %s", value)
		}
	}
	return nil
}

// ParseKey parses the canonical form of an entry.
func ParseKey(k string) (FilterEntry, error) {
	parts := strings.Split(k, ",")
	if len(parts) != 4 {
		return FilterEntry{}, errors.Errorf("invalid auto-archive key: %s", k)
	}
	sid, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return FilterEntry{}, errors.Errorf("invalid signature id in key: %s", k)
	}
	return FilterEntry{
		SensorName:  parts[0],
		SrcIp:       parts[1],
		DestIp:      parts[2],
		SignatureId: sid,
	}, nil
}

// Matches returns true if the entry matches the alert fields. An empty
// sensor is matched as core.NoName.
func (f FilterEntry) Matches(sensor string, src string, dest string, sid uint64) bool {
	f = f.Normalize()
	if sensor == "" {
		sensor = core.NoName
	}
	return f.SignatureId == sid &&
		(f.SensorName == Wildcard || f.SensorName == sensor) &&
		(f.SrcIp == Wildcard || f.SrcIp == src) &&
		(f.DestIp == Wildcard || f.DestIp == dest)
}

// Filters holds the current rule set. The set itself is an immutable
// snapshot replaced on each change, so matching never waits on a writer
// for longer than the swap.
type Filters struct {
	lock     sync.RWMutex
	snapshot map[string]FilterEntry
}

func NewFilters() *Filters {
	return &Filters{
		snapshot: map[string]FilterEntry{},
	}
}

func (f *Filters) current() map[string]FilterEntry {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.snapshot
}

// update applies fn to a copy of the rule set and swaps it in.
func (f *Filters) update(fn func(rules map[string]FilterEntry)) {
	f.lock.Lock()
	defer f.lock.Unlock()
	next := make(map[string]FilterEntry, len(f.snapshot)+1)
	for k, v := range f.snapshot {
		next[k] = v
	}
	fn(next)
	f.snapshot = next
}

// Add adds an entry, returning false if it already existed.
func (f *Filters) Add(entry FilterEntry) bool {
	entry = entry.Normalize()
	added := false
	f.update(func(rules map[string]FilterEntry) {
		if _, exists := rules[entry.Key()]; !exists {
			rules[entry.Key()] = entry
			added = true
		}
	})
	return added
}

// Remove removes an entry, returning false if it didn't exist.
func (f *Filters) Remove(entry FilterEntry) bool {
	removed := false
	f.update(func(rules map[string]FilterEntry) {
		if _, exists := rules[entry.Key()]; exists {
			delete(rules, entry.Key())
			removed = true
		}
	})
	return removed
}

// Replace replaces the rule set, as done on reload of the rule file.
func (f *Filters) Replace(entries []FilterEntry) {
	next := make(map[string]FilterEntry, len(entries))
	for _, entry := range entries {
		entry = entry.Normalize()
		next[entry.Key()] = entry
	}
	f.lock.Lock()
	f.snapshot = next
	f.lock.Unlock()
}

// List returns the entries ordered by key.
func (f *Filters) List() []FilterEntry {
	rules := f.current()
	entries := make([]FilterEntry, 0, len(rules))
	for _, entry := range rules {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key() < entries[j].Key()
	})
	return entries
}

func (f *Filters) Len() int {
	return len(f.current())
}

// Match returns the entry matching an alert event. Keys are checked from
// the most to least specific: all fields, sensor and signature, source
// destination and signature, then signature only.
func (f *Filters) Match(event eve.EveEvent) (FilterEntry, bool) {
	if event.EventType() != "alert" {
		return FilterEntry{}, false
	}
	sid, ok := event.GetAlertSignatureId()
	if !ok {
		return FilterEntry{}, false
	}
	rules := f.current()
	if len(rules) == 0 {
		return FilterEntry{}, false
	}

	sensor := event.Host()
	if sensor == "" {
		sensor = core.NoName
	}
	src := wildcard(event.SrcIp())
	dest := wildcard(event.DestIp())
	for _, k := range []string{
		key(sensor, src, dest, sid),
		key(sensor, Wildcard, Wildcard, sid),
		key(Wildcard, src, dest, sid),
		key(Wildcard, Wildcard, Wildcard, sid),
	} {
		if entry, ok := rules[k]; ok {
			return entry, true
		}
	}
	return FilterEntry{}, false
}

// Apply tags the event as archived if it matches a rule.
func (f *Filters) Apply(event eve.EveEvent) bool {
	if _, ok := f.Match(event); !ok {
		return false
	}
	for _, tag := range eve.AutoArchiveTags {
		event.AddTag(tag)
	}
	return true
}
