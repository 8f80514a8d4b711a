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

package eve

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jasonish/evecore/util"
	"github.com/pkg/errors"
)

// EveEvent is a decoded EVE record. Keys starting with "__" hold values
// derived from the record and are never serialized.
type EveEvent map[string]interface{}

const parsedTimestampKey = "__parsed_timestamp"

// NewEveEventFromBytes decodes one EVE record. The timestamp must be
// present and parseable, it is parsed once here and cached on the event.
func NewEveEventFromBytes(b []byte) (EveEvent, error) {
	var event EveEvent
	if err := util.DecodeJson(b, &event); err != nil {
		return nil, errors.Wrap(err, "invalid json")
	}
	if event == nil {
		return nil, errors.New("not a json object")
	}
	if _, ok := event["tags"].([]interface{}); !ok {
		event["tags"] = []interface{}{}
	}

	timestamp, err := event.parseTimestamp()
	if err != nil {
		return nil, err
	}
	event[parsedTimestampKey] = timestamp
	return event, nil
}

func NewEveEventFromString(s string) (EveEvent, error) {
	return NewEveEventFromBytes([]byte(s))
}

func (e EveEvent) MarshalJSON() ([]byte, error) {
	event := make(map[string]interface{}, len(e))
	for key, val := range e {
		if strings.HasPrefix(key, "__") {
			continue
		}
		event[key] = val
	}
	return json.Marshal(event)
}

func (e EveEvent) parseTimestamp() (time.Time, error) {
	tsstring, ok := e["timestamp"].(string)
	if !ok {
		return time.Time{}, errors.New("missing or invalid timestamp")
	}
	return ParseTimestamp(tsstring)
}

// Timestamp returns the parsed timestamp of the event. Events that did not
// go through NewEveEventFromBytes are parsed on demand, a zero time is
// returned if the timestamp is missing or invalid.
func (e EveEvent) Timestamp() time.Time {
	if ts, ok := e[parsedTimestampKey].(time.Time); ok {
		return ts
	}
	ts, err := e.parseTimestamp()
	if err != nil {
		return time.Time{}
	}
	e[parsedTimestampKey] = ts
	return ts
}

func (e EveEvent) SetTimestamp(ts time.Time) {
	e["timestamp"] = FormatTimestamp(ts)
	e[parsedTimestampKey] = ts
}

func (e EveEvent) EventType() string {
	return e.GetString("event_type")
}

func (e EveEvent) Proto() string {
	return e.GetString("proto")
}

func (e EveEvent) SrcIp() string {
	return e.GetString("src_ip")
}

func (e EveEvent) DestIp() string {
	return e.GetString("dest_ip")
}

// Host returns the sensor name, or an empty string if the event has none.
func (e EveEvent) Host() string {
	return e.GetString("host")
}

func (e EveEvent) GetMap(key string) util.JsonMap {
	return util.JsonMap(e).GetMap(key)
}

func (e EveEvent) GetString(key string) string {
	return util.JsonMap(e).GetString(key)
}

// GetPath returns the value at a dotted path, eg. "dhcp.client_mac".
func (e EveEvent) GetPath(path string) interface{} {
	return util.JsonMap(e).GetPath(path)
}

func (e EveEvent) GetAlert() util.JsonMap {
	return util.JsonMap(e).GetMap("alert")
}

func (e EveEvent) GetAlertSignatureId() (uint64, bool) {
	sid, ok := util.AsInt64(e.GetAlert().Get("signature_id"))
	if !ok || sid < 0 {
		return 0, false
	}
	return uint64(sid), true
}

func (e EveEvent) Tags() []string {
	return util.JsonMap(e).GetAsStrings("tags")
}

func (e EveEvent) HasTag(tag string) bool {
	for _, existing := range e.Tags() {
		if existing == tag {
			return true
		}
	}
	return false
}

func (e EveEvent) AddTag(tag string) {
	tags, ok := e["tags"].([]interface{})
	if !ok {
		tags = []interface{}{}
		for _, existing := range e.Tags() {
			tags = append(tags, existing)
		}
	}
	for _, existing := range tags {
		if existing == tag {
			e["tags"] = tags
			return
		}
	}
	e["tags"] = append(tags, tag)
}

func (e EveEvent) RemoveTag(tag string) {
	tags := []interface{}{}
	for _, existing := range e.Tags() {
		if existing != tag {
			tags = append(tags, existing)
		}
	}
	e["tags"] = tags
}
