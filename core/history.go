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
	"time"

	"github.com/jasonish/evecore/eve"
)

type HistoryAction string

const (
	HistoryActionArchived    HistoryAction = "archived"
	HistoryActionEscalated   HistoryAction = "escalated"
	HistoryActionDeescalated HistoryAction = "deescalated"
	HistoryActionComment     HistoryAction = "comment"
)

// HistoryEntry is one record in the append only audit trail of an event.
// Comment is only set for HistoryActionComment.
type HistoryEntry struct {
	Action    HistoryAction `json:"action"`
	Timestamp string        `json:"timestamp"`
	Username  string        `json:"username,omitempty"`
	Comment   string        `json:"comment,omitempty"`
}

func newHistoryEntry(action HistoryAction, username string) HistoryEntry {
	return HistoryEntry{
		Action:    action,
		Timestamp: eve.FormatTimestampUTC(time.Now()),
		Username:  username,
	}
}

func NewArchivedHistoryEntry(username string) HistoryEntry {
	return newHistoryEntry(HistoryActionArchived, username)
}

func NewEscalatedHistoryEntry(username string) HistoryEntry {
	return newHistoryEntry(HistoryActionEscalated, username)
}

func NewDeescalatedHistoryEntry(username string) HistoryEntry {
	return newHistoryEntry(HistoryActionDeescalated, username)
}

func NewCommentHistoryEntry(comment string, username string) HistoryEntry {
	entry := newHistoryEntry(HistoryActionComment, username)
	entry.Comment = comment
	return entry
}

// Json returns the entry as a JSON object string for binding into
// queries.
func (h HistoryEntry) Json() string {
	buf, _ := json.Marshal(h)
	return string(buf)
}

// JsonArray returns the entry wrapped in a single element JSON array, the
// form appended to a history column.
func (h HistoryEntry) JsonArray() string {
	return "[" + h.Json() + "]"
}

// AsMap returns the entry as a generic map for document stores.
func (h HistoryEntry) AsMap() map[string]interface{} {
	entry := map[string]interface{}{
		"action":    string(h.Action),
		"timestamp": h.Timestamp,
	}
	if h.Username != "" {
		entry["username"] = h.Username
	}
	if h.Action == HistoryActionComment {
		entry["comment"] = h.Comment
	}
	return entry
}

// MaterializeEvent applies the stored state of an event to its source so
// that all datastores return the same shape: the archived and escalated
// flags become tags and the history is placed under evebox.history.
func MaterializeEvent(source eve.EveEvent, archived bool, escalated bool, history []interface{}) {
	if source["tags"] == nil {
		source["tags"] = []interface{}{}
	}
	if archived {
		source.AddTag(eve.TagArchived)
	}
	if escalated {
		source.AddTag(eve.TagEscalated)
	} else {
		source.RemoveTag(eve.TagEscalated)
	}
	if history == nil {
		history = []interface{}{}
	}
	evebox, ok := source["evebox"].(map[string]interface{})
	if !ok {
		evebox = map[string]interface{}{}
	}
	evebox["history"] = history
	source["evebox"] = evebox
}
