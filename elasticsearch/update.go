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

package elasticsearch

import (
	"context"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
)

// Adds and removes tags, then appends an entry to the event history.
const updateScript = `
if (ctx._source.tags == null) {
    ctx._source.tags = new ArrayList();
}
for (tag in params.add) {
    if (!ctx._source.tags.contains(tag)) {
        ctx._source.tags.add(tag);
    }
}
ctx._source.tags.removeAll(params.remove);
if (ctx._source.evebox == null) {
    ctx._source.evebox = new HashMap();
}
if (ctx._source.evebox.history == null) {
    ctx._source.evebox.history = new ArrayList();
}
ctx._source.evebox.history.add(params.history);
`

type tagUpdate struct {
	add    []string
	remove []string
}

var (
	archiveUpdate    = tagUpdate{add: []string{eve.TagArchived}}
	escalateUpdate   = tagUpdate{add: []string{eve.TagEscalated}}
	deescalateUpdate = tagUpdate{remove: []string{eve.TagEscalated}}
	commentUpdate    = tagUpdate{}
)

func newUpdateByQuery(query *EventQuery, update tagUpdate, entry core.HistoryEntry) *UpdateByQuery {
	add := update.add
	if add == nil {
		add = []string{}
	}
	remove := update.remove
	if remove == nil {
		remove = []string{}
	}
	return &UpdateByQuery{
		Query: query.Query,
		Script: &Script{
			Lang:   "painless",
			Source: updateScript,
			Params: map[string]interface{}{
				"add":     add,
				"remove":  remove,
				"history": entry.AsMap(),
			},
		},
	}
}

func (s *DataStore) updateById(ctx context.Context, id string, update tagUpdate, entry core.HistoryEntry) error {
	query := &EventQuery{}
	query.AddFilter(IdsQuery(id))
	response, err := s.es.UpdateByQuery(ctx, newUpdateByQuery(query, update, entry))
	if err != nil {
		return core.NewBackendError(err, "failed to update event")
	}
	if response.Total == 0 {
		return core.NewEventNotFoundError(id)
	}
	return nil
}

func (s *DataStore) ArchiveEvent(ctx context.Context, id string, username string) error {
	return s.updateById(ctx, id, archiveUpdate, core.NewArchivedHistoryEntry(username))
}

func (s *DataStore) EscalateEvent(ctx context.Context, id string, username string) error {
	return s.updateById(ctx, id, escalateUpdate, core.NewEscalatedHistoryEntry(username))
}

func (s *DataStore) DeEscalateEvent(ctx context.Context, id string, username string) error {
	return s.updateById(ctx, id, deescalateUpdate, core.NewDeescalatedHistoryEntry(username))
}

func (s *DataStore) CommentOnEvent(ctx context.Context, id string, comment string, username string) error {
	return s.updateById(ctx, id, commentUpdate, core.NewCommentHistoryEntry(comment, username))
}

// alertGroupQuery returns a query matching the alerts of an alert group.
func (s *DataStore) alertGroupQuery(p core.AlertGroupSpec) *EventQuery {
	query := &EventQuery{}
	query.AddFilter(TermQuery(s.es.FormatKeyword("event_type"), "alert"))
	query.AddFilter(TermQuery("alert.signature_id", p.SignatureID))
	s.ipFilter(query, "src_ip", p.SrcIP)
	s.ipFilter(query, "dest_ip", p.DestIP)
	s.es.Sensor(query, p.Sensor)
	query.TimestampGte(p.MinTimestamp)
	query.TimestampLte(p.MaxTimestamp)
	return query
}

// ipFilter matches an address field, an empty address matching events
// without the field.
func (s *DataStore) ipFilter(query *EventQuery, field string, addr string) {
	if addr == "" {
		query.MustNot(ExistsQuery(field))
	} else {
		query.AddFilter(TermQuery(s.es.FormatKeyword(field), addr))
	}
}

func (s *DataStore) updateAlertGroup(ctx context.Context, query *EventQuery, update tagUpdate, entry core.HistoryEntry) error {
	response, err := s.es.UpdateByQuery(ctx, newUpdateByQuery(query, update, entry))
	if err != nil {
		return core.NewBackendError(err, "failed to update alert group")
	}
	log.Debug("Alert group %s: updated %d events in %dms",
		entry.Action, response.Updated, response.Took)
	return nil
}

func (s *DataStore) ArchiveAlertGroup(ctx context.Context, p core.AlertGroupSpec, username string) error {
	query := s.alertGroupQuery(p)
	query.MustNot(TermQuery(s.es.FormatKeyword("tags"), eve.TagArchived))
	return s.updateAlertGroup(ctx, query, archiveUpdate, core.NewArchivedHistoryEntry(username))
}

func (s *DataStore) EscalateAlertGroup(ctx context.Context, p core.AlertGroupSpec, username string) error {
	query := s.alertGroupQuery(p)
	query.MustNot(TermQuery(s.es.FormatKeyword("tags"), eve.TagEscalated))
	return s.updateAlertGroup(ctx, query, escalateUpdate, core.NewEscalatedHistoryEntry(username))
}

func (s *DataStore) DeEscalateAlertGroup(ctx context.Context, p core.AlertGroupSpec, username string) error {
	query := s.alertGroupQuery(p)
	query.AddFilter(TermQuery(s.es.FormatKeyword("tags"), eve.TagEscalated))
	return s.updateAlertGroup(ctx, query, deescalateUpdate, core.NewDeescalatedHistoryEntry(username))
}

func (s *DataStore) CommentOnAlertGroup(ctx context.Context, p core.AlertGroupSpec, comment string, username string) error {
	return s.updateAlertGroup(ctx, s.alertGroupQuery(p), commentUpdate,
		core.NewCommentHistoryEntry(comment, username))
}
