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
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/retention"
	"github.com/jasonish/evecore/util"
)

type DataStore struct {
	core.UnimplementedDatastore
	es *ElasticSearch

	// For tests.
	now func() time.Time
}

func NewDataStore(es *ElasticSearch) *DataStore {
	return &DataStore{
		es:  es,
		now: time.Now,
	}
}

func (s *DataStore) GetEveEventSink() core.EveEventSink {
	return NewIndexer(s.es)
}

// Retention returns a sweeper deleting daily indices.
func (s *DataStore) Retention() *retention.Manager {
	return retention.NewManager(NewIndexStore(s.es), s.es.IndexPattern())
}

func hitToEvent(hit util.JsonMap) core.Event {
	source := eve.EveEvent(hit.GetMap("_source"))
	if source == nil {
		source = eve.EveEvent{}
	}
	if source["tags"] == nil {
		source["tags"] = []interface{}{}
	}
	return core.Event{
		ID:     hit.GetString("_id"),
		Source: source,
	}
}

// GetEventById returns the event with the given ID. If no event is found
// nil will be returned for the event and error will not be set.
func (s *DataStore) GetEventById(ctx context.Context, id string) (*core.Event, error) {
	query := NewEventQuery()
	query.AddFilter(IdsQuery(id))
	query.SetSize(1)
	response, err := s.es.Search(ctx, query)
	if err != nil {
		return nil, core.NewBackendError(err, "failed to get event")
	}
	if len(response.Hits.Hits) == 0 {
		return nil, nil
	}
	event := hitToEvent(response.Hits.Hits[0])
	return &event, nil
}

func (s *DataStore) Events(ctx context.Context, options core.EventQueryOptions) ([]core.Event, error) {
	query := NewEventQuery()
	if options.EventType != "" {
		query.AddFilter(TermQuery(s.es.FormatKeyword("event_type"), options.EventType))
	} else {
		query.MustNot(TermQuery(s.es.FormatKeyword("event_type"), "stats"))
	}
	s.es.Sensor(query, options.Sensor)
	if !options.MinTimestamp.IsZero() {
		query.TimestampGte(options.MinTimestamp)
	}
	if !options.MaxTimestamp.IsZero() {
		query.TimestampLte(options.MaxTimestamp)
	}
	s.es.ApplyQueryString(query, options.Query)

	order := "desc"
	if options.Ascending() {
		order = "asc"
	}
	if options.SortBy != "" && options.SortBy != "timestamp" {
		field, err := s.es.AggField(ctx, options.SortBy)
		if err != nil {
			return nil, core.NewBackendError(err, "failed to get field type")
		}
		query.SortBy(field, order)
	} else {
		query.SortBy("@timestamp", order)
	}
	query.SetSize(options.SizeOrDefault())

	response, err := s.es.Search(ctx, query)
	if err != nil {
		return nil, core.NewBackendError(err, "event query failed")
	}

	events := make([]core.Event, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		events = append(events, hitToEvent(hit))
	}
	log.Debug("Event query returned %d events in %dms", len(events), response.Took)
	return events, nil
}
