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
	"encoding/json"
	"fmt"
	"time"
)

// Type aliases for JSON building.
type m map[string]interface{}
type l []interface{}

type Bool struct {
	Filter  []interface{} `json:"filter,omitempty"`
	MustNot []interface{} `json:"must_not,omitempty"`
	Should  []interface{} `json:"should,omitempty"`

	// Should be an integer, but we make it an interface so
	// its not included if not set.
	MinimumShouldMatch interface{} `json:"minimum_should_match,omitempty"`
}

type Query struct {
	Bool *Bool `json:"bool,omitempty"`
}

// EventQuery is a type for building up an Elasticsearch event query.
type EventQuery struct {
	Query *Query `json:"query,omitempty"`

	// Pointer so its not serialized unless set.
	Size *int64                 `json:"size,omitempty"`
	Sort []interface{}          `json:"sort,omitempty"`
	Aggs map[string]interface{} `json:"aggs,omitempty"`

	// Search timeout, eg. "5s".
	Timeout string `json:"timeout,omitempty"`
}

func NewEventQuery() *EventQuery {
	query := &EventQuery{}
	query.AddFilter(ExistsQuery("event_type"))

	// This is the default sort order. A SortBy() call will replace this.
	query.Sort = []interface{}{
		Sort("@timestamp", "desc"),
	}

	query.Aggs = map[string]interface{}{}
	return query
}

func (q *EventQuery) SetSize(val int64) *EventQuery {
	q.Size = &val
	return q
}

func (q *EventQuery) boolQuery() *Bool {
	if q.Query == nil {
		q.Query = &Query{}
	}
	if q.Query.Bool == nil {
		q.Query.Bool = &Bool{}
	}
	return q.Query.Bool
}

func (q *EventQuery) AddFilter(filter interface{}) *EventQuery {
	b := q.boolQuery()
	b.Filter = append(b.Filter, filter)
	return q
}

func (q *EventQuery) MustNot(query interface{}) *EventQuery {
	b := q.boolQuery()
	b.MustNot = append(b.MustNot, query)
	return q
}

func (q *EventQuery) SortBy(field string, order string) *EventQuery {
	q.Sort = []interface{}{
		Sort(field, order),
	}
	return q
}

func (q *EventQuery) TimestampGte(ts time.Time) *EventQuery {
	return q.AddFilter(RangeQuery("@timestamp", "gte", ts))
}

func (q *EventQuery) TimestampLte(ts time.Time) *EventQuery {
	return q.AddFilter(RangeQuery("@timestamp", "lte", ts))
}

func (q *EventQuery) TimestampLt(ts time.Time) *EventQuery {
	return q.AddFilter(RangeQuery("@timestamp", "lt", ts))
}

func ExistsQuery(field string) interface{} {
	return m{
		"exists": m{
			"field": field,
		},
	}
}

func TermQuery(field string, value interface{}) interface{} {
	return m{
		"term": m{
			field: value,
		},
	}
}

func TermsQuery(field string, values ...interface{}) interface{} {
	return m{
		"terms": m{
			field: values,
		},
	}
}

func IdsQuery(ids ...string) interface{} {
	return m{
		"ids": m{
			"values": ids,
		},
	}
}

func MatchPhraseQuery(field string, value string) interface{} {
	return m{
		"match_phrase": m{
			field: value,
		},
	}
}

// PhraseQueryString matches a phrase in any field.
func PhraseQueryString(phrase string) interface{} {
	quoted, _ := json.Marshal(phrase)
	return m{
		"query_string": m{
			"query":            string(quoted),
			"default_operator": "AND",
		},
	}
}

// ShouldQuery matches if any of the queries match.
func ShouldQuery(queries ...interface{}) interface{} {
	return m{
		"bool": &Bool{
			Should:             queries,
			MinimumShouldMatch: 1,
		},
	}
}

// RangeQuery returns a range query for a single bound, op being one of
// gte, lte, gt and lt.
func RangeQuery(field string, op string, value time.Time) interface{} {
	return m{
		"range": m{
			field: m{
				op: FormatTimestamp(value),
			},
		},
	}
}

func Sort(field string, order string) interface{} {
	return m{
		field: m{
			"order": order,
			// Some indices may not have the field mapped.
			"unmapped_type": "long",
		},
	}
}

func TermsAgg(field string, size int64) m {
	return m{
		"terms": m{
			"field": field,
			"size":  size,
		},
	}
}

func TopHitsAgg(field string, order string, size int64) interface{} {
	return m{
		"top_hits": m{
			"sort": l{
				Sort(field, order),
			},
			"size": size,
		},
	}
}

func MinAgg(field string) interface{} {
	return m{"min": m{"field": field}}
}

func MaxAgg(field string) interface{} {
	return m{"max": m{"field": field}}
}

func FilterAgg(filter interface{}) interface{} {
	return m{"filter": filter}
}

func DateHistogramAgg(field string, interval time.Duration) m {
	return m{
		"date_histogram": m{
			"field":          field,
			"fixed_interval": fmt.Sprintf("%ds", int64(interval/time.Second)),
			"min_doc_count":  1,
		},
	}
}

// WithAggs adds sub-aggregations to an aggregation.
func WithAggs(agg m, aggs m) m {
	agg["aggs"] = aggs
	return agg
}

type Script struct {
	Lang   string                 `json:"lang"`
	Source string                 `json:"source"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type UpdateByQuery struct {
	Query  *Query  `json:"query"`
	Script *Script `json:"script"`
}
