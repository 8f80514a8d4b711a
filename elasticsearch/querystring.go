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
	"strconv"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/querystring"
)

// ApplyQueryString adds the parsed query string elements to the query,
// negated elements going into must_not.
func (es *ElasticSearch) ApplyQueryString(q *EventQuery, elements []querystring.Element) {
	for _, element := range elements {
		clause := es.elementQuery(element)
		if clause == nil {
			continue
		}
		if element.Negated {
			q.MustNot(clause)
		} else {
			q.AddFilter(clause)
		}
	}
}

func (es *ElasticSearch) elementQuery(element querystring.Element) interface{} {
	switch element.Type {
	case querystring.String:
		return ShouldQuery(PhraseQueryString(element.Value))
	case querystring.KeyValue:
		if number, err := strconv.ParseInt(element.Value, 10, 64); err == nil {
			return TermQuery(element.Key, number)
		}
		return MatchPhraseQuery(element.Key, element.Value)
	case querystring.Ip:
		return ShouldQuery(
			TermQuery(es.FormatKeyword("src_ip"), element.Value),
			TermQuery(es.FormatKeyword("dest_ip"), element.Value))
	case querystring.From, querystring.EarliestTimestamp:
		return RangeQuery("@timestamp", "gte", element.Time)
	case querystring.To, querystring.LatestTimestamp:
		return RangeQuery("@timestamp", "lte", element.Time)
	case querystring.After:
		return RangeQuery("@timestamp", "gt", element.Time)
	case querystring.Before:
		return RangeQuery("@timestamp", "lt", element.Time)
	}
	return nil
}

// Sensor limits the query to a sensor, core.NoName matching events
// without a host.
func (es *ElasticSearch) Sensor(q *EventQuery, sensor string) {
	switch sensor {
	case "":
	case core.NoName:
		q.MustNot(ExistsQuery("host"))
	default:
		q.AddFilter(TermQuery(es.FormatKeyword("host"), sensor))
	}
}

// Tags adds the tag filters, tags prefixed with "-" must not be present.
// The archived and escalated state are tags in Elasticsearch.
func (es *ElasticSearch) Tags(q *EventQuery, tags []string) {
	mustHave, mustNotHave := core.SplitTags(tags)
	for _, tag := range mustHave {
		q.AddFilter(TermQuery(es.FormatKeyword("tags"), tagName(tag)))
	}
	for _, tag := range mustNotHave {
		q.MustNot(TermQuery(es.FormatKeyword("tags"), tagName(tag)))
	}
}

func tagName(tag string) string {
	switch tag {
	case "archived":
		return eve.TagArchived
	case "escalated":
		return eve.TagEscalated
	}
	return tag
}
