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
	"fmt"
	"sort"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/metrics"
	"github.com/jasonish/evecore/querystring"
	"github.com/jasonish/evecore/util"
)

// Maximum number of buckets at each level of the alert aggregation.
const alertAggSize = 10000

// Returns a 3 tuple aggregation: signature, source, dest. Missing
// addresses are grouped under an empty string.
func (s *DataStore) alertAggs() m {
	termsWithMissing := func(field string) m {
		agg := TermsAgg(field, alertAggSize)
		agg["terms"].(m)["missing"] = ""
		return agg
	}

	return m{
		"signatures": WithAggs(TermsAgg("alert.signature_id", alertAggSize), m{
			"sources": WithAggs(termsWithMissing(s.es.FormatKeyword("src_ip")), m{
				"destinations": WithAggs(termsWithMissing(s.es.FormatKeyword("dest_ip")), m{
					"newest": TopHitsAgg("@timestamp", "desc", 1),
					"oldest": MinAgg("@timestamp"),
					"escalated": FilterAgg(
						TermQuery(s.es.FormatKeyword("tags"), eve.TagEscalated)),
				}),
			}),
		}),
	}
}

func msToTime(value interface{}) (time.Time, bool) {
	ms, ok := util.AsFloat64(value)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, int64(ms)*int64(time.Millisecond)).UTC(), true
}

func (s *DataStore) Alerts(ctx context.Context, options core.AlertQueryOptions) (*core.AlertsResult, error) {
	query := NewEventQuery()
	query.AddFilter(TermQuery(s.es.FormatKeyword("event_type"), "alert"))
	s.es.Tags(query, options.Tags)
	s.es.Sensor(query, options.Sensor)
	if !options.TimestampGte.IsZero() && !querystring.HasLowerBound(options.Query) {
		query.TimestampGte(options.TimestampGte)
	}
	s.es.ApplyQueryString(query, options.Query)
	query.SetSize(0)
	query.Sort = nil
	query.Aggs = s.alertAggs()
	if options.Timeout > 0 {
		query.Timeout = fmt.Sprintf("%dms", options.Timeout.Milliseconds())
	}

	timer := metrics.NewAlertQueryTimer("elasticsearch")
	response, err := s.es.Search(ctx, query)
	if err != nil {
		return nil, core.NewBackendError(err, "alert query failed")
	}

	result := parseAlertAggs(response.Aggregations)
	result.TimedOut = response.TimedOut
	result.Took = int64(response.Took)
	timer.Done(result.TimedOut)
	return result, nil
}

func parseAlertAggs(aggs util.JsonMap) *core.AlertsResult {
	events := []core.AggAlert{}
	var minTimestamp, maxTimestamp time.Time

	for _, signature := range aggs.GetMap("signatures").GetMapList("buckets") {
		for _, source := range signature.GetMap("sources").GetMapList("buckets") {
			for _, dest := range source.GetMap("destinations").GetMapList("buckets") {
				hits := dest.GetMap("newest").GetMap("hits").GetMapList("hits")
				if len(hits) == 0 {
					continue
				}
				newest := hitToEvent(hits[0])

				maxTs := newest.Source.Timestamp()
				if sortValues, ok := hits[0].Get("sort").([]interface{}); ok && len(sortValues) > 0 {
					if ts, ok := msToTime(sortValues[0]); ok {
						maxTs = ts
					}
				}
				minTs, ok := msToTime(dest.GetMap("oldest").Get("value"))
				if !ok {
					minTs = maxTs
				}

				events = append(events, core.AggAlert{
					ID:     newest.ID,
					Source: newest.Source,
					Metadata: core.AggAlertMetadata{
						Count:          uint64(dest.GetInt64("doc_count")),
						EscalatedCount: uint64(dest.GetMap("escalated").GetInt64("doc_count")),
						MinTimestamp:   minTs,
						MaxTimestamp:   maxTs,
					},
				})

				if minTimestamp.IsZero() || minTs.Before(minTimestamp) {
					minTimestamp = minTs
				}
				if maxTs.After(maxTimestamp) {
					maxTimestamp = maxTs
				}
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Metadata.MaxTimestamp.After(events[j].Metadata.MaxTimestamp)
	})

	result := &core.AlertsResult{
		Events: events,
	}
	if len(events) > 0 {
		result.MinTimestamp = &minTimestamp
		result.MaxTimestamp = &maxTimestamp
	}
	return result
}
