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
	"github.com/jasonish/evecore/stats"
	"github.com/jasonish/evecore/util"
	"github.com/pkg/errors"
)

func (s *DataStore) GroupBy(ctx context.Context, options core.GroupByOptions) ([]core.GroupByResult, error) {
	if options.Field == "" {
		return nil, core.NewBadRequestError("field is required")
	}
	options.ClampTimeRange(s.now())

	field, err := s.es.AggField(ctx, options.Field)
	if err != nil {
		return nil, core.NewBackendError(err, "failed to get field type")
	}

	query := NewEventQuery()
	if options.EventType != "" {
		query.AddFilter(TermQuery(s.es.FormatKeyword("event_type"), options.EventType))
	}
	s.es.Sensor(query, options.Sensor)
	if !options.MinTimestamp.IsZero() {
		query.TimestampGte(options.MinTimestamp)
	}
	if !options.MaxTimestamp.IsZero() {
		query.TimestampLte(options.MaxTimestamp)
	}
	s.es.ApplyQueryString(query, options.Query)
	query.SetSize(0)
	query.Sort = nil

	agg := TermsAgg(field, options.SizeOrDefault())
	if options.Ascending() {
		agg["terms"].(m)["order"] = m{"_count": "asc"}
	}
	query.Aggs["group_by"] = agg

	response, err := s.es.Search(ctx, query)
	if err != nil {
		return nil, core.NewBackendError(err, "group by query failed")
	}

	results := []core.GroupByResult{}
	for _, bucket := range response.Aggregations.GetMap("group_by").GetMapList("buckets") {
		key := bucket.Get("key")
		if number, ok := util.AsInt64(key); ok {
			key = number
		}
		results = append(results, core.GroupByResult{
			Key:   key,
			Count: uint64(bucket.GetInt64("doc_count")),
		})
	}
	return results, nil
}

func (s *DataStore) HistogramTime(ctx context.Context, options core.HistogramOptions) ([]core.HistogramBucket, error) {
	start, end, interval := options.Resolve(s.now())

	query := NewEventQuery()
	if options.EventType != "" {
		query.AddFilter(TermQuery(s.es.FormatKeyword("event_type"), options.EventType))
	}
	s.es.Sensor(query, options.Sensor)
	query.TimestampGte(start)
	query.TimestampLt(end)
	s.es.ApplyQueryString(query, options.Query)
	query.SetSize(0)
	query.Sort = nil
	query.Aggs["histogram"] = DateHistogramAgg("@timestamp", interval)

	response, err := s.es.Search(ctx, query)
	if err != nil {
		return nil, core.NewBackendError(err, "histogram query failed")
	}

	counts := map[int64]uint64{}
	for _, bucket := range response.Aggregations.GetMap("histogram").GetMapList("buckets") {
		counts[bucket.GetInt64("key")] = uint64(bucket.GetInt64("doc_count"))
	}
	return core.ZeroFill(start, end, interval, counts), nil
}

func (s *DataStore) statsCollector(ctx context.Context, options stats.AggOptions) (*stats.Collector, error) {
	if err := options.Validate(s.now()); err != nil {
		return nil, errors.WithStack(core.NewBadRequestError("%v", err))
	}
	interval := options.Interval()

	query := NewEventQuery()
	query.AddFilter(TermQuery(s.es.FormatKeyword("event_type"), "stats"))
	s.es.Sensor(query, options.Sensor)
	query.TimestampGte(options.StartTime)
	query.TimestampLte(options.EndTime)
	query.SetSize(0)
	query.Sort = nil

	hosts := TermsAgg(s.es.FormatKeyword("host"), 1000)
	hosts["terms"].(m)["missing"] = core.NoName
	query.Aggs["histogram"] = WithAggs(DateHistogramAgg("@timestamp", interval), m{
		"hosts": WithAggs(hosts, m{
			"value": MaxAgg(options.FieldPath()),
		}),
	})

	response, err := s.es.Search(ctx, query)
	if err != nil {
		return nil, core.NewBackendError(err, "stats query failed")
	}

	collector := stats.NewCollector(interval)
	for _, bucket := range response.Aggregations.GetMap("histogram").GetMapList("buckets") {
		ts, ok := msToTime(bucket.Get("key"))
		if !ok {
			continue
		}
		for _, host := range bucket.GetMap("hosts").GetMapList("buckets") {
			value, ok := util.AsFloat64(host.GetMap("value").Get("value"))
			if !ok {
				// Null when no event in the bucket has the field.
				continue
			}
			sensor, _ := host.Get("key").(string)
			collector.Add(core.SensorName(sensor), ts, int64(value))
		}
	}
	return collector, nil
}

func (s *DataStore) StatsAgg(ctx context.Context, options stats.AggOptions) ([]stats.Point, error) {
	collector, err := s.statsCollector(ctx, options)
	if err != nil {
		return nil, err
	}
	return collector.Points(), nil
}

func (s *DataStore) StatsAggBySensor(ctx context.Context, options stats.AggOptions) (map[string][]stats.Point, error) {
	collector, err := s.statsCollector(ctx, options)
	if err != nil {
		return nil, err
	}
	return collector.BySensor(), nil
}

func (s *DataStore) Dhcp(ctx context.Context, options core.DhcpOptions) ([]eve.EveEvent, error) {
	query := NewEventQuery()
	query.AddFilter(TermQuery(s.es.FormatKeyword("event_type"), "dhcp"))
	query.AddFilter(TermQuery(s.es.FormatKeyword("dhcp.dhcp_type"), options.DhcpType))
	s.es.Sensor(query, options.Sensor)
	if !options.Earliest.IsZero() {
		query.TimestampGte(options.Earliest)
	}
	query.SetSize(0)
	query.Sort = nil
	query.Aggs["client_mac"] = WithAggs(TermsAgg(s.es.FormatKeyword("dhcp.client_mac"), 10000), m{
		"latest": TopHitsAgg("@timestamp", "desc", 1),
	})

	response, err := s.es.Search(ctx, query)
	if err != nil {
		return nil, core.NewBackendError(err, "dhcp query failed")
	}

	events := []eve.EveEvent{}
	for _, bucket := range response.Aggregations.GetMap("client_mac").GetMapList("buckets") {
		hits := bucket.GetMap("latest").GetMap("hits").GetMapList("hits")
		if len(hits) > 0 {
			events = append(events, hitToEvent(hits[0]).Source)
		}
	}
	return events, nil
}

func (s *DataStore) GetSensors(ctx context.Context) ([]string, error) {
	query := NewEventQuery()
	query.TimestampGte(s.now().Add(-24 * time.Hour))
	query.SetSize(0)
	query.Sort = nil
	hosts := TermsAgg(s.es.FormatKeyword("host"), 1000)
	hosts["terms"].(m)["missing"] = core.NoName
	query.Aggs["sensors"] = hosts

	response, err := s.es.Search(ctx, query)
	if err != nil {
		return nil, core.NewBackendError(err, "sensor query failed")
	}

	sensors := []string{}
	for _, bucket := range response.Aggregations.GetMap("sensors").GetMapList("buckets") {
		if sensor, ok := bucket.Get("key").(string); ok {
			sensors = append(sensors, core.SensorName(sensor))
		}
	}
	return core.SortSensors(core.UniqueStrings(sensors)), nil
}

func (s *DataStore) DnsReverseLookup(ctx context.Context, options core.DnsReverseLookupOptions) ([]string, error) {
	from, to := options.Range(s.now())

	query := NewEventQuery()
	query.AddFilter(TermQuery(s.es.FormatKeyword("event_type"), "dns"))
	query.AddFilter(TermsQuery(s.es.FormatKeyword("dns.type"), "answer", "response"))
	query.AddFilter(ShouldQuery(
		TermsQuery(s.es.FormatKeyword("src_ip"), options.SrcIp, options.DestIp),
		TermsQuery(s.es.FormatKeyword("dest_ip"), options.SrcIp, options.DestIp)))
	query.AddFilter(ShouldQuery(
		TermQuery(s.es.FormatKeyword("dns.rdata"), options.SrcIp),
		TermQuery(s.es.FormatKeyword("dns.answers.rdata"), options.SrcIp)))
	s.es.Sensor(query, options.Sensor)
	query.TimestampGte(from)
	query.TimestampLte(to)
	query.SetSize(100)

	response, err := s.es.Search(ctx, query)
	if err != nil {
		return nil, core.NewBackendError(err, "dns reverse lookup failed")
	}

	rrnames := []string{}
	for _, hit := range response.Hits.Hits {
		rrnames = append(rrnames, eve.DnsRrnamesForRdata(hitToEvent(hit).Source, options.SrcIp)...)
	}
	return core.UniqueStrings(rrnames), nil
}
