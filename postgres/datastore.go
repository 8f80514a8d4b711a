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

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jasonish/evecore/alerts"
	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/metrics"
	"github.com/jasonish/evecore/querystring"
	"github.com/jasonish/evecore/retention"
	"github.com/jasonish/evecore/stats"
	"github.com/jasonish/evecore/util"
	"github.com/pkg/errors"
	"github.com/satori/go.uuid"
)

const eventColumns = "events.id, events.timestamp, events.archived, events.escalated, events.source, events.history"

type PgDatastore struct {
	core.UnimplementedDatastore
	pg  *PgDB
	now func() time.Time
}

func NewPgDatastore(pg *PgDB) *PgDatastore {
	return &PgDatastore{
		pg:  pg,
		now: time.Now,
	}
}

func (d *PgDatastore) GetEveEventSink() core.EveEventSink {
	return NewPgEventIndexer(d.pg)
}

// Retention returns a sweeper dropping daily partitions.
func (d *PgDatastore) Retention() *retention.Manager {
	return retention.NewManager(NewPartitionStore(d.pg), PartitionPattern)
}

type eventRow struct {
	id        string
	timestamp time.Time
	archived  bool
	escalated bool
	source    eve.EveEvent
}

func scanEvent(rows *sql.Rows) (*eventRow, error) {
	var row eventRow
	var rawSource []byte
	var rawHistory []byte
	if err := rows.Scan(&row.id, &row.timestamp, &row.archived, &row.escalated,
		&rawSource, &rawHistory); err != nil {
		return nil, errors.Wrap(err, "failed to scan event")
	}
	source, err := eve.NewEveEventFromBytes(rawSource)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode event %s", row.id)
	}
	var history []interface{}
	if len(rawHistory) > 0 {
		if err := util.DecodeJson(rawHistory, &history); err != nil {
			log.Warning("Failed to decode history for event %s: %v", row.id, err)
		}
	}
	core.MaterializeEvent(source, row.archived, row.escalated, history)
	row.source = source
	return &row, nil
}

func (d *PgDatastore) query(ctx context.Context, query string, args []interface{}) (*sql.Rows, error) {
	if log.IsDebug() {
		log.Debug("Query: %s; Args: %v", query, args)
	}
	rows, err := d.pg.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewBackendError(err, "query failed")
	}
	return rows, nil
}

func validId(id string) bool {
	_, err := uuid.FromString(id)
	return err == nil
}

func (d *PgDatastore) GetEventById(ctx context.Context, id string) (*core.Event, error) {
	if !validId(id) {
		return nil, nil
	}
	builder := EventQueryBuilder{}
	builder.Select(eventColumns)
	builder.Where("events.id = " + builder.Arg(id))
	query, args, err := builder.Build()
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	rows, err := d.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	log.Debug("Query time for get event by ID: %v", time.Since(startTime))

	if rows.Next() {
		row, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		return &core.Event{ID: row.id, Source: row.source}, nil
	}
	return nil, core.NewBackendError(rows.Err(), "failed to read event")
}

func (d *PgDatastore) updateById(ctx context.Context, set string, id string, entry core.HistoryEntry) error {
	if !validId(id) {
		return core.NewEventNotFoundError(id)
	}
	sqlTemplate := fmt.Sprintf(`UPDATE events
SET %s history = history || $2::jsonb
WHERE id = $1`, set)
	result, err := d.pg.ExecContext(ctx, sqlTemplate, id, entry.JsonArray())
	if err != nil {
		return core.NewBackendError(err, "failed to update event")
	}
	count, err := result.RowsAffected()
	if err != nil {
		return core.NewBackendError(err, "failed to get updated row count")
	}
	if count == 0 {
		return core.NewEventNotFoundError(id)
	}
	return nil
}

func (d *PgDatastore) ArchiveEvent(ctx context.Context, id string, username string) error {
	return d.updateById(ctx, "archived = true,", id, core.NewArchivedHistoryEntry(username))
}

func (d *PgDatastore) EscalateEvent(ctx context.Context, id string, username string) error {
	return d.updateById(ctx, "escalated = true,", id, core.NewEscalatedHistoryEntry(username))
}

func (d *PgDatastore) DeEscalateEvent(ctx context.Context, id string, username string) error {
	return d.updateById(ctx, "escalated = false,", id, core.NewDeescalatedHistoryEntry(username))
}

func (d *PgDatastore) CommentOnEvent(ctx context.Context, id string, comment string, username string) error {
	return d.updateById(ctx, "", id, core.NewCommentHistoryEntry(comment, username))
}

// alertGroupWhere returns the predicates selecting the alerts of a group.
func alertGroupWhere(b *EventQueryBuilder, p core.AlertGroupSpec) {
	b.EventType("alert")
	b.Where(fmt.Sprintf("(events.source -> 'alert' ->> 'signature_id')::bigint = %s",
		b.Arg(int64(p.SignatureID))))
	b.Where(fmt.Sprintf("coalesce(events.source ->> 'src_ip', '') = %s", b.Arg(p.SrcIP)))
	b.Where(fmt.Sprintf("coalesce(events.source ->> 'dest_ip', '') = %s", b.Arg(p.DestIP)))
	b.Sensor(p.Sensor)
	b.TimestampGte(p.MinTimestamp)
	b.TimestampLte(p.MaxTimestamp)
}

func (d *PgDatastore) updateAlertGroup(ctx context.Context, p core.AlertGroupSpec, set string, where string, entry core.HistoryEntry) error {
	builder := EventQueryBuilder{}
	history := builder.Arg(entry.JsonArray())
	alertGroupWhere(&builder, p)
	if where != "" {
		builder.Where(where)
	}

	sqlTemplate := fmt.Sprintf(`UPDATE events
SET %s history = history || %s::jsonb
%s`, set, history, builder.BuildWhere())

	start := time.Now()
	result, err := d.pg.ExecContext(ctx, sqlTemplate, builder.Args()...)
	if err != nil {
		return core.NewBackendError(err, "failed to update alert group")
	}
	count, err := result.RowsAffected()
	if err != nil {
		log.Warning("Failed to get updated row count: %v", err)
	}
	log.Debug("Alert group %s: updated %d events in %v", entry.Action, count, time.Since(start))
	return nil
}

func (d *PgDatastore) ArchiveAlertGroup(ctx context.Context, p core.AlertGroupSpec, username string) error {
	return d.updateAlertGroup(ctx, p, "archived = true,", "events.archived = false",
		core.NewArchivedHistoryEntry(username))
}

func (d *PgDatastore) EscalateAlertGroup(ctx context.Context, p core.AlertGroupSpec, username string) error {
	return d.updateAlertGroup(ctx, p, "escalated = true,", "events.escalated = false",
		core.NewEscalatedHistoryEntry(username))
}

func (d *PgDatastore) DeEscalateAlertGroup(ctx context.Context, p core.AlertGroupSpec, username string) error {
	return d.updateAlertGroup(ctx, p, "escalated = false,", "events.escalated = true",
		core.NewDeescalatedHistoryEntry(username))
}

func (d *PgDatastore) CommentOnAlertGroup(ctx context.Context, p core.AlertGroupSpec, comment string, username string) error {
	return d.updateAlertGroup(ctx, p, "", "", core.NewCommentHistoryEntry(comment, username))
}

func (d *PgDatastore) Alerts(ctx context.Context, options core.AlertQueryOptions) (*core.AlertsResult, error) {
	builder := EventQueryBuilder{}
	builder.Select(eventColumns)
	builder.EventType("alert")
	builder.Tags(options.Tags)
	builder.Sensor(options.Sensor)
	if !options.TimestampGte.IsZero() && !querystring.HasLowerBound(options.Query) {
		builder.TimestampGte(options.TimestampGte)
	}
	builder.ApplyQueryString(options.Query)
	builder.OrderBy("events.timestamp", false)

	query, args, err := builder.Build()
	if err != nil {
		return nil, err
	}

	timer := metrics.NewAlertQueryTimer("postgresql")
	aggregator := alerts.NewAggregator(options.Timeout)
	rows, err := d.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		if !aggregator.Add(alerts.Row{
			ID:        row.id,
			Timestamp: row.timestamp.UTC(),
			Escalated: row.escalated,
			Source:    row.source,
		}) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewBackendError(err, "failed to read alerts")
	}

	result := aggregator.Result()
	timer.Done(result.TimedOut)
	return result, nil
}

func (d *PgDatastore) Events(ctx context.Context, options core.EventQueryOptions) ([]core.Event, error) {
	builder := EventQueryBuilder{}
	builder.Select(eventColumns)
	if options.EventType != "" {
		builder.EventType(options.EventType)
	} else {
		builder.Where("events.source ->> 'event_type' != 'stats'")
	}
	builder.Sensor(options.Sensor)
	if !options.MinTimestamp.IsZero() {
		builder.TimestampGte(options.MinTimestamp)
	}
	if !options.MaxTimestamp.IsZero() {
		builder.TimestampLte(options.MaxTimestamp)
	}
	builder.ApplyQueryString(options.Query)
	if options.SortBy != "" && options.SortBy != "timestamp" {
		if err := validateField(options.SortBy); err != nil {
			return nil, err
		}
		builder.OrderBy("events.source #> "+builder.PathArg(options.SortBy), options.Ascending())
	} else {
		builder.OrderBy("events.timestamp", options.Ascending())
	}
	builder.Limit(options.SizeOrDefault())

	query, args, err := builder.Build()
	if err != nil {
		return nil, err
	}
	rows, err := d.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []core.Event{}
	for rows.Next() {
		row, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, core.Event{ID: row.id, Source: row.source})
	}
	return events, core.NewBackendError(rows.Err(), "failed to read events")
}

func (d *PgDatastore) GroupBy(ctx context.Context, options core.GroupByOptions) ([]core.GroupByResult, error) {
	options.ClampTimeRange(d.now())
	if err := validateField(options.Field); err != nil {
		return nil, err
	}

	builder := EventQueryBuilder{}
	path := builder.PathArg(options.Field)
	builder.Where(fmt.Sprintf("events.source #> %s IS NOT NULL", path))
	if options.EventType != "" {
		builder.EventType(options.EventType)
	}
	builder.Sensor(options.Sensor)
	if !options.MinTimestamp.IsZero() {
		builder.TimestampGte(options.MinTimestamp)
	}
	if !options.MaxTimestamp.IsZero() {
		builder.TimestampLte(options.MaxTimestamp)
	}
	builder.ApplyQueryString(options.Query)
	if err := builder.Err(); err != nil {
		return nil, err
	}

	order := "DESC"
	if options.Ascending() {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT events.source #> %s AS group_key, count(*) AS group_count
FROM events
%s
GROUP BY group_key
ORDER BY group_count %s
LIMIT %s`, path, builder.BuildWhere(), order, builder.Arg(options.SizeOrDefault()))

	rows, err := d.query(ctx, query, builder.Args())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []core.GroupByResult{}
	for rows.Next() {
		var rawKey []byte
		var count uint64
		if err := rows.Scan(&rawKey, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan group by row")
		}
		var key interface{}
		if err := util.DecodeJson(rawKey, &key); err != nil {
			key = string(rawKey)
		}
		results = append(results, core.GroupByResult{Key: key, Count: count})
	}
	return results, core.NewBackendError(rows.Err(), "failed to read group by results")
}

// bucketExpr returns an expression for the start of the bucket, in
// milliseconds, of the event timestamp.
func bucketExpr(b *EventQueryBuilder, interval time.Duration) string {
	ms := b.Arg(interval.Nanoseconds() / int64(time.Millisecond))
	return fmt.Sprintf("(floor(extract(epoch from events.timestamp) * 1000 / %s) * %s)::bigint", ms, ms)
}

func (d *PgDatastore) HistogramTime(ctx context.Context, options core.HistogramOptions) ([]core.HistogramBucket, error) {
	start, end, interval := options.Resolve(d.now())

	builder := EventQueryBuilder{}
	bucket := bucketExpr(&builder, interval)
	if options.EventType != "" {
		builder.EventType(options.EventType)
	}
	builder.Sensor(options.Sensor)
	builder.TimestampGte(start)
	builder.TimestampLt(end)
	builder.ApplyQueryString(options.Query)
	if err := builder.Err(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s AS bucket, count(*)
FROM events
%s
GROUP BY bucket`, bucket, builder.BuildWhere())

	rows, err := d.query(ctx, query, builder.Args())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[int64]uint64{}
	for rows.Next() {
		var bucket int64
		var count uint64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan histogram row")
		}
		counts[bucket] = count
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewBackendError(err, "failed to read histogram")
	}
	return core.ZeroFill(start, end, interval, counts), nil
}

func (d *PgDatastore) statsCollector(ctx context.Context, options stats.AggOptions) (*stats.Collector, error) {
	if err := options.Validate(d.now()); err != nil {
		return nil, errors.WithStack(core.NewBadRequestError("%v", err))
	}
	interval := options.Interval()

	builder := EventQueryBuilder{}
	bucket := bucketExpr(&builder, interval)
	path := builder.PathArg(options.FieldPath())
	builder.EventType("stats")
	builder.Sensor(options.Sensor)
	builder.TimestampGte(options.StartTime)
	builder.TimestampLte(options.EndTime)

	query := fmt.Sprintf(`SELECT
  %s AS bucket,
  coalesce(events.source ->> 'host', '') AS host,
  max(CASE WHEN jsonb_typeof(events.source #> %s) = 'number'
    THEN (events.source #>> %s)::numeric END)::bigint
FROM events
%s
GROUP BY bucket, host`, bucket, path, path, builder.BuildWhere())

	rows, err := d.query(ctx, query, builder.Args())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	collector := stats.NewCollector(interval)
	for rows.Next() {
		var bucket int64
		var host string
		var value sql.NullInt64
		if err := rows.Scan(&bucket, &host, &value); err != nil {
			return nil, errors.Wrap(err, "failed to scan stats row")
		}
		if !value.Valid {
			continue
		}
		collector.Add(core.SensorName(host),
			time.Unix(0, bucket*int64(time.Millisecond)).UTC(), value.Int64)
	}
	return collector, core.NewBackendError(rows.Err(), "failed to read stats")
}

func (d *PgDatastore) StatsAgg(ctx context.Context, options stats.AggOptions) ([]stats.Point, error) {
	collector, err := d.statsCollector(ctx, options)
	if err != nil {
		return nil, err
	}
	return collector.Points(), nil
}

func (d *PgDatastore) StatsAggBySensor(ctx context.Context, options stats.AggOptions) (map[string][]stats.Point, error) {
	collector, err := d.statsCollector(ctx, options)
	if err != nil {
		return nil, err
	}
	return collector.BySensor(), nil
}

func (d *PgDatastore) sources(ctx context.Context, builder *EventQueryBuilder) ([]eve.EveEvent, error) {
	query, args, err := builder.Build()
	if err != nil {
		return nil, err
	}
	rows, err := d.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []eve.EveEvent{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		event, err := eve.NewEveEventFromBytes(raw)
		if err != nil {
			log.Warning("Failed to decode event: %v", err)
			continue
		}
		events = append(events, event)
	}
	return events, core.NewBackendError(rows.Err(), "failed to read events")
}

func (d *PgDatastore) Dhcp(ctx context.Context, options core.DhcpOptions) ([]eve.EveEvent, error) {
	builder := &EventQueryBuilder{}
	builder.Select("events.source")
	builder.EventType("dhcp")
	builder.Where("events.source -> 'dhcp' ->> 'dhcp_type' = " + builder.Arg(options.DhcpType))
	builder.Sensor(options.Sensor)
	if !options.Earliest.IsZero() {
		builder.TimestampGte(options.Earliest)
	}
	builder.OrderBy("events.timestamp", false)

	events, err := d.sources(ctx, builder)
	if err != nil {
		return nil, err
	}
	return core.DhcpLatestPerMac(events), nil
}

func (d *PgDatastore) GetSensors(ctx context.Context) ([]string, error) {
	rows, err := d.query(ctx, `SELECT DISTINCT events.source ->> 'host'
FROM events
WHERE events.timestamp >= $1`, []interface{}{d.now().Add(-24 * time.Hour)})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sensors := []string{}
	for rows.Next() {
		var host sql.NullString
		if err := rows.Scan(&host); err != nil {
			return nil, errors.Wrap(err, "failed to scan sensor")
		}
		sensors = append(sensors, core.SensorName(host.String))
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewBackendError(err, "failed to read sensors")
	}
	return core.SortSensors(core.UniqueStrings(sensors)), nil
}

func (d *PgDatastore) DnsReverseLookup(ctx context.Context, options core.DnsReverseLookupOptions) ([]string, error) {
	from, to := options.Range(d.now())

	builder := &EventQueryBuilder{}
	builder.Select("events.source")
	builder.EventType("dns")
	builder.Where("events.source -> 'dns' ->> 'type' IN ('answer', 'response')")
	src := builder.Arg(options.SrcIp)
	dest := builder.Arg(options.DestIp)
	builder.Where(fmt.Sprintf(`(events.source ->> 'src_ip' IN (%s, %s)
  OR events.source ->> 'dest_ip' IN (%s, %s))`, src, dest, src, dest))
	builder.Where(fmt.Sprintf("events.source::text LIKE %s", builder.Arg(likeContains(options.SrcIp))))
	builder.Sensor(options.Sensor)
	builder.TimestampGte(from)
	builder.TimestampLte(to)
	builder.OrderBy("events.timestamp", false)

	events, err := d.sources(ctx, builder)
	if err != nil {
		return nil, err
	}
	rrnames := []string{}
	for _, event := range events {
		rrnames = append(rrnames, eve.DnsRrnamesForRdata(event, options.SrcIp)...)
	}
	return core.UniqueStrings(rrnames), nil
}
