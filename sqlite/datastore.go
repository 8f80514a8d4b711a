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

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jasonish/evecore/alerts"
	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/metrics"
	"github.com/jasonish/evecore/querystring"
	"github.com/jasonish/evecore/stats"
	"github.com/jasonish/evecore/util"
	"github.com/pkg/errors"
)

const eventColumns = "events.rowid, events.timestamp, events.archived, events.escalated, events.source, events.history"

type DataStore struct {
	core.UnimplementedDatastore
	db *SqliteService

	// For tests.
	now func() time.Time
}

func NewDataStore(db *SqliteService) *DataStore {
	return &DataStore{
		db:  db,
		now: time.Now,
	}
}

func (d *DataStore) GetEveEventSink() core.EveEventSink {
	return NewSqliteIndexer(d.db)
}

// Retention returns a sweeper deleting events older than the retention
// period.
func (d *DataStore) Retention() *SqlitePurger {
	return NewSqlitePurger(d.db)
}

type eventRow struct {
	id        int64
	timestamp int64
	archived  bool
	escalated bool
	source    eve.EveEvent
}

// scanEvent reads a row selected with eventColumns, returning the event
// with its stored state materialized into the source.
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
		return nil, errors.Wrapf(err, "failed to decode event %d", row.id)
	}
	var history []interface{}
	if len(rawHistory) > 0 {
		if err := util.DecodeJson(rawHistory, &history); err != nil {
			log.Warning("Failed to decode history for event %d: %v", row.id, err)
		}
	}
	core.MaterializeEvent(source, row.archived, row.escalated, history)
	row.source = source
	return &row, nil
}

func (r *eventRow) event() core.Event {
	return core.Event{
		ID:     strconv.FormatInt(r.id, 10),
		Source: r.source,
	}
}

func (d *DataStore) query(ctx context.Context, query string, args []interface{}) (*sql.Rows, error) {
	if log.IsDebug() {
		log.Debug("Query: %s; Args: %v", query, args)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewBackendError(err, "query failed")
	}
	return rows, nil
}

func (d *DataStore) GetEventById(ctx context.Context, id string) (*core.Event, error) {
	rowid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, nil
	}

	builder := SqlBuilder{}
	builder.Select(eventColumns)
	builder.WhereEquals("events.rowid", rowid)
	query, args, err := builder.Build()
	if err != nil {
		return nil, err
	}

	rows, err := d.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if rows.Next() {
		row, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		event := row.event()
		return &event, nil
	}

	return nil, core.NewBackendError(rows.Err(), "failed to read event")
}

// updateById applies an update to a single event, returning
// ErrEventNotFound if no row was changed.
func (d *DataStore) updateById(ctx context.Context, set string, id string, entry core.HistoryEntry) error {
	rowid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return core.NewEventNotFoundError(id)
	}
	query := fmt.Sprintf(`UPDATE events
SET %s history = json_insert(history, '$[#]', json(?))
WHERE rowid = ?`, set)
	result, err := d.db.ExecContext(ctx, query, entry.Json(), rowid)
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

func (d *DataStore) ArchiveEvent(ctx context.Context, id string, username string) error {
	return d.updateById(ctx, "archived = 1,", id, core.NewArchivedHistoryEntry(username))
}

func (d *DataStore) EscalateEvent(ctx context.Context, id string, username string) error {
	return d.updateById(ctx, "escalated = 1,", id, core.NewEscalatedHistoryEntry(username))
}

func (d *DataStore) DeEscalateEvent(ctx context.Context, id string, username string) error {
	return d.updateById(ctx, "escalated = 0,", id, core.NewDeescalatedHistoryEntry(username))
}

func (d *DataStore) CommentOnEvent(ctx context.Context, id string, comment string, username string) error {
	return d.updateById(ctx, "", id, core.NewCommentHistoryEntry(comment, username))
}

// updateAlertGroup applies an update to all the alerts in a group. The
// extra where clause keeps a state change from being applied to events
// already in that state.
func (d *DataStore) updateAlertGroup(ctx context.Context, p core.AlertGroupSpec, set string, where string, entry core.HistoryEntry) error {
	builder := SqlBuilder{}
	builder.EventType("alert")
	builder.Where("CAST(json_extract(events.source, '$.alert.signature_id') AS INTEGER) = ?", int64(p.SignatureID))
	builder.Where("IFNULL(json_extract(events.source, '$.src_ip'), '') = ?", p.SrcIP)
	builder.Where("IFNULL(json_extract(events.source, '$.dest_ip'), '') = ?", p.DestIP)
	builder.Sensor(p.Sensor)
	builder.TimestampGte(p.MinTimestamp)
	builder.TimestampLte(p.MaxTimestamp)
	if where != "" {
		builder.Where(where)
	}

	query := fmt.Sprintf(`UPDATE events
SET %s history = json_insert(history, '$[#]', json(?))
%s`, set, builder.BuildWhere())
	args := append([]interface{}{entry.Json()}, builder.Args()...)

	start := time.Now()
	result, err := d.db.ExecContext(ctx, query, args...)
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

func (d *DataStore) ArchiveAlertGroup(ctx context.Context, p core.AlertGroupSpec, username string) error {
	return d.updateAlertGroup(ctx, p, "archived = 1,", "events.archived = 0",
		core.NewArchivedHistoryEntry(username))
}

func (d *DataStore) EscalateAlertGroup(ctx context.Context, p core.AlertGroupSpec, username string) error {
	return d.updateAlertGroup(ctx, p, "escalated = 1,", "events.escalated = 0",
		core.NewEscalatedHistoryEntry(username))
}

func (d *DataStore) DeEscalateAlertGroup(ctx context.Context, p core.AlertGroupSpec, username string) error {
	return d.updateAlertGroup(ctx, p, "escalated = 0,", "events.escalated = 1",
		core.NewDeescalatedHistoryEntry(username))
}

func (d *DataStore) CommentOnAlertGroup(ctx context.Context, p core.AlertGroupSpec, comment string, username string) error {
	return d.updateAlertGroup(ctx, p, "", "", core.NewCommentHistoryEntry(comment, username))
}

func (d *DataStore) Alerts(ctx context.Context, options core.AlertQueryOptions) (*core.AlertsResult, error) {
	builder := SqlBuilder{}
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

	timer := metrics.NewAlertQueryTimer("sqlite")
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
			ID:        strconv.FormatInt(row.id, 10),
			Timestamp: time.Unix(0, row.timestamp).UTC(),
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

func (d *DataStore) Events(ctx context.Context, options core.EventQueryOptions) ([]core.Event, error) {
	builder := SqlBuilder{}
	builder.Select(eventColumns)

	if options.EventType != "" {
		builder.EventType(options.EventType)
	} else {
		builder.Where("json_extract(events.source, '$.event_type') != 'stats'")
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
		path, err := jsonPath(options.SortBy)
		if err != nil {
			return nil, err
		}
		builder.OrderBy(fmt.Sprintf("json_extract(events.source, '%s')", path),
			options.Ascending())
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
		events = append(events, row.event())
	}

	return events, core.NewBackendError(rows.Err(), "failed to read events")
}

func (d *DataStore) GroupBy(ctx context.Context, options core.GroupByOptions) ([]core.GroupByResult, error) {
	options.ClampTimeRange(d.now())

	path, err := jsonPath(options.Field)
	if err != nil {
		return nil, err
	}

	builder := SqlBuilder{}
	builder.Where("json_extract(events.source, ?) IS NOT NULL", path)
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

	query := fmt.Sprintf(`SELECT json_extract(events.source, ?) AS group_key, count(*) AS group_count
FROM events
%s
GROUP BY group_key
ORDER BY group_count %s, group_key
LIMIT ?`, builder.BuildWhere(), order)
	args := append([]interface{}{path}, builder.Args()...)
	args = append(args, options.SizeOrDefault())

	rows, err := d.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []core.GroupByResult{}
	for rows.Next() {
		var key interface{}
		var count uint64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan group by row")
		}
		if b, ok := key.([]byte); ok {
			key = string(b)
		}
		results = append(results, core.GroupByResult{
			Key:   key,
			Count: count,
		})
	}

	return results, core.NewBackendError(rows.Err(), "failed to read group by results")
}

func (d *DataStore) HistogramTime(ctx context.Context, options core.HistogramOptions) ([]core.HistogramBucket, error) {
	start, end, interval := options.Resolve(d.now())

	builder := SqlBuilder{}
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

	query := fmt.Sprintf(`SELECT (events.timestamp / ?) * ? AS bucket, count(*)
FROM events
%s
GROUP BY bucket`, builder.BuildWhere())
	args := append([]interface{}{interval.Nanoseconds(), interval.Nanoseconds()},
		builder.Args()...)

	rows, err := d.query(ctx, query, args)
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
		counts[bucket/int64(time.Millisecond)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewBackendError(err, "failed to read histogram")
	}

	return core.ZeroFill(start, end, interval, counts), nil
}

func (d *DataStore) statsCollector(ctx context.Context, options stats.AggOptions) (*stats.Collector, error) {
	if err := options.Validate(d.now()); err != nil {
		return nil, errors.WithStack(core.NewBadRequestError("%v", err))
	}
	path, err := jsonPath(options.FieldPath())
	if err != nil {
		return nil, err
	}
	interval := options.Interval()

	builder := SqlBuilder{}
	builder.EventType("stats")
	builder.Sensor(options.Sensor)
	builder.TimestampGte(options.StartTime)
	builder.TimestampLte(options.EndTime)

	query := fmt.Sprintf(`SELECT
  (events.timestamp / ?) * ? AS bucket,
  IFNULL(json_extract(events.source, '$.host'), '') AS host,
  MAX(CAST(json_extract(events.source, ?) AS INTEGER))
FROM events
%s
GROUP BY bucket, host`, builder.BuildWhere())
	args := append([]interface{}{interval.Nanoseconds(), interval.Nanoseconds(), path},
		builder.Args()...)

	rows, err := d.query(ctx, query, args)
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
		collector.Add(core.SensorName(host), time.Unix(0, bucket).UTC(), value.Int64)
	}

	return collector, core.NewBackendError(rows.Err(), "failed to read stats")
}

func (d *DataStore) StatsAgg(ctx context.Context, options stats.AggOptions) ([]stats.Point, error) {
	collector, err := d.statsCollector(ctx, options)
	if err != nil {
		return nil, err
	}
	return collector.Points(), nil
}

func (d *DataStore) StatsAggBySensor(ctx context.Context, options stats.AggOptions) (map[string][]stats.Point, error) {
	collector, err := d.statsCollector(ctx, options)
	if err != nil {
		return nil, err
	}
	return collector.BySensor(), nil
}

func (d *DataStore) sources(ctx context.Context, builder *SqlBuilder) ([]eve.EveEvent, error) {
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

func (d *DataStore) Dhcp(ctx context.Context, options core.DhcpOptions) ([]eve.EveEvent, error) {
	builder := &SqlBuilder{}
	builder.Select("events.source")
	builder.EventType("dhcp")
	builder.WhereEquals("json_extract(events.source, '$.dhcp.dhcp_type')", options.DhcpType)
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

func (d *DataStore) GetSensors(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT json_extract(events.source, '$.host')
FROM events
WHERE events.timestamp >= ?`
	rows, err := d.query(ctx, query, []interface{}{d.now().Add(-24 * time.Hour).UnixNano()})
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

func (d *DataStore) DnsReverseLookup(ctx context.Context, options core.DnsReverseLookupOptions) ([]string, error) {
	from, to := options.Range(d.now())

	builder := &SqlBuilder{}
	builder.Select("events.source")
	builder.EventType("dns")
	builder.Where("json_extract(events.source, '$.dns.type') IN ('answer', 'response')")
	builder.Where(`(json_extract(events.source, '$.src_ip') IN (?, ?)
  OR json_extract(events.source, '$.dest_ip') IN (?, ?))`,
		options.SrcIp, options.DestIp, options.SrcIp, options.DestIp)
	builder.Where(`events.source LIKE ? ESCAPE '\'`, likeContains(options.SrcIp))
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
