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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/querystring"
)

// SqlBuilder assembles a SELECT against the events table. Predicates are
// written with ? placeholders and their arguments are kept in order.
type SqlBuilder struct {
	selects []string
	from    []string
	where   []string
	args    []interface{}
	orderBy string
	limit   int64
	err     error
}

func (b *SqlBuilder) Select(expr string) *SqlBuilder {
	b.selects = append(b.selects, expr)
	return b
}

func (b *SqlBuilder) From(table string) *SqlBuilder {
	for _, existing := range b.from {
		if existing == table {
			return b
		}
	}
	b.from = append(b.from, table)
	return b
}

func (b *SqlBuilder) Where(where string, args ...interface{}) *SqlBuilder {
	b.where = append(b.where, where)
	b.args = append(b.args, args...)
	return b
}

func (b *SqlBuilder) WhereEquals(field string, value interface{}) *SqlBuilder {
	return b.Where(fmt.Sprintf("%s = ?", field), value)
}

func (b *SqlBuilder) TimestampGte(ts time.Time) *SqlBuilder {
	return b.Where("events.timestamp >= ?", ts.UnixNano())
}

func (b *SqlBuilder) TimestampLte(ts time.Time) *SqlBuilder {
	return b.Where("events.timestamp <= ?", ts.UnixNano())
}

func (b *SqlBuilder) TimestampGt(ts time.Time) *SqlBuilder {
	return b.Where("events.timestamp > ?", ts.UnixNano())
}

func (b *SqlBuilder) TimestampLt(ts time.Time) *SqlBuilder {
	return b.Where("events.timestamp < ?", ts.UnixNano())
}

func (b *SqlBuilder) OrderBy(expr string, ascending bool) *SqlBuilder {
	if ascending {
		b.orderBy = expr + " ASC"
	} else {
		b.orderBy = expr + " DESC"
	}
	return b
}

func (b *SqlBuilder) Limit(limit int64) *SqlBuilder {
	b.limit = limit
	return b
}

func (b *SqlBuilder) EventType(eventType string) *SqlBuilder {
	return b.WhereEquals("json_extract(events.source, '$.event_type')", eventType)
}

// Sensor limits the results to a sensor, core.NoName selecting events
// without a host.
func (b *SqlBuilder) Sensor(sensor string) *SqlBuilder {
	if sensor == "" {
		return b
	}
	if sensor == core.NoName {
		return b.Where("json_extract(events.source, '$.host') IS NULL")
	}
	return b.WhereEquals("json_extract(events.source, '$.host')", sensor)
}

// Tags applies tag filters, a "-" prefix meaning the tag must not be
// present. The archived and escalated tags map onto their columns.
func (b *SqlBuilder) Tags(tags []string) *SqlBuilder {
	mustHave, mustNotHave := core.SplitTags(tags)
	for _, tag := range mustHave {
		b.tag(tag, false)
	}
	for _, tag := range mustNotHave {
		b.tag(tag, true)
	}
	return b
}

func (b *SqlBuilder) tag(tag string, negated bool) {
	value := 1
	if negated {
		value = 0
	}
	switch tag {
	case "evebox.archived", "archived":
		b.WhereEquals("events.archived", value)
	case "evebox.escalated", "escalated":
		b.WhereEquals("events.escalated", value)
	default:
		where := "EXISTS (SELECT 1 FROM json_each(events.source, '$.tags') WHERE json_each.value = ?)"
		if negated {
			where = "NOT " + where
		}
		b.Where(where, tag)
	}
}

// ApplyQueryString adds the predicates for the parsed query string.
func (b *SqlBuilder) ApplyQueryString(elements []querystring.Element) *SqlBuilder {
	for _, element := range elements {
		where, args, err := elementPredicate(element)
		if err != nil {
			if b.err == nil {
				b.err = err
			}
			continue
		}
		if where == "" {
			continue
		}
		if element.Negated {
			where = fmt.Sprintf("NOT (%s)", where)
		}
		b.Where(where, args...)
	}
	return b
}

func elementPredicate(element querystring.Element) (string, []interface{}, error) {
	switch element.Type {
	case querystring.String:
		return "events.rowid IN (SELECT rowid FROM events_fts WHERE events_fts MATCH ?)",
			[]interface{}{ftsPhrase(element.Value)}, nil
	case querystring.KeyValue:
		path, err := jsonPath(element.Key)
		if err != nil {
			return "", nil, err
		}
		if number, err := strconv.ParseInt(element.Value, 10, 64); err == nil {
			// Only numbers match, "10.0.0.1" and "10abc" are not 10.
			return "(json_type(events.source, ?) IN ('integer', 'real') AND json_extract(events.source, ?) = ?)",
				[]interface{}{path, path, number}, nil
		}
		return `json_extract(events.source, ?) LIKE ? ESCAPE '\'`,
			[]interface{}{path, likeContains(element.Value)}, nil
	case querystring.Ip:
		return "(json_extract(events.source, '$.src_ip') = ? OR json_extract(events.source, '$.dest_ip') = ?)",
			[]interface{}{element.Value, element.Value}, nil
	case querystring.From, querystring.EarliestTimestamp:
		return "events.timestamp >= ?", []interface{}{element.Time.UnixNano()}, nil
	case querystring.To, querystring.LatestTimestamp:
		return "events.timestamp <= ?", []interface{}{element.Time.UnixNano()}, nil
	case querystring.After:
		return "events.timestamp > ?", []interface{}{element.Time.UnixNano()}, nil
	case querystring.Before:
		return "events.timestamp < ?", []interface{}{element.Time.UnixNano()}, nil
	}
	return "", nil, nil
}

// Build returns the query and its arguments, or the first error hit while
// translating the query string.
func (b *SqlBuilder) Build() (string, []interface{}, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	sql := "SELECT " + strings.Join(b.selects, ", ")
	sql += b.BuildFrom()
	sql += b.BuildWhere()
	if b.orderBy != "" {
		sql += " ORDER BY " + b.orderBy
	}
	if b.limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", b.limit)
	}
	return sql, b.args, nil
}

func (b *SqlBuilder) BuildFrom() string {
	if len(b.from) == 0 {
		return " FROM events"
	}
	return " FROM " + strings.Join(b.from, ", ")
}

func (b *SqlBuilder) BuildWhere() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

func (b *SqlBuilder) Args() []interface{} {
	return b.args
}

func (b *SqlBuilder) Err() error {
	return b.err
}

// jsonPath converts a dotted key into an SQLite JSON path, quoting
// elements that are not plain identifiers.
func jsonPath(key string) (string, error) {
	if key == "" {
		return "", core.NewBadRequestError("empty field name")
	}
	path := "$"
	for _, part := range strings.Split(key, ".") {
		if part == "" {
			return "", core.NewBadRequestError("invalid field name: %s", key)
		}
		if strings.ContainsAny(part, "\"\\'") {
			return "", core.NewBadRequestError("invalid field name: %s", key)
		}
		if isIdentifier(part) {
			path += "." + part
		} else {
			path += ".\"" + part + "\""
		}
	}
	return path, nil
}

func isIdentifier(s string) bool {
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// likeContains returns a LIKE pattern matching value anywhere, escaping
// the LIKE wildcards with a backslash.
func likeContains(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(value) + "%"
}

// ftsPhrase quotes value as an FTS phrase. FTS has no escape for a
// double quote inside a phrase, they only separate tokens so are replaced
// by spaces.
func ftsPhrase(value string) string {
	return `"` + strings.Replace(value, `"`, " ", -1) + `"`
}
