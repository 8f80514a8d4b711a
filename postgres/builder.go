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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/querystring"
	"github.com/lib/pq"
)

// EventQueryBuilder assembles queries against the events table. Each
// argument is given a $n placeholder as it is added.
type EventQueryBuilder struct {
	selects []string
	where   []string
	args    []interface{}
	orderBy string
	limit   int64
	err     error
}

// Arg adds an argument and returns its placeholder.
func (b *EventQueryBuilder) Arg(value interface{}) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

// PathArg adds a dotted field name as a text[] path argument for the
// #> and #>> operators.
func (b *EventQueryBuilder) PathArg(field string) string {
	return b.Arg(pq.Array(jsonPath(field))) + "::text[]"
}

func (b *EventQueryBuilder) Select(expr string) *EventQueryBuilder {
	b.selects = append(b.selects, expr)
	return b
}

func (b *EventQueryBuilder) Where(where string) *EventQueryBuilder {
	b.where = append(b.where, where)
	return b
}

func (b *EventQueryBuilder) EventType(eventType string) *EventQueryBuilder {
	return b.Where("events.source ->> 'event_type' = " + b.Arg(eventType))
}

func (b *EventQueryBuilder) TimestampGte(ts time.Time) *EventQueryBuilder {
	return b.Where("events.timestamp >= " + b.Arg(ts))
}

func (b *EventQueryBuilder) TimestampLte(ts time.Time) *EventQueryBuilder {
	return b.Where("events.timestamp <= " + b.Arg(ts))
}

func (b *EventQueryBuilder) TimestampGt(ts time.Time) *EventQueryBuilder {
	return b.Where("events.timestamp > " + b.Arg(ts))
}

func (b *EventQueryBuilder) TimestampLt(ts time.Time) *EventQueryBuilder {
	return b.Where("events.timestamp < " + b.Arg(ts))
}

func (b *EventQueryBuilder) OrderBy(expr string, ascending bool) *EventQueryBuilder {
	if ascending {
		b.orderBy = expr + " ASC"
	} else {
		b.orderBy = expr + " DESC"
	}
	return b
}

func (b *EventQueryBuilder) Limit(limit int64) *EventQueryBuilder {
	b.limit = limit
	return b
}

func (b *EventQueryBuilder) Sensor(sensor string) *EventQueryBuilder {
	switch sensor {
	case "":
		return b
	case core.NoName:
		return b.Where("events.source ->> 'host' IS NULL")
	}
	return b.Where("events.source ->> 'host' = " + b.Arg(sensor))
}

func (b *EventQueryBuilder) Tags(tags []string) *EventQueryBuilder {
	mustHave, mustNotHave := core.SplitTags(tags)
	for _, tag := range mustHave {
		b.tag(tag, false)
	}
	for _, tag := range mustNotHave {
		b.tag(tag, true)
	}
	return b
}

func (b *EventQueryBuilder) tag(tag string, negated bool) {
	switch tag {
	case "evebox.archived", "archived":
		b.Where(fmt.Sprintf("events.archived = %t", !negated))
	case "evebox.escalated", "escalated":
		b.Where(fmt.Sprintf("events.escalated = %t", !negated))
	default:
		where := fmt.Sprintf("events.source -> 'tags' @> %s::jsonb",
			b.Arg(fmt.Sprintf("[%s]", strconv.Quote(tag))))
		if negated {
			where = "NOT " + where
		}
		b.Where(where)
	}
}

func (b *EventQueryBuilder) ApplyQueryString(elements []querystring.Element) *EventQueryBuilder {
	for _, element := range elements {
		where := b.elementPredicate(element)
		if where == "" {
			continue
		}
		if element.Negated {
			where = fmt.Sprintf("NOT (%s)", where)
		}
		b.Where(where)
	}
	return b
}

func (b *EventQueryBuilder) elementPredicate(element querystring.Element) string {
	switch element.Type {
	case querystring.String:
		return fmt.Sprintf("events.source::text ILIKE %s", b.Arg(likeContains(element.Value)))
	case querystring.KeyValue:
		if err := validateField(element.Key); err != nil {
			if b.err == nil {
				b.err = err
			}
			return ""
		}
		path := b.PathArg(element.Key)
		if number, err := strconv.ParseInt(element.Value, 10, 64); err == nil {
			// The cast must only see numbers, "10.0.0.1" would fail it.
			return fmt.Sprintf("(CASE WHEN jsonb_typeof(events.source #> %s) = 'number' THEN (events.source #>> %s)::numeric = %s ELSE false END)",
				path, path, b.Arg(number))
		}
		return fmt.Sprintf("events.source #>> %s ILIKE %s", path, b.Arg(likeContains(element.Value)))
	case querystring.Ip:
		arg := b.Arg(element.Value)
		return fmt.Sprintf("(events.source ->> 'src_ip' = %s OR events.source ->> 'dest_ip' = %s)", arg, arg)
	case querystring.From, querystring.EarliestTimestamp:
		return "events.timestamp >= " + b.Arg(element.Time)
	case querystring.To, querystring.LatestTimestamp:
		return "events.timestamp <= " + b.Arg(element.Time)
	case querystring.After:
		return "events.timestamp > " + b.Arg(element.Time)
	case querystring.Before:
		return "events.timestamp < " + b.Arg(element.Time)
	}
	return ""
}

func (b *EventQueryBuilder) BuildWhere() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

func (b *EventQueryBuilder) Build() (string, []interface{}, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	sql := "SELECT " + strings.Join(b.selects, ", ") + " FROM events" + b.BuildWhere()
	if b.orderBy != "" {
		sql += " ORDER BY " + b.orderBy
	}
	if b.limit > 0 {
		sql += " LIMIT " + b.Arg(b.limit)
	}
	return sql, b.args, nil
}

func (b *EventQueryBuilder) Args() []interface{} {
	return b.args
}

func (b *EventQueryBuilder) Err() error {
	return b.err
}

func jsonPath(field string) []string {
	return strings.Split(field, ".")
}

func validateField(field string) error {
	if field == "" {
		return core.NewBadRequestError("empty field name")
	}
	for _, part := range jsonPath(field) {
		if part == "" {
			return core.NewBadRequestError("invalid field name: %s", field)
		}
	}
	return nil
}

func likeContains(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(value) + "%"
}
