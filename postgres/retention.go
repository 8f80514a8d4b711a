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

	"github.com/jasonish/evecore/retention"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// PartitionPattern matches the daily event partitions.
var PartitionPattern = retention.NewUnitPattern("events_", partitionLayout)

// PartitionStore lists and drops the daily partitions of the events
// table.
type PartitionStore struct {
	pg *PgDB
}

func NewPartitionStore(pg *PgDB) *PartitionStore {
	return &PartitionStore{pg: pg}
}

func (s *PartitionStore) ListUnits(ctx context.Context) ([]string, error) {
	rows, err := s.pg.QueryContext(ctx, `SELECT tablename FROM pg_tables
WHERE schemaname = current_schema() AND tablename LIKE 'events\_%'`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list partitions")
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan partition name")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PartitionStore) DeleteUnit(ctx context.Context, name string) error {
	if _, ok := PartitionPattern.Date(name); !ok {
		return errors.Errorf("not an event partition: %s", name)
	}
	_, err := s.pg.ExecContext(ctx, "DROP TABLE IF EXISTS "+pq.QuoteIdentifier(name))
	return errors.Wrapf(err, "failed to drop partition %s", name)
}
