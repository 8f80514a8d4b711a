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
	"time"

	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/retention"
	"github.com/pkg/errors"
)

// Number of events deleted per transaction.
var LIMIT int64 = 1000

// SqlitePurger deletes events older than the retention period. SQLite
// has no time based units to drop so rows are deleted in batches,
// escalated events are kept.
type SqlitePurger struct {
	db  *SqliteService
	now func() time.Time
}

func NewSqlitePurger(db *SqliteService) *SqlitePurger {
	return &SqlitePurger{
		db:  db,
		now: time.Now,
	}
}

func (p *SqlitePurger) Sweep(ctx context.Context, days int, force bool) (*retention.Result, error) {
	then := retention.Horizon(p.now(), days)

	if !force {
		var count int64
		err := p.db.QueryRowContext(ctx,
			"SELECT count(*) FROM events WHERE timestamp < ? AND escalated = 0",
			then.UnixNano()).Scan(&count)
		if err != nil {
			return nil, errors.Wrap(err, "failed to count expired events")
		}
		log.Info("Would delete %d events prior to %v", count, then)
		return &retention.Result{Count: count}, nil
	}

	log.Info("Deleting events prior to %v", then)
	total := int64(0)
	for {
		count, err := p.purge(ctx, then)
		if err != nil {
			return nil, err
		}
		total += count
		if count < LIMIT {
			break
		}
	}
	return &retention.Result{Count: total, Deleted: true}, nil
}

func (p *SqlitePurger) purge(ctx context.Context, then time.Time) (int64, error) {
	tx, err := p.db.GetTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	start := time.Now()

	// Drop the table, it likely exists from the last run. We don't drop
	// after we purge due to lock table errors when we try.
	if _, err := tx.Exec("DROP TABLE IF EXISTS temp_ids"); err != nil {
		return 0, errors.Wrap(err, "failed to drop temp_ids")
	}

	q := `CREATE TEMP TABLE temp_ids AS
SELECT rowid FROM events WHERE timestamp < ? AND escalated = 0 LIMIT ?`
	if _, err := tx.Exec(q, then.UnixNano(), LIMIT); err != nil {
		return 0, errors.Wrap(err, "failed to select expired events")
	}

	if _, err := tx.Exec("DELETE FROM events_fts WHERE rowid IN (SELECT rowid FROM temp_ids)"); err != nil {
		return 0, errors.Wrap(err, "failed to delete full text")
	}

	r, err := tx.Exec("DELETE FROM events WHERE rowid IN (SELECT rowid FROM temp_ids)")
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete events")
	}
	count, err := r.RowsAffected()
	if err != nil {
		log.Warning("Failed to get number of events purged")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit purge")
	}

	log.Info("Purged %d events in %v", count, time.Since(start))
	return count, nil
}
