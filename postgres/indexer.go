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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/satori/go.uuid"
)

const partitionLayout = "20060102"

// PartitionName returns the name of the partition holding events for the
// day of timestamp.
func PartitionName(timestamp time.Time) string {
	return "events_" + timestamp.UTC().Format(partitionLayout)
}

type pendingEvent struct {
	id        string
	timestamp time.Time
	archived  bool
	escalated bool
	source    []byte
}

// PgEventIndexer is the event sink for PostgreSQL. Daily partitions are
// created as events for a new day are seen.
type PgEventIndexer struct {
	pg     *PgDB
	tables map[string]bool
	queue  []pendingEvent
}

func NewPgEventIndexer(pg *PgDB) *PgEventIndexer {
	return &PgEventIndexer{
		pg:     pg,
		tables: make(map[string]bool),
	}
}

func (i *PgEventIndexer) createPartition(tx *sql.Tx, timestamp time.Time) error {
	name := PartitionName(timestamp)
	if i.tables[name] {
		return nil
	}
	day := timestamp.UTC().Truncate(24 * time.Hour)
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s PARTITION OF events
FOR VALUES FROM ('%s') TO ('%s')`,
		pq.QuoteIdentifier(name),
		day.Format(time.RFC3339),
		day.Add(24*time.Hour).Format(time.RFC3339))
	if _, err := tx.Exec(query); err != nil {
		return errors.Wrapf(err, "failed to create partition %s", name)
	}
	log.Debug("Created partition %s", name)
	i.tables[name] = true
	return nil
}

func (i *PgEventIndexer) Submit(event eve.EveEvent) error {
	timestamp := event.Timestamp()
	if timestamp.IsZero() {
		return errors.New("event has no timestamp")
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}

	i.queue = append(i.queue, pendingEvent{
		id:        uuid.NewV1().String(),
		timestamp: timestamp,
		archived:  event.HasTag(eve.TagArchived),
		escalated: event.HasTag(eve.TagEscalated),
		source:    encoded,
	})
	return nil
}

func (i *PgEventIndexer) Commit() (uint64, error) {
	queue := i.queue
	i.queue = nil

	if len(queue) == 0 {
		return 0, nil
	}

	tx, err := i.pg.Begin()
	if err != nil {
		return 0, errors.Wrap(err, "failed to start transaction")
	}

	// Partitions created in a rolled back transaction don't exist.
	created := map[string]bool{}
	rollback := func() {
		tx.Rollback()
		for name := range created {
			delete(i.tables, name)
		}
	}

	for _, event := range queue {
		name := PartitionName(event.timestamp)
		if i.tables[name] {
			continue
		}
		if err := i.createPartition(tx, event.timestamp); err != nil {
			rollback()
			return 0, err
		}
		created[name] = true
	}

	insert, err := tx.Prepare(`INSERT INTO events (id, timestamp, archived, escalated, source)
VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		rollback()
		return 0, errors.Wrap(err, "failed to prepare event insert")
	}
	defer insert.Close()

	for _, event := range queue {
		if _, err := insert.Exec(event.id, event.timestamp, event.archived,
			event.escalated, string(event.source)); err != nil {
			rollback()
			return 0, errors.Wrap(err, "failed to insert event")
		}
	}

	if err := tx.Commit(); err != nil {
		rollback()
		return 0, errors.Wrap(err, "failed to commit events")
	}
	log.Debug("Committed %d events", len(queue))

	return uint64(len(queue)), nil
}
