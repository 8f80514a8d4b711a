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
	"encoding/json"

	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/pkg/errors"
)

type pendingEvent struct {
	timestamp int64
	archived  bool
	escalated bool
	source    []byte
	fulltext  string
}

// SqliteIndexer is the event sink for SQLite. Events are queued by Submit
// and written in a single transaction by Commit, along with their full
// text projection.
type SqliteIndexer struct {
	db    *SqliteService
	queue []pendingEvent
}

func NewSqliteIndexer(db *SqliteService) *SqliteIndexer {
	return &SqliteIndexer{
		db: db,
	}
}

func (i *SqliteIndexer) Submit(event eve.EveEvent) error {
	timestamp := event.Timestamp()
	if timestamp.IsZero() {
		return errors.New("event has no timestamp")
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}

	i.queue = append(i.queue, pendingEvent{
		timestamp: timestamp.UnixNano(),
		archived:  event.HasTag(eve.TagArchived),
		escalated: event.HasTag(eve.TagEscalated),
		source:    encoded,
		fulltext:  eve.FullText(event),
	})

	return nil
}

func (i *SqliteIndexer) Commit() (uint64, error) {
	queue := i.queue
	i.queue = nil

	if len(queue) == 0 {
		return 0, nil
	}

	tx, err := i.db.Begin()
	if err != nil {
		return 0, errors.Wrap(err, "failed to start transaction")
	}

	insertEvent, err := tx.Prepare(`INSERT INTO events (timestamp, archived, escalated, source)
VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, errors.Wrap(err, "failed to prepare event insert")
	}
	defer insertEvent.Close()

	insertFts, err := tx.Prepare("INSERT INTO events_fts (rowid, content) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return 0, errors.Wrap(err, "failed to prepare full text insert")
	}
	defer insertFts.Close()

	for _, event := range queue {
		result, err := insertEvent.Exec(event.timestamp, event.archived,
			event.escalated, string(event.source))
		if err != nil {
			tx.Rollback()
			return 0, errors.Wrap(err, "failed to insert event")
		}
		rowid, err := result.LastInsertId()
		if err != nil {
			tx.Rollback()
			return 0, errors.Wrap(err, "failed to get event rowid")
		}
		if _, err := insertFts.Exec(rowid, event.fulltext); err != nil {
			tx.Rollback()
			return 0, errors.Wrap(err, "failed to insert full text")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit events")
	}
	log.Debug("Committed %d events", len(queue))

	return uint64(len(queue)), nil
}
