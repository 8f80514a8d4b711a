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
	"embed"
	"fmt"
	"path"

	"github.com/jasonish/evecore/log"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SqlMigrator struct {
	db        *sql.DB
	directory string
}

func NewSqlMigrator(db *PgDB, directory string) *SqlMigrator {
	return &SqlMigrator{
		db:        db.DB,
		directory: directory,
	}
}

func (m *SqlMigrator) Migrate() error {
	_, err := m.db.Exec(`create table if not exists schema (
	    version integer not null,
	    timestamp timestamptz not null)`)
	if err != nil {
		return errors.Wrap(err, "failed to create schema table")
	}

	var currentVersion sql.NullInt64
	if err := m.db.QueryRow("select max(version) from schema").Scan(&currentVersion); err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}
	if currentVersion.Valid {
		log.Info("Current database schema version: %d", currentVersion.Int64)
	} else {
		log.Info("Initializing database.")
	}

	for nextVersion := int(currentVersion.Int64) + 1; ; nextVersion++ {
		scriptName := path.Join(m.directory, fmt.Sprintf("V%d.sql", nextVersion))
		script, err := migrations.ReadFile(scriptName)
		if err != nil {
			break
		}

		log.Info("Updating database to version %d.", nextVersion)

		tx, err := m.db.Begin()
		if err != nil {
			return errors.Wrap(err, "failed to start transaction")
		}

		if _, err := tx.Exec(string(script)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to execute %s", scriptName)
		}

		if _, err := tx.Exec(`insert into schema (version, timestamp) values ($1, now())`,
			nextVersion); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "failed to set schema version")
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, "failed to commit migration")
		}
	}

	return nil
}
