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

// Package sqlcommon holds the SQL schema migrator shared by the SQLite
// event database and the configuration database.
package sqlcommon

import (
	"database/sql"
	"fmt"
	"io/fs"
	"path"

	"github.com/jasonish/evecore/log"
	"github.com/pkg/errors"
)

// SqlMigrator applies numbered scripts, V1.sql, V2.sql, etc., found in a
// directory of an fs.FS, recording each applied version in the schema
// table.
type SqlMigrator struct {
	db        *sql.DB
	scripts   fs.FS
	directory string
}

func NewSqlMigrator(db *sql.DB, scripts fs.FS, directory string) *SqlMigrator {
	return &SqlMigrator{
		db:        db,
		scripts:   scripts,
		directory: directory,
	}
}

// CurrentVersion returns the schema version of the database, 0 for a new
// database.
func (m *SqlMigrator) CurrentVersion() (int, error) {
	_, err := m.db.Exec(`create table if not exists schema (
	    version integer not null,
	    timestamp text not null)`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create schema table")
	}
	var version sql.NullInt64
	if err := m.db.QueryRow("select max(version) from schema").Scan(&version); err != nil {
		return 0, errors.Wrap(err, "failed to read schema version")
	}
	return int(version.Int64), nil
}

func (m *SqlMigrator) Migrate() error {
	currentVersion, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	if currentVersion == 0 {
		log.Debug("Initializing database %s", m.directory)
	} else {
		log.Debug("Current %s schema version: %d", m.directory, currentVersion)
	}

	for nextVersion := currentVersion + 1; ; nextVersion++ {
		name := path.Join(m.directory, fmt.Sprintf("V%d.sql", nextVersion))
		script, err := fs.ReadFile(m.scripts, name)
		if err != nil {
			break
		}

		log.Info("Updating %s database to version %d", m.directory, nextVersion)

		tx, err := m.db.Begin()
		if err != nil {
			return errors.Wrap(err, "failed to start transaction")
		}
		if _, err := tx.Exec(string(script)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to apply %s", name)
		}
		if err := m.setVersion(tx, nextVersion); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, "failed to commit migration")
		}
	}

	return nil
}

func (m *SqlMigrator) setVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`insert into schema (version, timestamp)
	                     values (?, datetime('now'))`, version)
	return errors.Wrap(err, "failed to set schema version")
}
