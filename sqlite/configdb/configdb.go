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

// Package configdb is the SQLite database holding server configuration,
// such as users, separate from the event datastore.
package configdb

import (
	"database/sql"
	"embed"
	"os"
	"path/filepath"

	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/sqlite/sqlcommon"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	driver   = "sqlite3"
	filename = "config.sqlite"
	inMemory = ":memory:"
)

//go:embed migrations/*.sql
var migrations embed.FS

type ConfigDB struct {
	DB *sql.DB
}

// NewConfigDB opens, creating if needed, config.sqlite in directory. A
// directory of ":memory:" gives a database that lives as long as the
// ConfigDB.
func NewConfigDB(directory string) (*ConfigDB, error) {
	dsn := inMemory
	if directory != inMemory {
		if err := os.MkdirAll(directory, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create data directory")
		}
		dsn = filepath.Join(directory, filename)
		if _, err := os.Stat(dsn); err != nil {
			log.Info("Creating new configuration database %s", dsn)
		} else {
			log.Info("Using configuration database file %s", dsn)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open configuration database")
	}
	// Each connection to :memory: is a new database, and SQLite allows
	// only one writer in any case.
	db.SetMaxOpenConns(1)

	migrator := sqlcommon.NewSqlMigrator(db, migrations, "migrations")
	if err := migrator.Migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate configuration database")
	}

	return &ConfigDB{DB: db}, nil
}

func (db *ConfigDB) Close() error {
	return db.DB.Close()
}
