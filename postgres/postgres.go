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
	"fmt"
	"net/url"

	"github.com/jasonish/evecore/log"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

const defaultMaxConns = 32
const defaultMinConns = 8

type ConnectionConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SslMode  string

	// Pool sizes, the defaults are used when zero.
	MaxConns int
	MinConns int
}

// DSN returns the connection string for lib/pq.
func (c ConnectionConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host,
		Path:   "/" + c.Database,
	}
	if c.Port > 0 {
		u.Host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	sslMode := c.SslMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()
	return u.String()
}

type PgDB struct {
	*sql.DB
}

func NewPgDB(config ConnectionConfig) (*PgDB, error) {
	return Open(config.DSN(), config.MaxConns, config.MinConns)
}

// Open connects to PostgreSQL with a DSN, as used by tests.
func Open(dsn string, maxConns int, minConns int) (*PgDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgresql connection")
	}
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if minConns <= 0 {
		minConns = defaultMinConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)

	var pgVersion string
	if err := db.QueryRow("select version()").Scan(&pgVersion); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to postgresql")
	}
	log.Info("Connected to PostgreSQL version %s.", pgVersion)

	return &PgDB{
		DB: db,
	}, nil
}

func (db *PgDB) Migrate() error {
	return NewSqlMigrator(db, "migrations").Migrate()
}
