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

package server

import (
	"context"
	"io"

	"github.com/jasonish/evecore/autoarchive"
	"github.com/jasonish/evecore/config"
	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/elasticsearch"
	"github.com/jasonish/evecore/geoip"
	"github.com/jasonish/evecore/ingest"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/postgres"
	"github.com/jasonish/evecore/retention"
	"github.com/jasonish/evecore/rules"
	"github.com/jasonish/evecore/sqlite"
	"github.com/jasonish/evecore/useragent"
	"github.com/pkg/errors"
)

// Datastore is an open event datastore with its retention sweeper.
type Datastore struct {
	core.Datastore
	Sweeper retention.Sweeper
	Type    string
	closers []io.Closer
}

func (d *Datastore) Close() error {
	var first error
	for _, closer := range d.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenDatastore opens and migrates the configured datastore.
func OpenDatastore(ctx context.Context, conf config.DatabaseConfig) (*Datastore, error) {
	switch conf.Type {
	case config.DatabaseElasticsearch:
		es := elasticsearch.New(conf.Elasticsearch.Url)
		es.SetEventBaseIndex(conf.Elasticsearch.Index)
		es.HttpClient.DisableCertCheck(conf.Elasticsearch.DisableCertificateCheck)
		if conf.Elasticsearch.Username != "" {
			if err := es.HttpClient.SetUsernamePassword(conf.Elasticsearch.Username,
				conf.Elasticsearch.Password); err != nil {
				return nil, err
			}
		}
		if err := es.Connect(ctx); err != nil {
			return nil, err
		}
		datastore := elasticsearch.NewDataStore(es)
		return &Datastore{
			Datastore: datastore,
			Sweeper:   datastore.Retention(),
			Type:      conf.Type,
		}, nil
	case config.DatabaseSqlite:
		db, err := sqlite.NewSqliteService(conf.Sqlite.Filename)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		datastore := sqlite.NewDataStore(db)
		return &Datastore{
			Datastore: datastore,
			Sweeper:   datastore.Retention(),
			Type:      conf.Type,
			closers:   []io.Closer{db},
		}, nil
	case config.DatabasePostgresql:
		pg, err := postgres.NewPgDB(postgres.ConnectionConfig{
			Host:     conf.Postgresql.Host,
			Port:     conf.Postgresql.Port,
			User:     conf.Postgresql.User,
			Password: conf.Postgresql.Password,
			Database: conf.Postgresql.Database,
			MaxConns: conf.Postgresql.MaxConns,
			MinConns: conf.Postgresql.MinConns,
		})
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(); err != nil {
			pg.Close()
			return nil, err
		}
		datastore := postgres.NewPgDatastore(pg)
		return &Datastore{
			Datastore: datastore,
			Sweeper:   datastore.Retention(),
			Type:      conf.Type,
			closers:   []io.Closer{pg},
		}, nil
	}
	return nil, errors.Errorf("unsupported database type: %s", conf.Type)
}

// NewPipeline returns an ingest pipeline with the enrichment filters
// enabled in the configuration. The returned closers must be closed when
// the pipeline is no longer used.
func NewPipeline(conf *config.Config, datastore core.Datastore,
	autoArchive *autoarchive.Filters) (*ingest.Pipeline, []io.Closer, error) {
	pipeline := ingest.NewPipeline(datastore, autoArchive)
	closers := []io.Closer{}

	if conf.GeoIp.Enabled {
		db, err := geoip.NewGeoIpDb(conf.GeoIp.DatabaseFilename)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open geoip database")
		}
		log.Info("Loaded GeoIP %s database built %v", db.Type(), db.BuildDate())
		pipeline.AddFilter(geoip.NewFilter(db))
		closers = append(closers, db)
	}

	if conf.UserAgent.Enabled {
		pipeline.AddFilter(useragent.NewEveUserAgentFilter())
	}

	if len(conf.Rules.Files) > 0 {
		pipeline.AddFilter(rules.NewRuleMap(conf.Rules.Files))
	}

	return pipeline, closers, nil
}
