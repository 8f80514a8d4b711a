/* Copyright (c) 2014-2015 Jason Ish
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
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jasonish/evecore/autoarchive"
	"github.com/jasonish/evecore/config"
	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/ingest"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/retention"
	"github.com/jasonish/evecore/server"
	"github.com/jasonish/evecore/server/api"
	"github.com/jasonish/evecore/server/auth"
	"github.com/jasonish/evecore/server/sessions"
	"github.com/jasonish/evecore/sqlite/configdb"
	"github.com/spf13/pflag"
)

func usage(flagset *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: evebox server [options]\n\nOptions:\n")
		flagset.PrintDefaults()
	}
}

func Main(args []string) {
	commandLine := config.NewCommandLine("evebox server")
	flagset := commandLine.FlagSet
	v := commandLine.Viper
	flagset.Usage = usage(flagset)

	flagset.String("host", "", "Address to bind to")
	config.BindFlag(v, "http.address", flagset.Lookup("host"))

	flagset.IntP("port", "p", 0, "Port to bind to")
	config.BindFlag(v, "http.port", flagset.Lookup("port"))

	flagset.Bool("request-logging", false, "Log HTTP requests")
	config.BindFlag(v, "http.request-logging", flagset.Lookup("request-logging"))

	flagset.String("nats", "", "NATS URL to receive events from")
	config.BindFlag(v, "input.nats.url", flagset.Lookup("nats"))

	flagset.String("nats-subject", "", "NATS subject to receive events from")
	config.BindFlag(v, "input.nats.subject", flagset.Lookup("nats-subject"))

	flagset.String("auto-archive", "", "Auto-archive rule file")
	config.BindFlag(v, "autoarchive.filename", flagset.Lookup("auto-archive"))

	flagset.Bool("geoip", false, "Enable GeoIP lookups on ingest")
	config.BindFlag(v, "geoip.enabled", flagset.Lookup("geoip"))

	flagset.String("geoip-database", "", "Path to GeoIP (v2) database file")
	config.BindFlag(v, "geoip.database-filename", flagset.Lookup("geoip-database"))

	flagset.StringSlice("rules", nil, "Suricata rule files to attach to alerts")
	config.BindFlag(v, "rules.files", flagset.Lookup("rules"))

	flagset.Int("retention-days", 0, "Delete events older than this many days")
	config.BindFlag(v, "database.retention.days", flagset.Lookup("retention-days"))

	conf, _, err := commandLine.Parse(args)
	if err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}

	log.Info("This is EveBox Server version %v (rev: %v)", core.BuildVersion, core.BuildRev)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf); err != nil {
		log.Fatal(err)
	}
	log.Info("Exiting")
}

func newAuthenticator(conf *config.Config, sessionStore *sessions.SessionStore) (auth.Authenticator, io.Closer, error) {
	if conf.Authentication.Type != "usernamepassword" {
		log.Info("Authentication disabled")
		return auth.NewAnonymousAuthenticator(sessionStore), nil, nil
	}
	db, err := configdb.NewConfigDB(conf.DataDirectory)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Username and password authentication enabled")
	authenticator := auth.NewUsernamePasswordAuthenticator(sessionStore,
		configdb.NewUserStore(db.DB))
	return authenticator, db, nil
}

func run(ctx context.Context, conf *config.Config) error {
	datastore, err := server.OpenDatastore(ctx, conf.Database)
	if err != nil {
		return err
	}
	defer datastore.Close()

	store, err := autoarchive.NewStore(conf.AutoArchive.Filename)
	if err != nil {
		return err
	}
	processor := autoarchive.NewProcessor(datastore)

	pipeline, closers, err := server.NewPipeline(conf, datastore, store.Filters)
	if err != nil {
		return err
	}
	defer func() {
		for _, closer := range closers {
			closer.Close()
		}
	}()

	sessionStore := sessions.NewSessionStore(sessions.DefaultTimeout)
	authenticator, authCloser, err := newAuthenticator(conf, sessionStore)
	if err != nil {
		return err
	}
	if authCloser != nil {
		defer authCloser.Close()
	}

	apiContext := api.NewApiContext(datastore, pipeline, sessionStore, authenticator)
	apiContext.AlertTimeout = conf.AlertTimeout
	apiContext.SetAutoArchive(store, processor)
	apiContext.Features["datastore"] = conf.Database.Type

	s := server.NewServer(server.Options{
		Address:        conf.HttpListenAddress(),
		RequestLogging: conf.Http.RequestLogging,
	}, apiContext, sessionStore, authenticator)

	s.AddService("auto-archive processor", func(ctx context.Context) error {
		processor.Run(ctx)
		return nil
	})

	if store.Filename() != "" {
		s.AddService("auto-archive watcher", store.Watch)
	}

	if days := conf.Database.Retention.Days; days > 0 {
		s.AddService("retention", func(ctx context.Context) error {
			return retention.Run(ctx, datastore.Sweeper, days,
				conf.Database.Retention.Force, conf.Database.Retention.Interval)
		})
	} else {
		log.Info("Retention disabled")
	}

	if conf.Input.Nats.Url != "" {
		input := ingest.NewNatsInput(conf.Input.Nats.Url, conf.Input.Nats.Subject, pipeline)
		s.AddService("nats input", input.Run)
	}

	return s.Run(ctx)
}
