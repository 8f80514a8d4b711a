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

// Package importer implements the import command, reading EVE log
// files into the configured database through the ingest pipeline.
package importer

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jasonish/evecore/autoarchive"
	"github.com/jasonish/evecore/config"
	"github.com/jasonish/evecore/ingest"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/server"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

func usage(flagset *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: evebox import [options] <filename>...\n\n")
		fmt.Fprintf(os.Stderr, "A filename of - reads from stdin. Files ending in .gz are decompressed.\n\nOptions:\n")
		flagset.PrintDefaults()
	}
}

// ImportFile submits all events in a file.
func ImportFile(pipeline *ingest.Pipeline, filename string) (uint64, error) {
	var reader io.Reader
	if filename == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(filename)
		if err != nil {
			return 0, errors.Wrap(err, "failed to open file")
		}
		defer file.Close()
		reader = file
	}

	if strings.HasSuffix(filename, ".gz") {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return 0, errors.Wrap(err, "failed to open gzip file")
		}
		defer gz.Close()
		reader = gz
	}

	return pipeline.SubmitReader(reader)
}

func Main(args []string) {
	commandLine := config.NewCommandLine("evebox import")
	flagset := commandLine.FlagSet
	flagset.Usage = usage(flagset)

	flagset.String("auto-archive", "", "Auto-archive rule file to apply")
	config.BindFlag(commandLine.Viper, "autoarchive.filename", flagset.Lookup("auto-archive"))

	flagset.StringSlice("rules", nil, "Suricata rule files to attach to alerts")
	config.BindFlag(commandLine.Viper, "rules.files", flagset.Lookup("rules"))

	conf, filenames, err := commandLine.Parse(args)
	if err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}
	if len(filenames) == 0 {
		flagset.Usage()
		os.Exit(1)
	}

	datastore, err := server.OpenDatastore(context.Background(), conf.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer datastore.Close()

	store, err := autoarchive.NewStore(conf.AutoArchive.Filename)
	if err != nil {
		log.Fatal(err)
	}

	pipeline, closers, err := server.NewPipeline(conf, datastore, store.Filters)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		for _, closer := range closers {
			closer.Close()
		}
	}()

	total := uint64(0)
	start := time.Now()
	for _, filename := range filenames {
		count, err := ImportFile(pipeline, filename)
		total += count
		if err != nil {
			log.Error("Failed to import %s after %d events: %v", filename, count, err)
			os.Exit(1)
		}
		log.Info("Imported %d events from %s", count, filename)
	}
	log.Info("Imported %d events in %v", total, time.Since(start).Round(time.Millisecond))
}
