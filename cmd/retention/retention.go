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

// Package retention implements the retention command, a one time
// sweep of events older than the retention period.
package retention

import (
	"context"
	"fmt"
	"os"

	"github.com/jasonish/evecore/config"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/server"
	"github.com/jasonish/evecore/util"
	"github.com/spf13/pflag"
)

func usage(flagset *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: evebox retention --days <days> [--force] [options]\n\n")
		fmt.Fprintf(os.Stderr, "Without --force nothing is deleted, only reported.\n\nOptions:\n")
		flagset.PrintDefaults()
	}
}

func Main(args []string) {
	commandLine := config.NewCommandLine("evebox retention")
	flagset := commandLine.FlagSet
	flagset.Usage = usage(flagset)

	flagset.Int("days", 0, "Delete events older than this many days")
	config.BindFlag(commandLine.Viper, "database.retention.days", flagset.Lookup("days"))

	flagset.Bool("force", false, "Delete, instead of reporting what would be deleted")
	config.BindFlag(commandLine.Viper, "database.retention.force", flagset.Lookup("force"))

	conf, _, err := commandLine.Parse(args)
	if err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}

	days := conf.Database.Retention.Days
	if days <= 0 {
		flagset.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	datastore, err := server.OpenDatastore(ctx, conf.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer datastore.Close()

	result, err := datastore.Sweeper.Sweep(ctx, days, conf.Database.Retention.Force)
	if err != nil {
		log.Fatal(err)
	}
	if !result.Deleted {
		log.Info("Dry run, %d would be deleted; use --force to delete", result.Count)
	}
	fmt.Println(util.ToJsonPretty(result))
}
