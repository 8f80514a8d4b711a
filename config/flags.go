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

package config

import (
	"github.com/jasonish/evecore/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CommandLine is the flag set of a command bound to a configuration.
type CommandLine struct {
	Viper   *viper.Viper
	FlagSet *pflag.FlagSet

	configFilename *string
	verbose        *bool
}

// NewCommandLine returns a flag set with the options shared by all
// commands, the configuration file and database selection.
func NewCommandLine(name string) *CommandLine {
	v := New()
	flagset := pflag.NewFlagSet(name, pflag.ContinueOnError)

	c := &CommandLine{
		Viper:   v,
		FlagSet: flagset,
	}

	c.configFilename = flagset.StringP("config", "c", "", "Configuration file")
	c.verbose = flagset.BoolP("verbose", "v", false, "Verbose output")

	flagset.StringP("data-directory", "D", "", "Data directory")
	BindFlag(v, "data-directory", flagset.Lookup("data-directory"))

	flagset.String("database", "", "Database type: elasticsearch, sqlite or postgresql")
	BindFlag(v, "database.type", flagset.Lookup("database"))

	flagset.StringP("elasticsearch", "e", "", "Elasticsearch URL")
	BindFlag(v, "database.elasticsearch.url", flagset.Lookup("elasticsearch"))

	flagset.String("index", "", "Elasticsearch index prefix")
	BindFlag(v, "database.elasticsearch.index", flagset.Lookup("index"))

	flagset.BoolP("no-check-certificate", "k", false, "Disable certificate check")
	BindFlag(v, "database.elasticsearch.disable-certificate-check",
		flagset.Lookup("no-check-certificate"))

	flagset.String("sqlite-filename", "", "SQLite database filename")
	BindFlag(v, "database.sqlite.filename", flagset.Lookup("sqlite-filename"))

	return c
}

// Parse parses the arguments, reads the configuration file if given and
// returns the configuration with the remaining arguments.
func (c *CommandLine) Parse(args []string) (*Config, []string, error) {
	if err := c.FlagSet.Parse(args); err != nil {
		return nil, nil, err
	}

	if *c.configFilename != "" {
		if err := ReadFile(c.Viper, *c.configFilename); err != nil {
			return nil, nil, err
		}
	}

	config, err := Load(c.Viper)
	if err != nil {
		return nil, nil, err
	}

	level, _ := log.ParseLevel(config.Log.Level)
	if *c.verbose {
		level = log.DEBUG
	}
	log.SetLevel(level)

	return config, c.FlagSet.Args(), nil
}
