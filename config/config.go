/* Copyright (c) 2016 Jason Ish
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

// Package config loads the EveBox configuration from a YAML file,
// EVEBOX_ environment variables and command line flags.
package config

import (
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/jasonish/evecore/core"
	"github.com/jasonish/evecore/log"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "EVEBOX"

const (
	DatabaseElasticsearch = "elasticsearch"
	DatabaseSqlite        = "sqlite"
	DatabasePostgresql    = "postgresql"
)

type Config struct {
	DataDirectory  string               `mapstructure:"data-directory"`
	Http           HttpConfig           `mapstructure:"http"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Input          InputConfig          `mapstructure:"input"`
	AutoArchive    AutoArchiveConfig    `mapstructure:"autoarchive"`
	GeoIp          GeoIpConfig          `mapstructure:"geoip"`
	UserAgent      UserAgentConfig      `mapstructure:"useragent"`
	Rules          RulesConfig          `mapstructure:"rules"`
	Authentication AuthenticationConfig `mapstructure:"authentication"`
	Log            LogConfig            `mapstructure:"log"`
	AlertTimeout   time.Duration        `mapstructure:"alert-timeout"`
}

type HttpConfig struct {
	Address        string `mapstructure:"address"`
	Port           int    `mapstructure:"port"`
	RequestLogging bool   `mapstructure:"request-logging"`
}

type DatabaseConfig struct {
	Type          string              `mapstructure:"type"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Sqlite        SqliteConfig        `mapstructure:"sqlite"`
	Postgresql    PostgresqlConfig    `mapstructure:"postgresql"`
	Retention     RetentionConfig     `mapstructure:"retention"`
}

type ElasticsearchConfig struct {
	Url                     string `mapstructure:"url"`
	Index                   string `mapstructure:"index"`
	Username                string `mapstructure:"username"`
	Password                string `mapstructure:"password"`
	DisableCertificateCheck bool   `mapstructure:"disable-certificate-check"`
}

type SqliteConfig struct {
	Filename string `mapstructure:"filename"`
}

type PostgresqlConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	MaxConns int    `mapstructure:"max-conns"`
	MinConns int    `mapstructure:"min-conns"`
}

type RetentionConfig struct {
	// Number of days to keep, 0 to disable retention.
	Days     int           `mapstructure:"days"`
	Force    bool          `mapstructure:"force"`
	Interval time.Duration `mapstructure:"interval"`
}

type InputConfig struct {
	Nats NatsConfig `mapstructure:"nats"`
}

type NatsConfig struct {
	Url     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type AutoArchiveConfig struct {
	Filename string `mapstructure:"filename"`
}

type GeoIpConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	DatabaseFilename string `mapstructure:"database-filename"`
}

type UserAgentConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RulesConfig struct {
	Files []string `mapstructure:"files"`
}

type AuthenticationConfig struct {
	Required bool   `mapstructure:"required"`
	Type     string `mapstructure:"type"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// HttpListenAddress returns the address to listen on, host:port.
func (c *Config) HttpListenAddress() string {
	return net.JoinHostPort(c.Http.Address, strconv.Itoa(c.Http.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data-directory", ".")
	v.SetDefault("alert-timeout", 5*time.Second)

	v.SetDefault("http.address", "0.0.0.0")
	v.SetDefault("http.port", 5636)
	v.SetDefault("http.request-logging", false)

	v.SetDefault("database.type", DatabaseSqlite)
	v.SetDefault("database.elasticsearch.url", "http://localhost:9200")
	v.SetDefault("database.elasticsearch.index", "logstash")
	v.SetDefault("database.elasticsearch.username", "")
	v.SetDefault("database.elasticsearch.password", "")
	v.SetDefault("database.elasticsearch.disable-certificate-check", false)
	v.SetDefault("database.sqlite.filename", "events.sqlite")
	v.SetDefault("database.postgresql.host", "localhost")
	v.SetDefault("database.postgresql.port", 5432)
	v.SetDefault("database.postgresql.user", "evebox")
	v.SetDefault("database.postgresql.password", "")
	v.SetDefault("database.postgresql.database", "evebox")
	v.SetDefault("database.postgresql.max-conns", 32)
	v.SetDefault("database.postgresql.min-conns", 8)
	v.SetDefault("database.retention.days", 0)
	v.SetDefault("database.retention.force", false)
	v.SetDefault("database.retention.interval", time.Hour)

	v.SetDefault("input.nats.url", "")
	v.SetDefault("input.nats.subject", "evebox.eve")

	v.SetDefault("autoarchive.filename", "")

	v.SetDefault("geoip.enabled", false)
	v.SetDefault("geoip.database-filename", "")
	v.SetDefault("useragent.enabled", false)
	v.SetDefault("rules.files", []string{})

	v.SetDefault("authentication.required", false)
	v.SetDefault("authentication.type", "anonymous")

	v.SetDefault("log.level", "info")
}

// New returns a viper instance with the defaults set and the environment
// bound, EVEBOX_HTTP_PORT for http.port.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlag binds a flag to a configuration key. Flags only override the
// configuration when set.
func BindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		log.Fatalf("No flag for configuration key %s", key)
	}
	if err := v.BindPFlag(key, flag); err != nil {
		log.Fatalf("Failed to bind flag %s: %v", flag.Name, err)
	}
}

// ReadFile merges in a YAML configuration file.
func ReadFile(v *viper.Viper, filename string) error {
	log.Info("Loading configuration file %s", filename)
	v.SetConfigFile(filename)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read configuration file %s", filename)
	}
	return nil
}

// stringToSliceHook splits comma separated strings, as found in
// environment variables, into slices.
func stringToSliceHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}

// Load decodes and validates the configuration.
func Load(v *viper.Viper) (*Config, error) {
	var config Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToSliceHook(),
	))
	if err := v.Unmarshal(&config, hook); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	c.Database.Type = strings.ToLower(c.Database.Type)
	switch c.Database.Type {
	case DatabaseElasticsearch, DatabaseSqlite:
	case DatabasePostgresql, "postgres":
		c.Database.Type = DatabasePostgresql
	default:
		return core.NewBadRequestError("unsupported database type: %s", c.Database.Type)
	}

	switch c.Authentication.Type {
	case "anonymous", "usernamepassword":
	default:
		return core.NewBadRequestError("unsupported authentication type: %s",
			c.Authentication.Type)
	}
	if c.Authentication.Required && c.Authentication.Type == "anonymous" {
		c.Authentication.Type = "usernamepassword"
	}

	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return core.NewBadRequestError("invalid http port: %d", c.Http.Port)
	}
	if c.Database.Retention.Days < 0 {
		return core.NewBadRequestError("invalid retention days: %d", c.Database.Retention.Days)
	}
	if c.Database.Retention.Interval <= 0 {
		c.Database.Retention.Interval = time.Hour
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
