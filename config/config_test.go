package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	config, err := Load(New())
	require.Nil(t, err)
	assert.Equal(t, DatabaseSqlite, config.Database.Type)
	assert.Equal(t, 5636, config.Http.Port)
	assert.Equal(t, "0.0.0.0:5636", config.HttpListenAddress())
	assert.Equal(t, time.Hour, config.Database.Retention.Interval)
	assert.Equal(t, 5*time.Second, config.AlertTimeout)
	assert.Equal(t, "evebox.eve", config.Input.Nats.Subject)
	assert.Equal(t, 32, config.Database.Postgresql.MaxConns)
	assert.Equal(t, "anonymous", config.Authentication.Type)
}

func TestReadFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "evebox.yaml")
	require.Nil(t, os.WriteFile(filename, []byte(`
http:
  port: 8080
database:
  type: postgres
  postgresql:
    host: db.example.com
  retention:
    days: 7
    interval: 30m
rules:
  files:
    - /etc/suricata/rules/*.rules
authentication:
  required: true
`), 0644))

	v := New()
	require.Nil(t, ReadFile(v, filename))
	config, err := Load(v)
	require.Nil(t, err)

	assert.Equal(t, 8080, config.Http.Port)
	assert.Equal(t, DatabasePostgresql, config.Database.Type)
	assert.Equal(t, "db.example.com", config.Database.Postgresql.Host)
	assert.Equal(t, 7, config.Database.Retention.Days)
	assert.Equal(t, 30*time.Minute, config.Database.Retention.Interval)
	assert.Equal(t, []string{"/etc/suricata/rules/*.rules"}, config.Rules.Files)
	assert.Equal(t, "usernamepassword", config.Authentication.Type)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("EVEBOX_DATABASE_TYPE", "elasticsearch")
	t.Setenv("EVEBOX_DATABASE_ELASTICSEARCH_URL", "http://es:9200")
	t.Setenv("EVEBOX_RULES_FILES", "a.rules, b.rules")

	config, err := Load(New())
	require.Nil(t, err)
	assert.Equal(t, DatabaseElasticsearch, config.Database.Type)
	assert.Equal(t, "http://es:9200", config.Database.Elasticsearch.Url)
	assert.Equal(t, []string{"a.rules", "b.rules"}, config.Rules.Files)
}

func TestFlagsOverride(t *testing.T) {
	v := New()
	flagset := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagset.IntP("port", "p", 0, "Port")
	flagset.String("database", "", "Database type")
	BindFlag(v, "http.port", flagset.Lookup("port"))
	BindFlag(v, "database.type", flagset.Lookup("database"))

	require.Nil(t, flagset.Parse([]string{"-p", "9000"}))
	config, err := Load(v)
	require.Nil(t, err)
	assert.Equal(t, 9000, config.Http.Port)

	// Unset flags leave the default alone.
	assert.Equal(t, DatabaseSqlite, config.Database.Type)
}

func TestValidate(t *testing.T) {
	v := New()
	v.Set("database.type", "mongodb")
	_, err := Load(v)
	assert.NotNil(t, err)

	v = New()
	v.Set("log.level", "chatty")
	_, err = Load(v)
	assert.NotNil(t, err)

	v = New()
	v.Set("http.port", 0)
	_, err = Load(v)
	assert.NotNil(t, err)
}

func TestCommandLine(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "evebox.yaml")
	require.Nil(t, os.WriteFile(filename, []byte("database:\n  type: elasticsearch\n"), 0644))

	commandLine := NewCommandLine("test")
	config, args, err := commandLine.Parse([]string{
		"-c", filename, "--index", "suricata", "eve.json",
	})
	require.Nil(t, err)
	assert.Equal(t, DatabaseElasticsearch, config.Database.Type)
	assert.Equal(t, "suricata", config.Database.Elasticsearch.Index)
	assert.Equal(t, []string{"eve.json"}, args)

	// Flags override the configuration file.
	commandLine = NewCommandLine("test")
	config, _, err = commandLine.Parse([]string{"-c", filename, "--database", "sqlite"})
	require.Nil(t, err)
	assert.Equal(t, DatabaseSqlite, config.Database.Type)

	_, _, err = NewCommandLine("test").Parse([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.NotNil(t, err)
}
