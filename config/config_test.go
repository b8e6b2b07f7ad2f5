package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/findmybuddy/apperrors"
)

var managed = []string{
	"CONFIG_PATH", "DB_DRIVER", "MYSQL_HOST", "MYSQL_PORT", "MYSQL_USER", "MYSQL_PASSWORD",
	"MYSQL_DATABASE", "MYSQL_SSL", "DATABASE_URL", "DB_MAX_OPEN_CONNS", "DB_QUERY_TIMEOUT",
	"HTTP_ADDR", "APP_ENV", "LOG_LEVEL", "BOOTSTRAP_ADMIN", "SEED_ADMIN_PASSWORD",
}

// clearEnv unsets every variable the tests touch and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managed {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := load("", "")
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Driver)
	assert.Equal(t, 5, cfg.MaxOpenConns)
	assert.Equal(t, 10*time.Second, cfg.QueryTimeout)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.False(t, cfg.BootstrapAdmin)
}

func TestLoad_Layering(t *testing.T) {
	clearEnv(t)
	yamlPath := writeFile(t, "config.yaml", `
db_driver: postgres
mysql_host: yaml-host
mysql_user: yaml-user
mysql_database: buddies
db_query_timeout: 3s
http_addr: ":9000"
`)
	envPath := writeFile(t, ".env", "MYSQL_HOST=dotenv-host\nMYSQL_PASSWORD=dotenv-secret\nLOG_LEVEL=debug\n")
	t.Setenv("MYSQL_HOST", "env-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "12")

	cfg, err := load(yamlPath, envPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Driver, "from yaml")
	assert.Equal(t, "yaml-user", cfg.User, "from yaml")
	assert.Equal(t, 3*time.Second, cfg.QueryTimeout, "yaml duration")
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "dotenv-secret", cfg.Password, ".env fills gaps")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "env-host", cfg.Host, "environment beats .env and yaml")
	assert.Equal(t, 12, cfg.MaxOpenConns)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout, "untouched default survives")
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", writeFile(t, "c.yaml", "db_driver: SQLite3\nmysql_database: /tmp/b.db\n"))

	cfg, err := load("", "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Driver, "normalized")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))

	_, err = load(writeFile(t, "bad.yaml", "db_driver: [unclosed"), "")
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))

	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	_, err = load("", "")
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConfiguration, appErr.Kind)
	assert.Equal(t, "Database Configuration Missing", appErr.Message)
	assert.Equal(t, []string{"MYSQL_HOST", "MYSQL_USER", "MYSQL_DATABASE"}, appErr.Details)

	cfg.Host, cfg.User, cfg.Database = "db", "app", "buddies"
	assert.NoError(t, cfg.Validate())

	url := Default()
	url.DatabaseURL = "app:pw@tcp(db:3306)/buddies"
	assert.NoError(t, url.Validate(), "DATABASE_URL replaces structured options")

	bad := Default()
	bad.Driver = "oracle"
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(bad.Validate()))

	pool := cfg
	pool.MaxOpenConns = 0
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(pool.Validate()))
}

func TestDBConfig(t *testing.T) {
	cfg := Default()
	cfg.QueryTimeout = 4 * time.Second

	dc := cfg.DBConfig()
	assert.Equal(t, 5, dc.MaxOpenConns)
	assert.Equal(t, 4*time.Second, dc.DefaultTimeout)
	assert.Empty(t, dc.DSN)

	cfg.DatabaseURL = "file:x.db"
	cfg.Driver = "sqlite3"
	dc = cfg.DBConfig()
	assert.Equal(t, "file:x.db", dc.DSN)
	assert.Equal(t, "sqlite3", dc.DriverName)
}

func TestMigrateURL(t *testing.T) {
	cfg := Default()
	cfg.Host, cfg.User, cfg.Password, cfg.Database = "db", "app", "p@ss", "buddies"

	u, err := cfg.MigrateURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "mysql://app:p@ss@tcp(db:3306)/buddies?"), u)
	assert.Contains(t, u, "multiStatements=true")

	cfg.Driver = "postgres"
	u, err = cfg.MigrateURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:p%40ss@db:5432/buddies?sslmode=disable", u)

	cfg.Driver = "sqlite3"
	cfg.Database = "buddies.db"
	u, err = cfg.MigrateURL()
	require.NoError(t, err)
	assert.Equal(t, "sqlite3://buddies.db", u)

	_, err = Default().MigrateURL()
	assert.Equal(t, apperrors.KindConfiguration, apperrors.KindOf(err))
}
