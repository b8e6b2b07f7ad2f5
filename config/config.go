// Package config loads process configuration. Sources are applied in order,
// later ones winning: built-in defaults, an optional YAML file, an optional
// .env file, then the process environment.
package config

import (
	"errors"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Skryldev/findmybuddy/apperrors"
	"github.com/Skryldev/findmybuddy/db"
)

// EnvFile is the dotenv file read from the working directory when present.
const EnvFile = ".env"

// Config is flat so every field maps to exactly one variable. The MYSQL_*
// connection variables apply to every networked driver.
type Config struct {
	Driver        string `yaml:"db_driver" envconfig:"DB_DRIVER"`
	Host          string `yaml:"mysql_host" envconfig:"MYSQL_HOST"`
	Port          int    `yaml:"mysql_port" envconfig:"MYSQL_PORT"`
	User          string `yaml:"mysql_user" envconfig:"MYSQL_USER"`
	Password      string `yaml:"mysql_password" envconfig:"MYSQL_PASSWORD"`
	Database      string `yaml:"mysql_database" envconfig:"MYSQL_DATABASE"`
	SSL           bool   `yaml:"mysql_ssl" envconfig:"MYSQL_SSL"`
	DatabaseURL   string `yaml:"database_url" envconfig:"DATABASE_URL"`
	MigrationsDir string `yaml:"migrations_path" envconfig:"MIGRATIONS_PATH"`

	MaxOpenConns   int           `yaml:"db_max_open_conns" envconfig:"DB_MAX_OPEN_CONNS"`
	ConnectTimeout time.Duration `yaml:"db_connect_timeout" envconfig:"DB_CONNECT_TIMEOUT"`
	QueryTimeout   time.Duration `yaml:"db_query_timeout" envconfig:"DB_QUERY_TIMEOUT"`
	SlowQuery      time.Duration `yaml:"db_slow_query" envconfig:"DB_SLOW_QUERY"`

	HTTPAddr string `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	Env      string `yaml:"app_env" envconfig:"APP_ENV"`
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	BootstrapAdmin    bool   `yaml:"bootstrap_admin" envconfig:"BOOTSTRAP_ADMIN"`
	SeedAdminEmail    string `yaml:"seed_admin_email" envconfig:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `yaml:"seed_admin_password" envconfig:"SEED_ADMIN_PASSWORD"`

	OTLPEndpoint string `yaml:"otel_exporter_otlp_endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Terminal client.
	APIURL   string `yaml:"api_url" envconfig:"API_URL"`
	StateDir string `yaml:"state_dir" envconfig:"STATE_DIR"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Driver:         "mysql",
		MigrationsDir:  "./migrations",
		MaxOpenConns:   5,
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   10 * time.Second,
		SlowQuery:      200 * time.Millisecond,
		HTTPAddr:       ":8080",
		Env:            "development",
		LogLevel:       "info",
		APIURL:         "http://localhost:8080",
		StateDir:       defaultStateDir(),
	}
}

// Load reads configuration. path names the YAML file; when empty CONFIG_PATH
// is consulted and, if that is unset too, no file is read. The result is not
// validated; call Validate before opening the store.
func Load(path string) (Config, error) {
	return load(path, EnvFile)
}

func load(path, envFile string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, apperrors.Wrap(err, apperrors.KindConfiguration, "Configuration file cannot be read").
				WithDetails(path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, apperrors.Wrap(err, apperrors.KindConfiguration, "Configuration file is malformed").
				WithDetails(err.Error())
		}
	}

	// godotenv never overrides variables already present in the environment.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, apperrors.Wrap(err, apperrors.KindConfiguration, "Environment file is malformed").
				WithDetails(err.Error())
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, apperrors.Wrap(err, apperrors.KindConfiguration, "Environment variable is malformed").
			WithDetails(err.Error())
	}
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	return cfg, nil
}

// Validate reports missing connection parameters as a ConfigurationError
// whose details name the missing variables.
func (c Config) Validate() error {
	switch c.Driver {
	case "mysql", "postgres", "sqlite3":
	default:
		return apperrors.Newf(apperrors.KindConfiguration, "Unsupported database driver %q", c.Driver).
			WithDetails("DB_DRIVER must be mysql, postgres or sqlite3")
	}
	if c.MaxOpenConns < 1 {
		return apperrors.New(apperrors.KindConfiguration, "Invalid pool size").
			WithDetails("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.DatabaseURL != "" {
		return nil
	}

	var missing []string
	if c.Driver != "sqlite3" {
		if c.Host == "" {
			missing = append(missing, "MYSQL_HOST")
		}
		if c.User == "" {
			missing = append(missing, "MYSQL_USER")
		}
	}
	if c.Database == "" {
		missing = append(missing, "MYSQL_DATABASE")
	}
	if len(missing) > 0 {
		return apperrors.New(apperrors.KindConfiguration, "Database Configuration Missing").
			WithDetails(missing)
	}
	return nil
}

// DriverOptions converts the connection variables for db.OpenWithDriver.
func (c Config) DriverOptions() db.DriverOptions {
	return db.DriverOptions{
		Host:           c.Host,
		Port:           c.Port,
		User:           c.User,
		Password:       c.Password,
		Database:       c.Database,
		TLS:            c.SSL,
		ConnectTimeout: c.ConnectTimeout,
	}
}

// DBConfig returns the pool settings. DSN and DriverName are filled only when
// DATABASE_URL is set; otherwise OpenWithDriver builds them.
func (c Config) DBConfig(hooks ...db.Hook) db.Config {
	cfg := db.Config{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxOpenConns,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		DefaultTimeout:  c.QueryTimeout,
		PingTimeout:     c.ConnectTimeout,
		Hooks:           hooks,
	}
	if c.DatabaseURL != "" {
		cfg.DSN = c.DatabaseURL
		cfg.DriverName = c.Driver
	}
	return cfg
}

// MigrateURL is the golang-migrate database URL. DATABASE_URL is used as is
// when set.
func (c Config) MigrateURL() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	if err := c.Validate(); err != nil {
		return "", err
	}
	switch c.Driver {
	case "mysql":
		dsn, err := db.MySQLDriver{}.DSN(c.DriverOptions())
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.KindConfiguration, "Database Configuration Missing")
		}
		return "mysql://" + dsn + "&multiStatements=true", nil
	case "postgres":
		port := c.Port
		if port == 0 {
			port = 5432
		}
		ssl := "disable"
		if c.SSL {
			ssl = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(port)),
			Path:     "/" + c.Database,
			RawQuery: "sslmode=" + ssl,
		}
		return u.String(), nil
	default:
		return "sqlite3://" + c.Database, nil
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "findmybuddy")
	}
	return ".findmybuddy"
}
