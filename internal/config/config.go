// Package config loads store connection settings from environment
// variables (populated from a .env file by main). Credentials live only
// here, never in the pipeline file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// DefaultSinkTimeout bounds each sink's Load call unless SINK_TIMEOUT or
// a per-sink timeout in the pipeline file overrides it.
const DefaultSinkTimeout = 30 * time.Second

// Config holds the connection settings for every store the process can
// write to. A nil section means that store is not configured and the
// matching sink is disabled.
type Config struct {
	Relational *RelationalConfig
	Document   *DocumentConfig
	Warehouse  *WarehouseConfig

	LogLevel    string
	SinkTimeout time.Duration
}

// RelationalConfig describes the SQL database connection.
type RelationalConfig struct {
	Driver   string // postgres, mysql, sqlserver or sqlite
	Host     string
	Port     int
	User     string
	Password string
	Name     string // database name; for sqlite, the file path
	SSLMode  string
}

// DSN builds the driver-specific connection string.
func (c *RelationalConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Name)
	case "sqlserver":
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.User, c.Password),
			Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
			RawQuery: "database=" + url.QueryEscape(c.Name),
		}
		return u.String()
	case "sqlite":
		return c.Name
	default: // postgres
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
}

// DocumentConfig describes the MongoDB connection.
type DocumentConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	Name       string // database name
	AuthSource string
}

// URI builds the mongodb:// connection string.
func (c *DocumentConfig) URI() string {
	if c.User == "" {
		return fmt.Sprintf("mongodb://%s:%d/%s", c.Host, c.Port, c.Name)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s?authSource=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Name, c.AuthSource)
}

// WarehouseConfig describes the BigQuery project. Credentials are
// referenced by file path (GOOGLE_APPLICATION_CREDENTIALS), following the
// SDK convention; an empty path falls back to application default
// credentials.
type WarehouseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// Load reads the environment. Store sections are only populated when
// their anchor variable is present: DB_HOST (or DB_NAME for sqlite),
// MONGO_HOST, BIG_QUERY_PROJECT_ID.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:    envOr("LOG_LEVEL", "info"),
		SinkTimeout: DefaultSinkTimeout,
	}
	if v := os.Getenv("SINK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SINK_TIMEOUT %q: %w", v, err)
		}
		cfg.SinkTimeout = d
	}

	driver := envOr("DB_DRIVER", "postgres")
	if host := os.Getenv("DB_HOST"); host != "" || (driver == "sqlite" && os.Getenv("DB_NAME") != "") {
		cfg.Relational = &RelationalConfig{
			Driver:   driver,
			Host:     host,
			Port:     envIntOr("DB_PORT", defaultSQLPort(driver)),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			SSLMode:  envOr("DB_SSLMODE", "disable"),
		}
	}

	if host := os.Getenv("MONGO_HOST"); host != "" {
		cfg.Document = &DocumentConfig{
			Host:       host,
			Port:       envIntOr("MONGO_PORT", 27017),
			User:       os.Getenv("MONGO_USER"),
			Password:   os.Getenv("MONGO_PASSWORD"),
			Name:       os.Getenv("MONGO_NAME"),
			AuthSource: envOr("MONGO_AUTH_SOURCE", "admin"),
		}
	}

	if project := os.Getenv("BIG_QUERY_PROJECT_ID"); project != "" {
		cfg.Warehouse = &WarehouseConfig{
			ProjectID:       project,
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		}
	}

	return cfg, nil
}

// Validate checks that the configuration can drive at least one sink.
func (c *Config) Validate() error {
	if c.Relational == nil && c.Document == nil && c.Warehouse == nil {
		return fmt.Errorf("no sink configured: set DB_HOST, MONGO_HOST or BIG_QUERY_PROJECT_ID")
	}
	if rc := c.Relational; rc != nil {
		switch rc.Driver {
		case "postgres", "mysql", "sqlserver", "sqlite":
		default:
			return fmt.Errorf("unsupported DB_DRIVER %q (want postgres, mysql, sqlserver or sqlite)", rc.Driver)
		}
		if rc.Name == "" {
			return fmt.Errorf("DB_NAME is required when the relational sink is configured")
		}
	}
	if dc := c.Document; dc != nil && dc.Name == "" {
		return fmt.Errorf("MONGO_NAME is required when the document sink is configured")
	}
	return nil
}

func defaultSQLPort(driver string) int {
	switch driver {
	case "mysql":
		return 3306
	case "sqlserver":
		return 1433
	default:
		return 5432
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
