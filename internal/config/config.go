// Package config loads application settings from environment variables,
// applies defaults, and validates everything on startup so misconfiguration
// fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Table     TableConfig
	Format    FormatConfig
	Transport TransportConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds settings for the PostgreSQL record source.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. When empty the record source
	// endpoints are not mounted and tables must point at external APIs.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// MaxConcurrentQueries bounds record queries in flight (default: 8)
	MaxConcurrentQueries int           `env:"DB_MAX_CONCURRENT_QUERIES" default:"8"`
	QueryWait            time.Duration `env:"DB_QUERY_WAIT" default:"5s"`
}

// TableConfig holds table engine settings.
type TableConfig struct {
	// File is the YAML file with table definitions (required)
	File string `env:"TABLES_FILE" default:"tables.yaml"`

	// PageSize is the number of records per page (default: 10)
	PageSize int `env:"TABLE_PAGE_SIZE" default:"10"`

	// RefetchOnClear refetches page 1 when every filter is cleared
	RefetchOnClear bool `env:"TABLE_REFETCH_ON_CLEAR" default:"false"`

	// APIBaseURL is prefixed to relative apiUrl values. Defaults to this
	// server's own address so tables can use the built-in record source.
	APIBaseURL string `env:"TABLE_API_BASE_URL"`

	// SessionTTL is how long an idle table session is kept (default: 30m)
	SessionTTL time.Duration `env:"TABLE_SESSION_TTL" default:"30m"`

	// MaxSessions caps live table sessions (default: 1000)
	MaxSessions int `env:"TABLE_MAX_SESSIONS" default:"1000"`
}

// FormatConfig holds display patterns for formatted columns.
// Patterns use YYYY, MM, DD, HH, hh, mm, ss, A style tokens.
type FormatConfig struct {
	Date         string `env:"FORMAT_DATE" default:"YYYY-MM-DD"`
	Time         string `env:"FORMAT_TIME" default:"hh:mm A"`
	Datetime     string `env:"FORMAT_DATETIME" default:"YYYY-MM-DD hh:mm A"`
	BooleanTrue  string `env:"FORMAT_BOOLEAN_TRUE" default:"YES"`
	BooleanFalse string `env:"FORMAT_BOOLEAN_FALSE" default:"NO"`

	// Timezone is an IANA zone name used to display instants (default: UTC)
	Timezone string `env:"FORMAT_TIMEZONE" default:"UTC"`
}

// Location resolves Timezone.
func (c *FormatConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// TransportConfig holds settings for calls to record APIs.
type TransportConfig struct {
	Timeout time.Duration `env:"TRANSPORT_TIMEOUT" default:"30s"`

	// RateLimit is requests per second across all sessions; 0 disables it
	RateLimit float64 `env:"TRANSPORT_RATE_LIMIT" default:"0"`
	RateBurst int     `env:"TRANSPORT_RATE_BURST" default:"10"`
}

// RateLimitConfig holds per-client request limits for the web server.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
	Burst             int  `env:"RATE_LIMIT_BURST" default:"50"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File, when set, also writes logs to a rotating file.
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `env:"LOG_FILE_MAX_BACKUPS" default:"5"`
	MaxAgeDays int    `env:"LOG_FILE_MAX_AGE_DAYS" default:"28"`
	Compress   bool   `env:"LOG_FILE_COMPRESS" default:"true"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// SelfURL is the base URL at which this server reaches itself.
func (c *ServerConfig) SelfURL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + host + ":" + strconv.Itoa(c.Port)
}
