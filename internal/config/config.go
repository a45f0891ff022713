// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported values for DatabaseConfig.Driver.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 3000).
	Port int

	// BaseURL is the public-facing URL used for links, redirects and CORS.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Database holds user store connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings (session store).
	Redis RedisConfig

	// Auth holds session and password hashing settings.
	Auth AuthConfig

	// GitHub holds the GitHub OAuth app credentials. Disabled when ClientID is empty.
	GitHub OAuthConfig

	// OIDC holds a generic OpenID Connect provider. Disabled when ClientID is empty.
	OIDC OAuthConfig
}

// DatabaseConfig holds user store connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Driver selects the SQL dialect: "mysql" (MariaDB) or "sqlite".
	Driver string

	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "parlor").
	User string

	// Password is the MariaDB password (default: "parlor").
	Password string

	// Name is the database name (default: "parlor").
	Name string

	// SQLitePath is the database file used when Driver is "sqlite".
	SQLitePath string

	// AutoMigrate applies pending migrations on startup.
	AutoMigrate bool

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SessionSecret signs OAuth state tokens (must be 32+ chars in production).
	SessionSecret string

	// SessionTTL is how long sessions last before expiring.
	SessionTTL time.Duration

	// CookieName is the session cookie shared by HTTP and the websocket handshake.
	CookieName string

	// HashAlgorithm is "bcrypt" or "argon2id" for newly hashed passwords.
	HashAlgorithm string

	// BcryptCost is the bcrypt work factor.
	BcryptCost int
}

// OAuthConfig holds the client credentials of one external identity provider.
type OAuthConfig struct {
	// IssuerURL is the OIDC discovery URL. Unused for GitHub.
	IssuerURL string

	ClientID     string
	ClientSecret string

	// CallbackURL is the redirect URL registered with the provider.
	CallbackURL string
}

// Enabled reports whether the provider has credentials configured.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 3000),
		BaseURL:  getEnv("BASE_URL", "http://localhost:3000"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverMySQL)),
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "parlor"),
			Password:        getEnv("DB_PASSWORD", "parlor"),
			Name:            getEnv("DB_NAME", "parlor"),
			SQLitePath:      getEnv("SQLITE_PATH", "./parlor.db"),
			AutoMigrate:     getEnvBool("MIGRATIONS_AUTO", true),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			SessionSecret: getEnv("SESSION_SECRET", ""),
			SessionTTL:    getEnvDuration("SESSION_TTL", 24*time.Hour),
			CookieName:    getEnv("SESSION_COOKIE_NAME", "parlor.sid"),
			HashAlgorithm: strings.ToLower(getEnv("AUTH_HASH_ALGORITHM", "bcrypt")),
			BcryptCost:    getEnvInt("BCRYPT_COST", 12),
		},

		GitHub: OAuthConfig{
			ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			CallbackURL:  getEnv("GITHUB_CALLBACK_URL", "http://localhost:3000/auth/github/callback"),
		},

		OIDC: OAuthConfig{
			IssuerURL:    getEnv("OIDC_ISSUER_URL", ""),
			ClientID:     getEnv("OIDC_CLIENT_ID", ""),
			ClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
			CallbackURL:  getEnv("OIDC_CALLBACK_URL", "http://localhost:3000/auth/oidc/callback"),
		},
	}

	switch cfg.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverMySQL, DriverSQLite, cfg.Database.Driver)
	}

	switch cfg.Auth.HashAlgorithm {
	case "bcrypt", "argon2id":
	default:
		return nil, fmt.Errorf("AUTH_HASH_ALGORITHM must be bcrypt or argon2id, got %q", cfg.Auth.HashAlgorithm)
	}

	if cfg.Auth.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", cfg.Auth.SessionTTL)
	}

	if cfg.OIDC.Enabled() && cfg.OIDC.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC_ISSUER_URL is required when OIDC_CLIENT_ID is set")
	}

	// Validate required fields in production. Case-insensitive check catches
	// common variants like "Production", "prod", etc.
	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.Auth.SessionSecret == "" {
			return nil, fmt.Errorf("SESSION_SECRET is required in production")
		}
		if len(cfg.Auth.SessionSecret) < 32 {
			return nil, fmt.Errorf("SESSION_SECRET must be at least 32 characters in production")
		}
	}

	// Provide a dev-only default secret so local dev works without .env.
	if cfg.Auth.SessionSecret == "" {
		cfg.Auth.SessionSecret = "dev-session-secret-do-not-use-in-prod!!"
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "24h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
