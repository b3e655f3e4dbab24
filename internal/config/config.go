package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	GRPCPort    string
	HTTPPort    string
	CORSOrigins string

	MaxConnections   int
	RateLimitPerMin  int
	MaxMessageSizeMB int
	SaveTimeoutSec   int
	LogLevel         string
	Environment      string

	DBDriver   string
	DBPath     string
	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

func (p *Config) DSN() string {
	if p.DBDriver == DriverSQLite {
		return p.DBPath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBPassword, p.DBName, p.DBSSLMode)
}

// DSNForLog hides the password.
func (p *Config) DSNForLog() string {
	if p.DBDriver == DriverSQLite {
		return p.DBPath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBName, p.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

func (c *Config) SaveTimeout() time.Duration {
	return time.Duration(c.SaveTimeoutSec) * time.Second
}

func (c *Config) MaxMessageBytes() int64 {
	return int64(c.MaxMessageSizeMB) * 1024 * 1024
}

func (c *Config) CORSOriginList() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func LoadConfig() *Config {
	// A missing .env is fine, the process environment is used instead.
	loaded := godotenv.Load() == nil

	cfg := &Config{
		GRPCPort:         getEnv("GRPC_PORT", "50051"),
		HTTPPort:         getEnv("HTTP_PORT", "8000"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "*"),
		MaxConnections:   getEnvInt("MAX_CONNECTIONS", 1000),
		RateLimitPerMin:  getEnvInt("RATE_PER_MIN", 1000),
		MaxMessageSizeMB: getEnvInt("MAX_MESSAGE_SIZE_MB", 1),
		SaveTimeoutSec:   getEnvInt("SAVE_TIMEOUT_SEC", 10),
		LogLevel:         strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		Environment:      getEnv("ENVIRONMENT", "production"),
		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:           getEnv("DB_PATH", "study_sessions.db"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", ""),
		DBName:           getEnv("DB_NAME", "focus_tracker"),
		DBSSLMode:        getEnv("DB_SSLMODE", "disable"),
		EnvFileLoaded:    loaded,
	}
	return cfg
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return xerrors.New("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DBName == "" {
			return xerrors.New("DB_NAME is required for the postgres driver")
		}
	default:
		return xerrors.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.MaxConnections < 1 {
		return xerrors.Errorf("MAX_CONNECTIONS must be positive, got %d", c.MaxConnections)
	}
	if c.MaxMessageSizeMB < 1 {
		return xerrors.Errorf("MAX_MESSAGE_SIZE_MB must be positive, got %d", c.MaxMessageSizeMB)
	}
	if c.SaveTimeoutSec < 1 {
		return xerrors.Errorf("SAVE_TIMEOUT_SEC must be positive, got %d", c.SaveTimeoutSec)
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return xerrors.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

// Warnings lists settings that work but are probably a mistake.
func (c *Config) Warnings() []string {
	var w []string
	if !c.EnvFileLoaded {
		w = append(w, "no .env file found, using system environment variables")
	}
	if c.DBDriver == DriverPostgres && c.DBPassword == "" {
		w = append(w, "DB_PASSWORD is not set")
	}
	if !c.IsDev() {
		for _, o := range c.CORSOriginList() {
			if o == "*" {
				w = append(w, "CORS_ORIGINS allows any origin outside the dev environment")
				break
			}
		}
	}
	return w
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}
