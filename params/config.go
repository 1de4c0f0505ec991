package params

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Log struct {
	File  string // empty: stdout only
	Level string
}

type Book struct {
	// Instruments restricts trading to these keys; empty accepts any
	// well-formed instrument.
	Instruments    []string
	DepthLevels    int
	HistoryMaxPage int
}

type Auth struct {
	ChainID    *big.Int
	DomainName string
}

// Sinks are the optional consumers of executed trades.
type Sinks struct {
	JournalPath  string
	KafkaBrokers []string
	KafkaTopic   string
	AuditLogFile string
}

// Feeder drives synthetic signed order flow into the node's own API.
type Feeder struct {
	Enabled bool
	Mode    string // "default" or "high"
}

type Config struct {
	API    API
	Log    Log
	Book   Book
	Auth   Auth
	Sinks  Sinks
	Feeder Feeder
}

func Default() Config {
	return Config{
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Log: Log{Level: "info"},
		Book: Book{
			DepthLevels:    40,
			HistoryMaxPage: 100,
		},
		Auth: Auth{
			ChainID:    big.NewInt(1337),
			DomainName: "LimitBook",
		},
		Sinks:  Sinks{KafkaTopic: "limitbook.trades"},
		Feeder: Feeder{Mode: "default"},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if v := os.Getenv("API_ALLOWED_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = splitList(v)
	}
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	if v := os.Getenv("BOOK_INSTRUMENTS"); v != "" {
		cfg.Book.Instruments = splitList(strings.ToUpper(v))
	}
	var err error
	if cfg.Book.DepthLevels, err = getEnvInt("BOOK_DEPTH_LEVELS", cfg.Book.DepthLevels); err != nil {
		return cfg, err
	}
	if cfg.Book.HistoryMaxPage, err = getEnvInt("HISTORY_MAX_PAGE", cfg.Book.HistoryMaxPage); err != nil {
		return cfg, err
	}

	if v := os.Getenv("AUTH_CHAIN_ID"); v != "" {
		id, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return cfg, fmt.Errorf("AUTH_CHAIN_ID: invalid integer %q", v)
		}
		cfg.Auth.ChainID = id
	}
	cfg.Auth.DomainName = getEnv("AUTH_DOMAIN_NAME", cfg.Auth.DomainName)

	cfg.Sinks.JournalPath = getEnv("JOURNAL_PATH", cfg.Sinks.JournalPath)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Sinks.KafkaBrokers = splitList(v)
	}
	cfg.Sinks.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Sinks.KafkaTopic)
	cfg.Sinks.AuditLogFile = getEnv("AUDIT_LOG_FILE", cfg.Sinks.AuditLogFile)

	cfg.Feeder.Enabled = os.Getenv("ENABLE_TXGEN") == "true"
	cfg.Feeder.Mode = getEnv("TXGEN_MODE", cfg.Feeder.Mode)

	return cfg, cfg.Validate()
}

// Validate rejects configurations the node cannot run with.
func (c Config) Validate() error {
	if c.API.Addr == "" {
		return fmt.Errorf("API_ADDR must not be empty")
	}
	if c.Book.DepthLevels <= 0 {
		return fmt.Errorf("BOOK_DEPTH_LEVELS must be positive, got %d", c.Book.DepthLevels)
	}
	if c.Book.HistoryMaxPage <= 0 {
		return fmt.Errorf("HISTORY_MAX_PAGE must be positive, got %d", c.Book.HistoryMaxPage)
	}
	if c.Auth.ChainID == nil || c.Auth.ChainID.Sign() <= 0 {
		return fmt.Errorf("AUTH_CHAIN_ID must be positive")
	}
	if c.Auth.DomainName == "" {
		return fmt.Errorf("AUTH_DOMAIN_NAME must not be empty")
	}
	if len(c.Sinks.KafkaBrokers) > 0 && c.Sinks.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC required when KAFKA_BROKERS is set")
	}
	if c.Feeder.Enabled && c.Feeder.Mode != "default" && c.Feeder.Mode != "high" {
		return fmt.Errorf("TXGEN_MODE must be default or high, got %q", c.Feeder.Mode)
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
