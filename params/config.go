package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type HTTP struct {
	Addr string
	// AllowedOrigins for CORS, comma-separated in the env var
	AllowedOrigins []string
}

type Storage struct {
	DBPath      string
	JournalPath string // trade journal; empty disables it
	LogFile     string
}

type Exchange struct {
	// CashTicker is the single settlement currency. It is registered as an
	// instrument at boot so deposits and balances address it like any ticker.
	CashTicker string

	// Query caps for the public market-data endpoints
	MaxDepthLevels int
	MaxTradeLimit  int
}

type Config struct {
	HTTP     HTTP
	Storage  Storage
	Exchange Exchange
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Storage: Storage{
			DBPath:      "data/spotcore.db",
			JournalPath: "data/trades.log",
			LogFile:     "data/node.log",
		},
		Exchange: Exchange{
			CashTicker:     "RUB",
			MaxDepthLevels: 25,
			MaxTradeLimit:  100,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Optional .env file; absence is not an error
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Storage.DBPath = getEnv("DB_PATH", cfg.Storage.DBPath)
	cfg.Storage.JournalPath = getEnv("TRADE_JOURNAL", cfg.Storage.JournalPath)
	cfg.Storage.LogFile = getEnv("LOG_FILE", cfg.Storage.LogFile)
	cfg.Exchange.CashTicker = getEnv("CASH_TICKER", cfg.Exchange.CashTicker)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = strings.Split(v, ",")
	}

	if v := os.Getenv("MAX_DEPTH_LEVELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Exchange.MaxDepthLevels = n
		}
	}
	if v := os.Getenv("MAX_TRADE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Exchange.MaxTradeLimit = n
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
