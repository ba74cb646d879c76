package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Simplici0/margins/internal/margin"
)

const (
	defaultDBPath      = "./dev.db"
	defaultPort        = "8080"
	defaultEnv         = "dev"
	defaultLogLevel    = "info"
	defaultLogFormat   = "json"
	defaultPriceDigits = 4
	maxPriceDigits     = 12
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	DBPath              string
	Port                string
	Env                 string
	LogLevel            string
	LogFormat           string
	PriceDigits         int32
	MinimumMarginPolicy margin.Policy
	MarginTypesFile     string
	APIToken            string
}

// IsDev reports whether the service runs in the local development environment.
func (c Config) IsDev() bool {
	return c.Env == defaultEnv
}

// Load reads a local .env file when present and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		DBPath:          getenv("DB_PATH", defaultDBPath),
		Port:            getenv("PORT", defaultPort),
		Env:             getenv("APP_ENV", defaultEnv),
		LogLevel:        getenv("LOG_LEVEL", defaultLogLevel),
		LogFormat:       getenv("LOG_FORMAT", defaultLogFormat),
		PriceDigits:     defaultPriceDigits,
		MarginTypesFile: os.Getenv("MARGIN_TYPES_FILE"),
		APIToken:        os.Getenv("API_TOKEN"),
	}

	if raw := strings.TrimSpace(os.Getenv("PRICE_DECIMAL")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxPriceDigits {
			return Config{}, fmt.Errorf("PRICE_DECIMAL must be an integer between 0 and %d, got %q", maxPriceDigits, raw)
		}
		cfg.PriceDigits = int32(n)
	}

	policy, err := margin.ParsePolicy(strings.TrimSpace(os.Getenv("MINIMUM_MARGIN_POLICY")))
	if err != nil {
		return Config{}, err
	}
	cfg.MinimumMarginPolicy = policy

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
