// Package config loads environment and compiled-in configuration: the Riot
// API key, app-wide rate limits, method-level rate limits and database DSNs.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default_method_limits.yaml
var defaultMethodLimitsYAML []byte

// Quota is a single (max_requests, window_seconds) pair.
type Quota struct {
	MaxRequests int
	WindowSecs  int
}

// MethodLimitsFile is the on-disk shape of the method rate-limit table.
type MethodLimitsFile struct {
	Methods map[string]map[string][][2]int `yaml:"methods"`
}

// MethodRateLimits resolves a method+region to its configured quotas.
type MethodRateLimits struct {
	raw MethodLimitsFile
}

// LoadMethodRateLimits loads the compiled-in table, overridden by the file at
// path (if non-empty and present).
func LoadMethodRateLimits(path string) (*MethodRateLimits, error) {
	data := defaultMethodLimitsYAML
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			data = b
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading method rate limits override: %w", err)
		}
	}
	var f MethodLimitsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing method rate limits: %w", err)
	}
	return &MethodRateLimits{raw: f}, nil
}

// GetRateLimit returns the quotas configured for method+region, trying the
// region-specific key first and falling back to "default".
func (m *MethodRateLimits) GetRateLimit(method, region string) ([]Quota, bool) {
	byRegion, ok := m.raw.Methods[method]
	if !ok {
		return nil, false
	}
	pairs, ok := byRegion[region]
	if !ok {
		pairs, ok = byRegion["default"]
	}
	if !ok {
		return nil, false
	}
	quotas := make([]Quota, len(pairs))
	for i, p := range pairs {
		quotas[i] = Quota{MaxRequests: p[0], WindowSecs: p[1]}
	}
	return quotas, true
}

// AppRateLimits is the list of app-wide quotas, read from RIOT_APP_RATE_LIMITS_JSON.
func AppRateLimits() ([]Quota, error) {
	raw := os.Getenv("RIOT_APP_RATE_LIMITS_JSON")
	if raw == "" {
		return nil, fmt.Errorf("config: RIOT_APP_RATE_LIMITS_JSON not set")
	}
	var pairs [][2]int
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, fmt.Errorf("config: parsing RIOT_APP_RATE_LIMITS_JSON: %w", err)
	}
	quotas := make([]Quota, len(pairs))
	for i, p := range pairs {
		quotas[i] = Quota{MaxRequests: p[0], WindowSecs: p[1]}
	}
	return quotas, nil
}

// Env holds the process-wide environment configuration.
type Env struct {
	RiotAPIKey         string
	DatabaseURL        string
	LedgerDatabaseURL  string
	RatelimitLogfile   string
	MethodLimitsFile   string
	LogFormat          string
}

// Load reads .env (if present) then the process environment.
func Load() (*Env, error) {
	_ = godotenv.Load()

	apiKey := os.Getenv("RIOT_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("config: RIOT_API_KEY is required")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = pgDSNFromParts("DJ_PG")
	}
	if dsn == "" {
		return nil, fmt.Errorf("config: DATABASE_URL or DJ_PG_{USERNAME,PASSWORD,DBNAME} is required")
	}

	ledgerDSN := os.Getenv("LEDGER_DATABASE_URL")
	if ledgerDSN == "" {
		ledgerDSN = dsn
	}

	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "text"
	}

	return &Env{
		RiotAPIKey:        apiKey,
		DatabaseURL:       dsn,
		LedgerDatabaseURL: ledgerDSN,
		RatelimitLogfile:  os.Getenv("RATELIMIT_LOGFILE"),
		MethodLimitsFile:  os.Getenv("METHOD_RATE_LIMITS_FILE"),
		LogFormat:         logFormat,
	}, nil
}

// NewLogger builds the process-wide structured logger. LogFormat selects
// between a JSON handler (for shipping to log aggregation) and slog's
// default text handler (for local runs).
func NewLogger(env *Env) *slog.Logger {
	if env.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func pgDSNFromParts(prefix string) string {
	user := os.Getenv(prefix + "_USERNAME")
	pass := os.Getenv(prefix + "_PASSWORD")
	name := os.Getenv(prefix + "_DBNAME")
	if user == "" || name == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@localhost:5432/%s", user, pass, name)
}
