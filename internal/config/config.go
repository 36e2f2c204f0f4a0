package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	MinPageSize = 1
	MaxPageSize = 500

	MinRequestsPerSecond = 1
	MaxRequestsPerSecond = 20
)

type Config struct {
	// ServePoint (source volunteer platform, client-credentials flow)
	ServePointBaseURL      string
	ServePointTokenURL     string
	ServePointClientID     string
	ServePointClientSecret string
	ServePointTokenFile    string

	// Beacon CRM (destination, authorization-code + refresh flow)
	BeaconBaseURL         string
	BeaconTokenURL        string
	BeaconClientID        string
	BeaconClientSecret    string
	BeaconSubscriptionKey string
	BeaconTokenFile       string

	// Optional first-deploy seed when no Beacon token file exists yet
	BeaconAccessTokenSeed  string
	BeaconRefreshTokenSeed string

	// Persisted state files
	EventMappingFile       string
	ConstituentMappingFile string
	FundMappingFile        string
	DefaultFundID          string

	PageSize          int
	RequestsPerSecond int
	LogLevel          string
	LogFormat         string
	LogFile           string
	MetricsAddr       string
}

// Load reads configuration from the environment, loading the given .env
// files first (default ".env" when none are passed). Missing required keys
// are reported by Validate, not here, so read-only commands can still run.
func Load(envFiles ...string) *Config {
	if len(envFiles) > 0 {
		_ = godotenv.Load(envFiles...)
	} else {
		_ = godotenv.Load()
	}

	pageSize := getEnvInt("PAGE_SIZE", 100)
	if pageSize > MaxPageSize {
		slog.Warn("PAGE_SIZE exceeds safety limit. Clamping to maximum", "requested", pageSize, "limit", MaxPageSize)
		pageSize = MaxPageSize
	} else if pageSize < MinPageSize {
		pageSize = MinPageSize
	}

	rps := getEnvInt("REQUESTS_PER_SECOND", 5)
	if rps > MaxRequestsPerSecond {
		slog.Warn("REQUESTS_PER_SECOND exceeds safety limit. Clamping to maximum", "requested", rps, "limit", MaxRequestsPerSecond)
		rps = MaxRequestsPerSecond
	} else if rps < MinRequestsPerSecond {
		rps = MinRequestsPerSecond
	}

	spBase := getEnv("SERVEPOINT_BASE_URL", "https://api.servepoint.io")
	return &Config{
		ServePointBaseURL:      spBase,
		ServePointTokenURL:     getEnv("SERVEPOINT_TOKEN_URL", spBase+"/oauth/token"),
		ServePointClientID:     getEnv("SERVEPOINT_CLIENT_ID", ""),
		ServePointClientSecret: getEnv("SERVEPOINT_CLIENT_SECRET", ""),
		ServePointTokenFile:    getEnv("SERVEPOINT_TOKEN_FILE", "tokens/servepoint_token.json"),

		BeaconBaseURL:         getEnv("BEACON_BASE_URL", "https://api.beaconcrm.org"),
		BeaconTokenURL:        getEnv("BEACON_TOKEN_URL", "https://oauth2.beaconcrm.org/token"),
		BeaconClientID:        getEnv("BEACON_CLIENT_ID", ""),
		BeaconClientSecret:    getEnv("BEACON_CLIENT_SECRET", ""),
		BeaconSubscriptionKey: getEnv("BEACON_SUBSCRIPTION_KEY", ""),
		BeaconTokenFile:       getEnv("BEACON_TOKEN_FILE", "tokens/beacon_token.json"),

		BeaconAccessTokenSeed:  getEnv("BEACON_ACCESS_TOKEN", ""),
		BeaconRefreshTokenSeed: getEnv("BEACON_REFRESH_TOKEN", ""),

		EventMappingFile:       getEnv("EVENT_MAPPING_FILE", "mappings/event_mappings.json"),
		ConstituentMappingFile: getEnv("CONSTITUENT_MAPPING_FILE", "mappings/constituent_mappings.json"),
		FundMappingFile:        getEnv("FUND_MAPPING_FILE", "mappings/fund_mappings.json"),
		DefaultFundID:          getEnv("DEFAULT_FUND_ID", ""),

		PageSize:          pageSize,
		RequestsPerSecond: rps,
		LogLevel:          getEnv("LOG_LEVEL", "INFO"),
		LogFormat:         getEnv("LOG_FORMAT", "TEXT"),
		LogFile:           getEnv("LOG_FILE", "missionsync.log"),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9091"),
	}
}

// Validate reports every missing credential at once so an operator can fix
// the environment in a single pass instead of replaying the sync per key.
func (c *Config) Validate() error {
	var missing []string

	required := []struct {
		key   string
		value string
	}{
		{"SERVEPOINT_CLIENT_ID", c.ServePointClientID},
		{"SERVEPOINT_CLIENT_SECRET", c.ServePointClientSecret},
		{"BEACON_CLIENT_ID", c.BeaconClientID},
		{"BEACON_CLIENT_SECRET", c.BeaconClientSecret},
		{"BEACON_SUBSCRIPTION_KEY", c.BeaconSubscriptionKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
