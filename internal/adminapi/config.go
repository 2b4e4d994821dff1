package adminapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr          = ":9090"
	defaultAllowedOrigin       = "http://localhost:8000"
	defaultSessionIssuer       = "reviewramp"
	defaultRequestTimeout      = 3 * time.Second
	defaultLedgerHistoryLimit  = 50
	roleAdmin                  = "admin"
	authorizationHeader        = "Authorization"
	authorizationBearerPrefix  = "Bearer "
	contextKeyActor            = "auth_actor"
)

// Config aggregates runtime settings for the admin API.
type Config struct {
	ListenAddr         string
	AllowedOrigins     []string
	SessionSigningKey  string
	SessionIssuer      string
	RequestTimeout     time.Duration
	LedgerHistoryLimit int
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.LedgerHistoryLimit <= 0 {
		cfg.LedgerHistoryLimit = defaultLedgerHistoryLimit
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen addr is required")
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	if strings.TrimSpace(cfg.SessionIssuer) == "" {
		return fmt.Errorf("jwt issuer is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
