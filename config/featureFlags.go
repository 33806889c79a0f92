package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DayLockEnabled serializes sync/desync/reconcile per date through redislock.
// Ignored when redis is not connected.
//
// Set via env:
// - DAY_LOCK_ENABLED=true
func DayLockEnabled() bool {
	return boolFromEnv("DAY_LOCK_ENABLED")
}

// StatementSessionTTL is how long an imported statement stays available between calls.
//
// Set via env:
// - STATEMENT_SESSION_TTL_MINUTES (default 120)
func StatementSessionTTL() time.Duration {
	minutes := intFromEnv("STATEMENT_SESSION_TTL_MINUTES", 120)
	if minutes <= 0 {
		minutes = 120
	}
	return time.Duration(minutes) * time.Minute
}

// DecimalFromEnv reads a decimal setting such as DEFAULT_COEFF_EXO, falling back to def.
func DecimalFromEnv(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
