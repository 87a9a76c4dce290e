// Package config loads everything from the environment. Credentials arrive
// already resolved; nothing here is persisted.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string

	// SRT account
	MemberNumber string
	Password     string

	// Notification webhook (Discord-compatible). Empty disables alerts.
	WebhookURL string

	// Poll loop tuning
	PollInterval   time.Duration
	BackoffMax     time.Duration
	FailureCeiling int
	AutoBook       bool
	Standby        bool
	Headless       bool

	// Control panel
	CookieHashKey     []byte
	CookieBlockKey    []byte
	PanelPasswordHash string

	// Optional attempt/alert history store. Empty disables it.
	DatabaseURL string
}

func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
		MemberNumber:      strings.TrimSpace(os.Getenv("SRT_MEMBER_NUMBER")),
		Password:          os.Getenv("SRT_PASSWORD"),
		WebhookURL:        strings.TrimSpace(os.Getenv("DISCORD_WEBHOOK_URL")),
		PanelPasswordHash: strings.TrimSpace(os.Getenv("PANEL_PASSWORD_HASH")),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}

	pollSec, err := intEnv("POLL_SECONDS", 2)
	if err != nil || pollSec < 1 {
		return Config{}, fmt.Errorf("invalid POLL_SECONDS")
	}
	cfg.PollInterval = time.Duration(pollSec) * time.Second

	backoffSec, err := intEnv("BACKOFF_MAX_SECONDS", 60)
	if err != nil || backoffSec < 1 {
		return Config{}, fmt.Errorf("invalid BACKOFF_MAX_SECONDS")
	}
	cfg.BackoffMax = time.Duration(backoffSec) * time.Second

	cfg.FailureCeiling, err = intEnv("FAILURE_CEILING", 5)
	if err != nil || cfg.FailureCeiling < 1 {
		return Config{}, fmt.Errorf("invalid FAILURE_CEILING")
	}

	cfg.AutoBook = boolEnv("AUTO_BOOK", true)
	cfg.Standby = boolEnv("WATCH_STANDBY", true)
	cfg.Headless = boolEnv("HEADLESS", true)

	if v := os.Getenv("COOKIE_HASH_KEY"); v != "" {
		if cfg.CookieHashKey, err = decodeB64(v); err != nil {
			return Config{}, fmt.Errorf("COOKIE_HASH_KEY: %w", err)
		}
	}
	if v := os.Getenv("COOKIE_BLOCK_KEY"); v != "" {
		if cfg.CookieBlockKey, err = decodeB64(v); err != nil {
			return Config{}, fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
		}
	}

	return cfg, nil
}

// CheckScrape verifies the settings every watch run needs.
func (c Config) CheckScrape() error {
	if c.MemberNumber == "" || c.Password == "" {
		return fmt.Errorf("SRT_MEMBER_NUMBER and SRT_PASSWORD are required")
	}
	return nil
}

// CheckWeb verifies the settings the control panel needs. Keys are generated
// with `srtwatch keys`, the password hash with `srtwatch hash`.
func (c Config) CheckWeb() error {
	if len(c.CookieHashKey) == 0 || len(c.CookieBlockKey) == 0 {
		return fmt.Errorf("COOKIE_HASH_KEY and COOKIE_BLOCK_KEY are required (base64)")
	}
	if c.PanelPasswordHash == "" {
		return fmt.Errorf("PANEL_PASSWORD_HASH is required")
	}
	return nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func intEnv(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func boolEnv(k string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func decodeB64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
