package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/dkurbatov/zayavki-bot/internal/vault"
)

// Config is the process configuration, read from the environment.
type Config struct {
	TelegramToken  string
	CRMBaseURL     string
	VaultKey       []byte
	DatabasePath   string
	OpsAddr        string
	AcademicYearID int
	HTTPTimeout    time.Duration
}

// Load reads configuration from the environment. TELEGRAM_BOT_TOKEN,
// CRM_BASE_URL and VAULT_KEY (base64, 32 bytes decoded) are required;
// everything else has defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("database_path", "zayavki-bot.db")
	v.SetDefault("ops_addr", ":9090")
	v.SetDefault("academic_year_id", 2025)
	v.SetDefault("http_timeout", "10s")

	for _, key := range []string{"telegram_bot_token", "crm_base_url", "vault_key"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{
		TelegramToken:  v.GetString("telegram_bot_token"),
		CRMBaseURL:     v.GetString("crm_base_url"),
		DatabasePath:   v.GetString("database_path"),
		OpsAddr:        v.GetString("ops_addr"),
		AcademicYearID: v.GetInt("academic_year_id"),
		HTTPTimeout:    v.GetDuration("http_timeout"),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.CRMBaseURL == "" {
		return nil, fmt.Errorf("CRM_BASE_URL is required")
	}
	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_TIMEOUT must be positive")
	}

	encoded := v.GetString("vault_key")
	if encoded == "" {
		return nil, fmt.Errorf("VAULT_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("VAULT_KEY is not valid base64: %w", err)
	}
	if len(key) != vault.KeySize {
		return nil, fmt.Errorf("VAULT_KEY must decode to %d bytes, got %d", vault.KeySize, len(key))
	}
	cfg.VaultKey = key

	return cfg, nil
}
