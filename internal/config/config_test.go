// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "simulador", cfg.Logger.ServiceName)
	assert.Equal(t, 3, cfg.Automation.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Automation.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.Messenger.AckTimeout)
	assert.Equal(t, 30*time.Second, cfg.Automation.TargetTimeout)
	assert.Equal(t, "https://www.superleme.com.br/", cfg.Delivery.BaseURL)
	assert.Contains(t, cfg.Banks.Caixa.URL, "caixa.gov.br")
	assert.Equal(t, "bb.com.br", cfg.Banks.BB.DomainPattern)
	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("automation.max_attempts", 5)
	v.Set("delivery.base_url", "https://superleme.abensoft:8443/")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Automation.MaxAttempts)
	assert.Equal(t, "https://superleme.abensoft:8443/", cfg.Delivery.BaseURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"ZeroAttempts":   func(c *Config) { c.Automation.MaxAttempts = 0 },
		"ZeroPoll":       func(c *Config) { c.Automation.PollInterval = 0 },
		"ZeroAckTimeout": func(c *Config) { c.Messenger.AckTimeout = 0 },
		"EmptyBaseURL":   func(c *Config) { c.Delivery.BaseURL = "" },
		"ZeroRate":       func(c *Config) { c.Delivery.RequestsPerSec = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
