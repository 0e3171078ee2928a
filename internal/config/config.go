// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Automation AutomationConfig `mapstructure:"automation" yaml:"automation"`
	Messenger  MessengerConfig  `mapstructure:"messenger" yaml:"messenger"`
	Delivery   DeliveryConfig   `mapstructure:"delivery" yaml:"delivery"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Banks      BanksConfig      `mapstructure:"banks" yaml:"banks"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
}

// AutomationConfig tunes the DOM automation engines.
type AutomationConfig struct {
	// MaxAttempts bounds field fills, dropdown selections and whole-run
	// retries alike.
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	WaitShort     time.Duration `mapstructure:"wait_short" yaml:"wait_short"`
	WaitLong      time.Duration `mapstructure:"wait_long" yaml:"wait_long"`
	ResultWait    time.Duration `mapstructure:"result_wait" yaml:"result_wait"`
	TargetTimeout time.Duration `mapstructure:"target_timeout" yaml:"target_timeout"`
	TypeDelay     time.Duration `mapstructure:"type_delay" yaml:"type_delay"`
}

// MessengerConfig tunes the result bridge between engines and orchestrator.
type MessengerConfig struct {
	AckTimeout           time.Duration `mapstructure:"ack_timeout" yaml:"ack_timeout"`
	SecondStepAckTimeout time.Duration `mapstructure:"second_step_ack_timeout" yaml:"second_step_ack_timeout"`
}

// DeliveryConfig holds the remote backend connection details.
type DeliveryConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec" yaml:"requests_per_sec"`
	SimID          string        `mapstructure:"sim_id" yaml:"sim_id"`
	IFID           string        `mapstructure:"if_id" yaml:"if_id"`
}

// StoreConfig locates the file-backed state store.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// BankConfig describes one bank's entry point.
type BankConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	DomainPattern string `mapstructure:"domain_pattern" yaml:"domain_pattern"`
}

// BanksConfig holds the per-bank entry points.
type BanksConfig struct {
	Caixa BankConfig `mapstructure:"caixa" yaml:"caixa"`
	BB    BankConfig `mapstructure:"bb" yaml:"bb"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "simulador")
	v.SetDefault("logger.log_file", "simulador.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})

	// -- Automation --
	v.SetDefault("automation.max_attempts", 3)
	v.SetDefault("automation.retry_delay", "1s")
	v.SetDefault("automation.poll_interval", "200ms")
	v.SetDefault("automation.wait_short", "5s")
	v.SetDefault("automation.wait_long", "25s")
	v.SetDefault("automation.result_wait", "60s")
	v.SetDefault("automation.target_timeout", "30s")
	v.SetDefault("automation.type_delay", "35ms")

	// -- Messenger --
	v.SetDefault("messenger.ack_timeout", "15s")
	v.SetDefault("messenger.second_step_ack_timeout", "5s")

	// -- Delivery --
	v.SetDefault("delivery.base_url", "https://www.superleme.com.br/")
	v.SetDefault("delivery.timeout", "30s")
	v.SetDefault("delivery.requests_per_sec", 2.0)

	// -- Store --
	v.SetDefault("store.path", "simulador-state.json")

	// -- Banks --
	v.SetDefault("banks.caixa.url", "https://www8.caixa.gov.br/siopiinternet-web/simulaOperacaoInternet.do?method=inicializarCasoUso")
	v.SetDefault("banks.caixa.domain_pattern", "caixa.gov.br")
	v.SetDefault("banks.bb.url", "https://www42.bb.com.br/portalbb/imobiliario/creditoimobiliario/simular,802,2250,2250.bbx")
	v.SetDefault("banks.bb.domain_pattern", "bb.com.br")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Automation.MaxAttempts <= 0 {
		return fmt.Errorf("automation.max_attempts must be a positive integer")
	}
	if c.Automation.PollInterval <= 0 {
		return fmt.Errorf("automation.poll_interval must be a positive duration")
	}
	if c.Messenger.AckTimeout <= 0 {
		return fmt.Errorf("messenger.ack_timeout must be a positive duration")
	}
	if c.Delivery.BaseURL == "" {
		return fmt.Errorf("delivery.base_url is a required configuration field")
	}
	if c.Delivery.RequestsPerSec <= 0 {
		return fmt.Errorf("delivery.requests_per_sec must be positive")
	}
	return nil
}
