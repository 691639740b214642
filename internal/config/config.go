// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Query   QueryConfig   `mapstructure:"query" yaml:"query"`
	OCR     OCRConfig     `mapstructure:"ocr" yaml:"ocr"`
	Excel   ExcelConfig   `mapstructure:"excel" yaml:"excel"`
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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the driven browser instance.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath     string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent    string   `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
	Args         []string `mapstructure:"args" yaml:"args"`
}

// NetworkConfig tunes timeouts around browser-bound operations.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	SettleWait        time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	StatusPollMax     time.Duration `mapstructure:"status_poll_max" yaml:"status_poll_max"`
}

// SelectorConfig names the page elements the pipeline interacts with.
// All selectors are XPath expressions.
type SelectorConfig struct {
	IDInput      string `mapstructure:"id_input" yaml:"id_input"`
	CaptchaImage string `mapstructure:"captcha_img" yaml:"captcha_img"`
	CaptchaInput string `mapstructure:"captcha_input" yaml:"captcha_input"`
	SubmitButton string `mapstructure:"submit_btn" yaml:"submit_btn"`
	ResultTable  string `mapstructure:"result_table" yaml:"result_table"`
	CaseCount    string `mapstructure:"case_count" yaml:"case_count"`
}

// RetryConfig bounds the navigation retry state machine.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// CaptchaConfig bounds the captcha solving loop.
type CaptchaConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	MinLength       int           `mapstructure:"min_length" yaml:"min_length"`
	RefreshWaitMin  time.Duration `mapstructure:"refresh_wait_min" yaml:"refresh_wait_min"`
	RefreshWaitMax  time.Duration `mapstructure:"refresh_wait_max" yaml:"refresh_wait_max"`
	StatusPollMax   time.Duration `mapstructure:"status_poll_max" yaml:"status_poll_max"`
	PreCheckPollMax time.Duration `mapstructure:"pre_check_poll_max" yaml:"pre_check_poll_max"`
}

// QueryConfig describes the target site and the per-record pipeline pacing.
type QueryConfig struct {
	URL         string         `mapstructure:"url" yaml:"url"`
	CaptchaPath string         `mapstructure:"captcha_path" yaml:"captcha_path"`
	DOMMarkers  []string       `mapstructure:"dom_markers" yaml:"dom_markers"`
	Selectors   SelectorConfig `mapstructure:"selectors" yaml:"selectors"`
	Retry       RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Captcha     CaptchaConfig  `mapstructure:"captcha" yaml:"captcha"`
	RecordDelay time.Duration  `mapstructure:"record_delay" yaml:"record_delay"`
}

// OCRConfig points at the captcha recognition service.
type OCRConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ExcelConfig names the input columns of the record spreadsheet.
type ExcelConfig struct {
	IDColumn   string `mapstructure:"id_column" yaml:"id_column"`
	NameColumn string `mapstructure:"name_column" yaml:"name_column"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "zxgkquery")
	v.SetDefault("logger.log_file", "zxgkquery.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1566)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.element_timeout", "10s")
	v.SetDefault("network.settle_wait", "2s")
	v.SetDefault("network.status_poll_max", "5s")

	// -- Query target --
	v.SetDefault("query.url", "https://zxgk.court.gov.cn/zhzxgk/")
	v.SetDefault("query.captcha_path", "captcha.do")
	v.SetDefault("query.dom_markers", []string{"captchaImg", "pCardNum"})
	v.SetDefault("query.selectors.id_input", "//input[@id='pCardNum']")
	v.SetDefault("query.selectors.captcha_img", "//img[@id='captchaImg']")
	v.SetDefault("query.selectors.captcha_input", "//input[@id='yzm']")
	v.SetDefault("query.selectors.submit_btn", "//button[contains(.,'查询')]")
	v.SetDefault("query.selectors.result_table", "//table[contains(@class, 'result')]")
	v.SetDefault("query.selectors.case_count", "//span[contains(., '案件')]")
	v.SetDefault("query.retry.max_retries", 5)
	v.SetDefault("query.retry.retry_delay", "3s")
	v.SetDefault("query.captcha.max_attempts", 100)
	v.SetDefault("query.captcha.min_length", 4)
	v.SetDefault("query.captcha.refresh_wait_min", "2s")
	v.SetDefault("query.captcha.refresh_wait_max", "5s")
	v.SetDefault("query.captcha.status_poll_max", "3s")
	v.SetDefault("query.captcha.pre_check_poll_max", "2s")
	v.SetDefault("query.record_delay", "3s")

	// -- OCR --
	v.SetDefault("ocr.endpoint", "http://127.0.0.1:9898/ocr")
	v.SetDefault("ocr.timeout", "15s")

	// -- Excel --
	v.SetDefault("excel.id_column", "身份证号码")
	v.SetDefault("excel.name_column", "姓名")
}

// InitViper wires config file discovery and environment binding onto v.
// An explicit cfgFile wins; otherwise config.yaml is searched in the
// current directory and ~/.zxgkquery.
func InitViper(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.zxgkquery")
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ZXGKQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}
	return nil
}

// NewConfigFromViper creates a validated configuration instance from a viper object.
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

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Query.URL == "" {
		return fmt.Errorf("query.url is a required configuration field")
	}
	if c.Query.Retry.MaxRetries <= 0 {
		return fmt.Errorf("query.retry.max_retries must be a positive integer")
	}
	if c.Query.Captcha.MaxAttempts <= 0 {
		return fmt.Errorf("query.captcha.max_attempts must be a positive integer")
	}
	if c.Query.Captcha.MinLength <= 0 {
		return fmt.Errorf("query.captcha.min_length must be a positive integer")
	}
	if c.Query.Captcha.RefreshWaitMax < c.Query.Captcha.RefreshWaitMin {
		return fmt.Errorf("query.captcha.refresh_wait_max must not be below refresh_wait_min")
	}
	if c.OCR.Endpoint == "" {
		return fmt.Errorf("ocr.endpoint is a required configuration field")
	}
	if c.Excel.IDColumn == "" || c.Excel.NameColumn == "" {
		return fmt.Errorf("excel.id_column and excel.name_column are required")
	}
	return nil
}
