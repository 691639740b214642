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
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "zxgkquery", cfg.Logger.ServiceName)
	assert.Equal(t, "https://zxgk.court.gov.cn/zhzxgk/", cfg.Query.URL)
	assert.Equal(t, "captcha.do", cfg.Query.CaptchaPath)
	assert.Equal(t, []string{"captchaImg", "pCardNum"}, cfg.Query.DOMMarkers)
	assert.Equal(t, 5, cfg.Query.Retry.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Query.Retry.RetryDelay)
	assert.Equal(t, 100, cfg.Query.Captcha.MaxAttempts)
	assert.Equal(t, 4, cfg.Query.Captcha.MinLength)
	assert.Equal(t, "//input[@id='pCardNum']", cfg.Query.Selectors.IDInput)
	assert.Equal(t, "身份证号码", cfg.Excel.IDColumn)

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.Query.URL = "" }},
		{"zero retries", func(c *Config) { c.Query.Retry.MaxRetries = 0 }},
		{"zero captcha attempts", func(c *Config) { c.Query.Captcha.MaxAttempts = 0 }},
		{"zero min length", func(c *Config) { c.Query.Captcha.MinLength = 0 }},
		{"inverted refresh window", func(c *Config) {
			c.Query.Captcha.RefreshWaitMin = 5 * time.Second
			c.Query.Captcha.RefreshWaitMax = 2 * time.Second
		}},
		{"missing ocr endpoint", func(c *Config) { c.OCR.Endpoint = "" }},
		{"missing excel columns", func(c *Config) { c.Excel.IDColumn = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewConfigFromViperAppliesOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("query.retry.max_retries", 2)
	v.Set("query.record_delay", "500ms")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Query.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Query.RecordDelay)
}

func TestNewConfigFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("ocr.endpoint", "")

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
}
