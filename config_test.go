package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	v := viper.New()
	setConfigDefaults(v)

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 20, cfg.FeedPageSize)
	assert.False(t, cfg.IsProd())
	assert.Contains(t, cfg.AllowedOrigins, "http://localhost:3000")
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ROOMIE_MODE", "PROD")
	t.Setenv("ROOMIE_JWT_SECRET", "a-real-secret")
	t.Setenv("ROOMIE_FEED_PAGE_SIZE", "7")
	t.Setenv("ROOMIE_PUBLIC_BASE_URL", "https://roomie.example/")

	v := viper.New()
	setConfigDefaults(v)
	v.SetEnvPrefix("ROOMIE")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "a-real-secret", cfg.JWTSecret)
	assert.Equal(t, 7, cfg.FeedPageSize)
	assert.Equal(t, "https://roomie.example", cfg.PublicBaseURL)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "staging" }},
		{"no dsn", func(c *Config) { c.DSN = "" }},
		{"no secret", func(c *Config) { c.JWTSecret = "" }},
		{"default secret in prod", func(c *Config) { c.Mode = "prod"; c.JWTSecret = defaultJWTSecret }},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }},
		{"page too big", func(c *Config) { c.FeedPageSize = 500 }},
		{"page zero", func(c *Config) { c.FeedPageSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			tt.mutate(c)
			assert.Error(t, c.validate())
		})
	}

	assert.NoError(t, testConfig().validate())
}

func TestSeedConfigValidate(t *testing.T) {
	ok := seedConfig{Count: 10, Password: "secret1", InterestRate: 0.2, MessageRate: 0.5}
	assert.NoError(t, ok.validate())

	bad := []seedConfig{
		{Count: 1, Password: "secret1"},
		{Count: 10, Password: "short"},
		{Count: 10, Password: "secret1", InterestRate: 1.5},
		{Count: 10, Password: "secret1", MessageRate: -0.1},
	}
	for _, c := range bad {
		assert.Error(t, c.validate(), "%+v", c)
	}
}
