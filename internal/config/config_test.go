package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.Equal(t, "https://api.mail.tm", cfg.Provider.MailTmBaseURL)
	assert.Equal(t, 8*time.Second, cfg.Provider.RequestTimeout)

	assert.Equal(t, time.Hour, cfg.Cache.MailboxTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.MessagesTTL)
	assert.Equal(t, time.Minute, cfg.Cache.HealthTTL)

	assert.Equal(t, 10, cfg.RateLimit.GenerateLimit)
	assert.Equal(t, 30, cfg.RateLimit.MessagesLimit)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)

	assert.Equal(t, 3*time.Second, cfg.Stream.PollInterval)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)

	// 默认内存存储 + 本地缓存
	assert.Empty(t, cfg.Database.Type)
	assert.Empty(t, cfg.Redis.Address)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TEMPBOX_SERVER_PORT", "9090")
	t.Setenv("TEMPBOX_LOG_LEVEL", "debug")
	t.Setenv("TEMPBOX_STREAM_POLL_INTERVAL", "5s")
	t.Setenv("TEMPBOX_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Stream.PollInterval)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	t.Run("非法端口", func(t *testing.T) {
		t.Setenv("TEMPBOX_SERVER_PORT", "-1")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("不支持的数据库类型", func(t *testing.T) {
		t.Setenv("TEMPBOX_DATABASE_TYPE", "sqlite")
		t.Setenv("TEMPBOX_DATABASE_DSN", "file::memory:")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("配置数据库类型但缺少DSN", func(t *testing.T) {
		t.Setenv("TEMPBOX_DATABASE_TYPE", "mysql")
		t.Setenv("TEMPBOX_DATABASE_DSN", "")
		_, err := Load()
		assert.Error(t, err)
	})
}
