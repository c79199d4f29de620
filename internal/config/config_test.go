package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"FLASHMAIL_SERVER_HOST",
		"FLASHMAIL_SERVER_PORT",
		"FLASHMAIL_MAILBOX_ALLOWED_DOMAINS",
		"FLASHMAIL_MAILBOX_DEFAULT_DOMAIN",
		"FLASHMAIL_MAILBOX_TTL",
		"FLASHMAIL_SMTP_BIND_ADDR",
		"FLASHMAIL_SMTP_DOMAIN",
		"FLASHMAIL_REDIS_ADDRESS",
		"FLASHMAIL_CORS_ALLOWED_ORIGINS",
		"FLASHMAIL_LOG_LEVEL",
		"FLASHMAIL_RATELIMIT_RPS",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	clearEnv := func() {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
	}

	t.Run("加载默认配置成功", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"temp-mail.local"}, cfg.Mailbox.AllowedDomains)
		assert.Equal(t, "temp-mail.local", cfg.Mailbox.DefaultDomain)
		assert.Equal(t, time.Hour, cfg.Mailbox.TTL)
		assert.Equal(t, ":2525", cfg.SMTP.BindAddr)
		assert.Equal(t, int64(10*1024*1024), cfg.SMTP.MaxMessageBytes)
		assert.Equal(t, "localhost:6379", cfg.Redis.Address)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, 10.0, cfg.RateLimit.RPS)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLASHMAIL_SERVER_PORT", "9090")
		os.Setenv("FLASHMAIL_MAILBOX_ALLOWED_DOMAINS", "Mail.One, mail.two")
		os.Setenv("FLASHMAIL_MAILBOX_TTL", "30m")
		os.Setenv("FLASHMAIL_REDIS_ADDRESS", "redis:6380")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		// 域名列表统一小写
		assert.Equal(t, []string{"mail.one", "mail.two"}, cfg.Mailbox.AllowedDomains)
		assert.Equal(t, 30*time.Minute, cfg.Mailbox.TTL)
		assert.Equal(t, "redis:6380", cfg.Redis.Address)
	})

	t.Run("默认域名取允许列表首项", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLASHMAIL_MAILBOX_ALLOWED_DOMAINS", "first.com,second.com")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "first.com", cfg.Mailbox.DefaultDomain)
	})

	t.Run("指定默认域名", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLASHMAIL_MAILBOX_ALLOWED_DOMAINS", "first.com,second.com")
		os.Setenv("FLASHMAIL_MAILBOX_DEFAULT_DOMAIN", "second.com")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "second.com", cfg.Mailbox.DefaultDomain)
	})

	t.Run("默认域名不在允许列表中报错", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLASHMAIL_MAILBOX_ALLOWED_DOMAINS", "first.com")
		os.Setenv("FLASHMAIL_MAILBOX_DEFAULT_DOMAIN", "other.com")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("非法TTL报错", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLASHMAIL_MAILBOX_TTL", "not-a-duration")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("TTL必须为正", func(t *testing.T) {
		clearEnv()
		os.Setenv("FLASHMAIL_MAILBOX_TTL", "-1h")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList("a, b"))
	assert.Equal(t, []string{"a"}, parseList("a,,  ,"))
	assert.Empty(t, parseList(""))
}
