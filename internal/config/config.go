package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// MailboxConfig 定义邮箱服务的核心业务配置
type MailboxConfig struct {
	AllowedDomains []string      // 允许接收邮件的域名列表
	DefaultDomain  string        // 未指定域名时使用的默认域名
	TTL            time.Duration // 邮箱及邮件的生存时间，过期后自动清理
}

// SMTPConfig 定义 SMTP 邮件接收服务器的配置
type SMTPConfig struct {
	BindAddr        string // SMTP 服务监听地址，格式 "host:port"，默认 ":2525"
	Domain          string // SMTP 服务器域名，用于 HELO/EHLO 响应
	MaxMessageBytes int64  // 单封邮件最大字节数
	MaxConnections  int    // 最大并发连接数
	MaxConnRate     int    // 每秒最大新建连接数
}

// RedisConfig 定义 Redis 存储服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// RateLimitConfig 定义 API 限流配置
type RateLimitConfig struct {
	RPS   float64 // 每个 IP 每秒允许的请求数
	Burst int     // 突发请求上限
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	Mailbox   MailboxConfig
	SMTP      SMTPConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: FLASHMAIL_
// 例如: FLASHMAIL_SERVER_HOST, FLASHMAIL_MAILBOX_ALLOWED_DOMAINS
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("flashmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("mailbox.allowed_domains", "temp-mail.local")
	viper.SetDefault("mailbox.default_domain", "")
	viper.SetDefault("mailbox.ttl", "1h")
	viper.SetDefault("smtp.bind_addr", ":2525")
	viper.SetDefault("smtp.domain", "temp-mail.local")
	viper.SetDefault("smtp.max_message_bytes", 10*1024*1024)
	viper.SetDefault("smtp.max_connections", 100)
	viper.SetDefault("smtp.max_conn_rate", 20)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("ratelimit.rps", 10.0)
	viper.SetDefault("ratelimit.burst", 30)

	ttlStr := viper.GetString("mailbox.ttl")
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.ttl: %w", err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("mailbox.ttl must be positive")
	}

	domainList := parseDomains(viper.GetString("mailbox.allowed_domains"))
	if len(domainList) == 0 {
		return nil, fmt.Errorf("mailbox.allowed_domains must not be empty")
	}

	defaultDomain := strings.ToLower(strings.TrimSpace(viper.GetString("mailbox.default_domain")))
	if defaultDomain == "" {
		defaultDomain = domainList[0]
	} else if !containsDomain(domainList, defaultDomain) {
		return nil, fmt.Errorf("mailbox.default_domain %q is not in allowed_domains", defaultDomain)
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	maxMessageBytes := viper.GetInt64("smtp.max_message_bytes")
	if maxMessageBytes <= 0 {
		maxMessageBytes = 10 * 1024 * 1024
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Mailbox: MailboxConfig{
			AllowedDomains: domainList,
			DefaultDomain:  defaultDomain,
			TTL:            ttl,
		},
		SMTP: SMTPConfig{
			BindAddr:        viper.GetString("smtp.bind_addr"),
			Domain:          viper.GetString("smtp.domain"),
			MaxMessageBytes: maxMessageBytes,
			MaxConnections:  viper.GetInt("smtp.max_connections"),
			MaxConnRate:     viper.GetInt("smtp.max_conn_rate"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		RateLimit: RateLimitConfig{
			RPS:   viper.GetFloat64("ratelimit.rps"),
			Burst: viper.GetInt("ratelimit.burst"),
		},
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func containsDomain(domains []string, domain string) bool {
	for _, d := range domains {
		if d == domain {
			return true
		}
	}
	return false
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
