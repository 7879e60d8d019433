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

// ProviderConfig 定义上游临时邮箱服务商的接入配置
type ProviderConfig struct {
	OneSecMailBaseURL string // 1secmail API 地址
	MailTmBaseURL     string // mail.tm API 地址
	MailTmEmail       string // mail.tm 预置账号（可选，用于令牌刷新）
	MailTmPassword    string // mail.tm 预置账号密码（可选）
	GuerrillaBaseURL  string // GuerrillaMail ajax API 地址
	TempMailBaseURL   string // tempmail.lol API 地址
	TempMailAPIKey    string // tempmail.lol API Key（可选，决定收件箱有效期）

	// RequestTimeout 单次上游调用的超时上限，所有网络操作都受此约束
	RequestTimeout time.Duration
}

// CacheConfig 定义缓存 TTL 配置
type CacheConfig struct {
	MailboxTTL  time.Duration // 邮箱缓存有效期，默认 1h
	MessagesTTL time.Duration // 邮件列表缓存有效期，默认 5m
	HealthTTL   time.Duration // 服务商健康状态缓存有效期，默认 1m
}

// RateLimitConfig 定义接口限流配置（固定窗口，按 IP+接口计数）
type RateLimitConfig struct {
	GenerateLimit int           // 生成邮箱限额，默认 10 次/窗口
	MessagesLimit int           // 拉取邮件限额，默认 30 次/窗口
	Window        time.Duration // 计数窗口，默认 1h
}

// StreamConfig 定义实时推送配置
type StreamConfig struct {
	PollInterval time.Duration // 推送轮询间隔，默认 3s
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空表示仅输出到控制台
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，留空使用本地内存缓存
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// AuthConfig 定义外部身份令牌的校验配置。
// 身份由外部认证服务签发，这里只做共享密钥校验并提取用户标识。
type AuthConfig struct {
	JWTSecret string // 外部认证服务的 HS256 共享密钥，留空表示全部按游客处理
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Stream    StreamConfig
	CORS      CORSConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TEMPBOX_
// 例如: TEMPBOX_SERVER_PORT, TEMPBOX_PROVIDER_TEMPMAIL_API_KEY
func Load() (*Config, error) {
	// .env 文件是可选的，加载失败静默忽略
	loadEnvFile()

	viper.SetEnvPrefix("tempbox")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("provider.onesecmail_base_url", "https://www.1secmail.com/api/v1/")
	viper.SetDefault("provider.mailtm_base_url", "https://api.mail.tm")
	viper.SetDefault("provider.mailtm_email", "")
	viper.SetDefault("provider.mailtm_password", "")
	viper.SetDefault("provider.guerrilla_base_url", "https://api.guerrillamail.com/ajax.php")
	viper.SetDefault("provider.tempmail_base_url", "https://api.tempmail.lol")
	viper.SetDefault("provider.tempmail_api_key", "")
	viper.SetDefault("provider.request_timeout", "8s")

	viper.SetDefault("cache.mailbox_ttl", "1h")
	viper.SetDefault("cache.messages_ttl", "5m")
	viper.SetDefault("cache.health_ttl", "1m")

	viper.SetDefault("ratelimit.generate_limit", 10)
	viper.SetDefault("ratelimit.messages_limit", 30)
	viper.SetDefault("ratelimit.window", "1h")

	viper.SetDefault("stream.poll_interval", "3s")

	viper.SetDefault("cors.allowed_origins", "*")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")

	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("auth.jwt_secret", "")

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Provider: ProviderConfig{
			OneSecMailBaseURL: viper.GetString("provider.onesecmail_base_url"),
			MailTmBaseURL:     viper.GetString("provider.mailtm_base_url"),
			MailTmEmail:       viper.GetString("provider.mailtm_email"),
			MailTmPassword:    viper.GetString("provider.mailtm_password"),
			GuerrillaBaseURL:  viper.GetString("provider.guerrilla_base_url"),
			TempMailBaseURL:   viper.GetString("provider.tempmail_base_url"),
			TempMailAPIKey:    viper.GetString("provider.tempmail_api_key"),
			RequestTimeout:    viper.GetDuration("provider.request_timeout"),
		},
		Cache: CacheConfig{
			MailboxTTL:  viper.GetDuration("cache.mailbox_ttl"),
			MessagesTTL: viper.GetDuration("cache.messages_ttl"),
			HealthTTL:   viper.GetDuration("cache.health_ttl"),
		},
		RateLimit: RateLimitConfig{
			GenerateLimit: viper.GetInt("ratelimit.generate_limit"),
			MessagesLimit: viper.GetInt("ratelimit.messages_limit"),
			Window:        viper.GetDuration("ratelimit.window"),
		},
		Stream: StreamConfig{
			PollInterval: viper.GetDuration("stream.poll_interval"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitAndTrim(viper.GetString("cors.allowed_origins")),
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			JWTSecret: viper.GetString("auth.jwt_secret"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate 校验配置合法性
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Type != "" && c.Database.Type != "mysql" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s (supported: mysql, postgres)", c.Database.Type)
	}
	if c.Database.Type != "" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when database.type is set")
	}
	if c.Provider.RequestTimeout <= 0 {
		return fmt.Errorf("provider.request_timeout must be positive")
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream.poll_interval must be positive")
	}
	if c.RateLimit.GenerateLimit <= 0 || c.RateLimit.MessagesLimit <= 0 {
		return fmt.Errorf("ratelimit limits must be positive")
	}
	return nil
}

// loadEnvFile 尝试加载 .env 文件（当前目录或父目录）
func loadEnvFile() {
	candidates := []string{".env", filepath.Join("..", ".env")}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// splitAndTrim 按逗号切分并去除空白
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
