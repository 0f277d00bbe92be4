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

// IngestConfig 定义入站邮件处理配置
type IngestConfig struct {
	MaxFieldLength int   // 正文字段截断上限（字节），默认 64KB
	MaxBodyBytes   int64 // webhook 请求体硬上限（字节），超出直接拒绝
}

// StoreConfig 定义邮件存储与清理配置
type StoreConfig struct {
	ListLimit       int           // 按地址查询的默认返回条数上限
	Retention       time.Duration // 邮件保留时长，过期自动清理
	CleanupInterval time.Duration // 后台清理任务执行间隔
}

// SMTPConfig 定义 SMTP 邮件接收服务器的配置
type SMTPConfig struct {
	Enabled        bool     // 是否启用 SMTP 接收
	BindAddr       string   // SMTP 服务监听地址，格式 "host:port"，默认 ":25"
	Domain         string   // SMTP 服务器域名，用于 HELO/EHLO 响应
	AllowedDomains []string // 接受投递的收件域名列表，空表示接受所有
	MaxConnections int      // 最大并发连接数
	MaxConnRate    int      // 每秒新建连接数上限
	MaxMessageSize int64    // 单封邮件最大字节数
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到标准输出
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Enabled  bool   // 是否启用 Redis（多实例部署时共享限流计数）
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// RateLimitConfig 定义 HTTP 限流配置
type RateLimitConfig struct {
	Enabled  bool          // 是否启用限流
	Requests int64         // 窗口内每 IP 最大请求数
	Window   time.Duration // 限流窗口时长
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig    // HTTP 服务器配置
	Ingest    IngestConfig    // 入站处理配置
	Store     StoreConfig     // 存储与清理配置
	SMTP      SMTPConfig      // SMTP 服务配置
	CORS      CORSConfig      // 跨域配置
	Log       LogConfig       // 日志配置
	Database  DatabaseConfig  // 数据库配置
	Redis     RedisConfig     // Redis 配置
	RateLimit RateLimitConfig // 限流配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TEMPINBOX_
// 例如: TEMPINBOX_SERVER_PORT, TEMPINBOX_DATABASE_DSN
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("tempinbox")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("ingest.max_field_length", 64*1024)
	viper.SetDefault("ingest.max_body_bytes", 10*1024*1024)
	viper.SetDefault("store.list_limit", 50)
	viper.SetDefault("store.retention", "24h")
	viper.SetDefault("store.cleanup_interval", "1h")
	viper.SetDefault("smtp.enabled", false)
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.domain", "temp.inbox")
	viper.SetDefault("smtp.allowed_domains", "")
	viper.SetDefault("smtp.max_connections", 64)
	viper.SetDefault("smtp.max_conn_rate", 10)
	viper.SetDefault("smtp.max_message_size", 10*1024*1024)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.enabled", true)
	viper.SetDefault("ratelimit.requests", 120)
	viper.SetDefault("ratelimit.window", "1m")

	dbType := viper.GetString("database.type")
	if dbType != "" && dbType != "mysql" && dbType != "postgres" {
		return nil, fmt.Errorf("invalid database.type: %q (supported: mysql, postgres, empty for in-memory)", dbType)
	}
	if dbType != "" && viper.GetString("database.dsn") == "" {
		return nil, fmt.Errorf("database.dsn is required when database.type is set")
	}

	retention, err := time.ParseDuration(viper.GetString("store.retention"))
	if err != nil {
		return nil, fmt.Errorf("invalid store.retention: %w", err)
	}
	cleanupInterval, err := time.ParseDuration(viper.GetString("store.cleanup_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid store.cleanup_interval: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	rateLimitWindow, err := time.ParseDuration(viper.GetString("ratelimit.window"))
	if err != nil {
		rateLimitWindow = time.Minute
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	maxFieldLength := viper.GetInt("ingest.max_field_length")
	if maxFieldLength <= 0 {
		return nil, fmt.Errorf("ingest.max_field_length must be positive")
	}
	maxBodyBytes := viper.GetInt64("ingest.max_body_bytes")
	if maxBodyBytes <= int64(maxFieldLength) {
		return nil, fmt.Errorf("ingest.max_body_bytes must exceed ingest.max_field_length")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Ingest: IngestConfig{
			MaxFieldLength: maxFieldLength,
			MaxBodyBytes:   maxBodyBytes,
		},
		Store: StoreConfig{
			ListLimit:       viper.GetInt("store.list_limit"),
			Retention:       retention,
			CleanupInterval: cleanupInterval,
		},
		SMTP: SMTPConfig{
			Enabled:        viper.GetBool("smtp.enabled"),
			BindAddr:       viper.GetString("smtp.bind_addr"),
			Domain:         viper.GetString("smtp.domain"),
			AllowedDomains: parseDomains(viper.GetString("smtp.allowed_domains")),
			MaxConnections: viper.GetInt("smtp.max_connections"),
			MaxConnRate:    viper.GetInt("smtp.max_conn_rate"),
			MaxMessageSize: viper.GetInt64("smtp.max_message_size"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  viper.GetBool("ratelimit.enabled"),
			Requests: viper.GetInt64("ratelimit.requests"),
			Window:   rateLimitWindow,
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

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
//
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
