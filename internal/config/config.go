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
	Port int    // 监听端口，默认 8000
}

// MailConfig 定义邮箱服务的核心业务配置
type MailConfig struct {
	Domain         string        // 服务域名后缀，所有临时邮箱均在此域名下
	DefaultTTL     time.Duration // 新建邮箱的默认生存时间，默认 24h
	LocalPartLen   int           // 随机本地部分长度，默认 10
	CreateMaxPerIP int           // 单个 IP 每分钟最多可创建的邮箱数量
}

// PremiumConfig 定义高级版（付费延长有效期）相关配置
type PremiumConfig struct {
	Price    float64       // 高级版价格（业务元数据，此处不做扣费）
	Duration time.Duration // 升级后的有效期，默认 30 天，升级时重置而非叠加
}

// SMTPConfig 定义 SMTP 收信服务器的配置
type SMTPConfig struct {
	BindAddr string // 收信服务监听地址，格式 "host:port"，默认 ":25"
	Domain   string // HELO/EHLO 响应使用的域名
}

// RelayConfig 定义外发邮件中继的连接配置
type RelayConfig struct {
	Host     string // 中继主机
	Port     int    // 中继端口，默认 465（隐式 TLS）
	Username string // 中继认证用户名
	Password string // 中继认证密码
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

// DatabaseConfig 定义数据库连接配置（支持 PostgreSQL 和 MySQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "postgres" 或 "mysql"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 服务配置（用于创建限流计数）
type RedisConfig struct {
	Address  string // Redis 服务地址，留空禁用 Redis，回退到内存计数
	Password string // Redis 认证密码
	DB       int    // Redis 数据库编号，默认 0
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
//
// 在进程启动时构造一次，按引用传入需要它的组件，不使用任何全局单例。
type Config struct {
	Server    ServerConfig
	Mail      MailConfig
	Premium   PremiumConfig
	SMTP      SMTPConfig
	Relay     RelayConfig
	CORS      CORSConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	SecretKey string // 预留的服务密钥，当前逻辑不使用，仅要求存在
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: FLASHMAIL_
// 例如: FLASHMAIL_MAIL_DOMAIN, FLASHMAIL_RELAY_HOST
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("flashmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("mail.domain", "flashmail.dev")
	viper.SetDefault("mail.default_ttl_hours", 24)
	viper.SetDefault("mail.local_part_len", 10)
	viper.SetDefault("mail.create_max_per_ip", 30)
	viper.SetDefault("premium.price", 5.0)
	viper.SetDefault("premium.duration_days", 30)
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.domain", "flashmail.dev")
	viper.SetDefault("relay.host", "")
	viper.SetDefault("relay.port", 465)
	viper.SetDefault("relay.username", "")
	viper.SetDefault("relay.password", "")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("secret_key", "")

	domain := strings.ToLower(strings.TrimSpace(viper.GetString("mail.domain")))
	if domain == "" {
		return nil, fmt.Errorf("mail.domain must not be empty")
	}

	ttlHours := viper.GetInt("mail.default_ttl_hours")
	if ttlHours <= 0 {
		return nil, fmt.Errorf("mail.default_ttl_hours must be positive, got %d", ttlHours)
	}

	localPartLen := viper.GetInt("mail.local_part_len")
	if localPartLen < 6 {
		localPartLen = 10
	}

	maxPerIP := viper.GetInt("mail.create_max_per_ip")
	if maxPerIP <= 0 {
		maxPerIP = 30
	}

	premiumDays := viper.GetInt("premium.duration_days")
	if premiumDays <= 0 {
		premiumDays = 30
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	secretKey := viper.GetString("secret_key")
	if secretKey == "" {
		return nil, fmt.Errorf("secret_key must be set (FLASHMAIL_SECRET_KEY)")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Mail: MailConfig{
			Domain:         domain,
			DefaultTTL:     time.Duration(ttlHours) * time.Hour,
			LocalPartLen:   localPartLen,
			CreateMaxPerIP: maxPerIP,
		},
		Premium: PremiumConfig{
			Price:    viper.GetFloat64("premium.price"),
			Duration: time.Duration(premiumDays) * 24 * time.Hour,
		},
		SMTP: SMTPConfig{
			BindAddr: viper.GetString("smtp.bind_addr"),
			Domain:   viper.GetString("smtp.domain"),
		},
		Relay: RelayConfig{
			Host:     viper.GetString("relay.host"),
			Port:     viper.GetInt("relay.port"),
			Username: viper.GetString("relay.username"),
			Password: viper.GetString("relay.password"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		SecretKey: secretKey,
	}

	return cfg, nil
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
// 先找当前目录的 .env，再找父目录（从 backend/ 子目录运行的情况）。
// 文件不存在时静默跳过；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
