package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	ServiceNow ServiceNowConfig `mapstructure:"servicenow"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера консоли.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и Cache).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// ServiceNowConfig описывает внешний инстанс ServiceNow.
type ServiceNowConfig struct {
	BaseURL  string        `mapstructure:"base_url"` // https://<instance>.service-now.com
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// Защита коннектора (лимитер и предохранитель)
	RateLimit float64       `mapstructure:"rate_limit"` // Запросов в секунду
	RateBurst int           `mapstructure:"rate_burst"`
	CBTimeout time.Duration `mapstructure:"cb_timeout"` // Через сколько CB пробует закрыться
}

// EngineConfig содержит настройки движка выполнения и журнала аудита.
type EngineConfig struct {
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из файла ИЛИ из ENV (для Docker/K8s PEM может
	// прилетать напрямую в переменной окружения)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("servicenow.timeout", 30*time.Second)
	v.SetDefault("servicenow.rate_limit", 10)
	v.SetDefault("servicenow.rate_burst", 5)
	v.SetDefault("servicenow.cb_timeout", 30*time.Second)
	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
}

// loadKeyResource — универсальный хелпер для секретов «ENV или файл»
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
