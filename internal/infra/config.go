package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации обоих бинарей (gateway и console).
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MetricsConfig — отдельный listener для Prometheus.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub сигналы control plane).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig — брокеры и топики каналов доставки.
// Пустой список брокеров переключает диспетчер в mock-режим (dev/tests).
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`

	TopicPush   string `mapstructure:"topic_push"`
	TopicOffer  string `mapstructure:"topic_offer"`
	TopicAdjust string `mapstructure:"topic_adjust"`
	TopicGift   string `mapstructure:"topic_gift"`
}

// GatewayConfig содержит специфичные настройки Decision Gateway.
type GatewayConfig struct {
	// Таймаут ожидания Execution Dispatcher. Превышение = FAILED("dispatch_timeout")
	// с компенсацией бюджетной брони.
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`

	// Rate limit на исходящие отправки (RPS и burst)
	DispatchRateLimit float64 `mapstructure:"dispatch_rate_limit"`
	DispatchBurst     int     `mapstructure:"dispatch_burst"`

	// Настройки Circuit Breaker для каналов доставки
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`

	// Буфер фида отметок о реакции игроков (engagement outcomes)
	OutcomeBufferSize    int           `mapstructure:"outcome_buffer_size"`
	OutcomeFlushInterval time.Duration `mapstructure:"outcome_flush_interval"`
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

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("gateway.dispatch_timeout", 10*time.Second)
	v.SetDefault("gateway.dispatch_rate_limit", 100.0)
	v.SetDefault("gateway.dispatch_burst", 20)
	v.SetDefault("gateway.cb_max_requests", 3)
	v.SetDefault("gateway.cb_interval", 5*time.Second)
	v.SetDefault("gateway.cb_timeout", 30*time.Second)
	v.SetDefault("gateway.outcome_buffer_size", 10000)
	v.SetDefault("gateway.outcome_flush_interval", 500*time.Millisecond)

	v.SetDefault("kafka.topic_push", "engagement.push")
	v.SetDefault("kafka.topic_offer", "engagement.offer")
	v.SetDefault("kafka.topic_adjust", "engagement.level-adjust")
	v.SetDefault("kafka.topic_gift", "engagement.gift")
}
