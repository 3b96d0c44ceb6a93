package config

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"

	"github.com/yourusername/examengine-api/internal/service/catengine"
)

// Config хранит все настройки приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	// MaxRetries: Максимальное количество попыток переподключения (-1 - бесконечно).
	MaxRetries int `mapstructure:"max_retries"`

	// MinRetryBackoff: Минимальный интервал между попытками (в миллисекундах).
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`

	// MaxRetryBackoff: Максимальный интервал между попытками (в миллисекундах).
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// EngineConfig содержит настройки адаптивного движка.
// Нулевые значения заменяются умолчаниями из IRT-литературы —
// пороги намеренно конфигурируемы, а не зашиты в код.
type EngineConfig struct {
	SEThreshold             float64 `mapstructure:"se_threshold"`
	MinItems                int     `mapstructure:"min_items"`
	QuadraturePoints        int     `mapstructure:"quadrature_points"`
	ExposurePercentile      float64 `mapstructure:"exposure_percentile"`
	ExposurePenalty         float64 `mapstructure:"exposure_penalty"`
	CalibrationMaxIter      int     `mapstructure:"calibration_max_iter"`
	CalibrationMinResponses int     `mapstructure:"calibration_min_responses"`
	PassingScore            float64 `mapstructure:"passing_score"`
}

// ToEngineConfig собирает конфигурацию движка поверх умолчаний
func (e *EngineConfig) ToEngineConfig() *catengine.Config {
	cfg := catengine.DefaultConfig()
	if e.SEThreshold > 0 {
		cfg.SEThreshold = e.SEThreshold
	}
	if e.MinItems > 0 {
		cfg.MinItems = e.MinItems
	}
	if e.QuadraturePoints > 0 {
		cfg.QuadraturePoints = e.QuadraturePoints
	}
	if e.ExposurePercentile > 0 {
		cfg.ExposurePercentile = e.ExposurePercentile
	}
	if e.ExposurePenalty > 0 {
		cfg.ExposurePenalty = e.ExposurePenalty
	}
	if e.CalibrationMaxIter > 0 {
		cfg.CalibrationMaxIter = e.CalibrationMaxIter
	}
	if e.CalibrationMinResponses > 0 {
		cfg.CalibrationMinResponses = e.CalibrationMinResponses
	}
	if e.PassingScore > 0 {
		cfg.PassingScore = e.PassingScore
	}
	return cfg
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Новый экземпляр Viper, чтобы избежать глобального состояния

	// Привязываем переменные окружения ЯВНО
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("server.port", "SERVER_PORT")

	vip.BindEnv("engine.se_threshold", "ENGINE_SE_THRESHOLD")
	vip.BindEnv("engine.min_items", "ENGINE_MIN_ITEMS")
	vip.BindEnv("engine.passing_score", "ENGINE_PASSING_SCORE")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Логирование конфигурации (только в debug режиме)
	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("Engine SE Threshold: %.2f", cfg.Engine.SEThreshold)
		log.Printf("Engine Min Items: %d", cfg.Engine.MinItems)
		log.Printf("-----------------------------------------")
	}

	return &cfg, nil
}
