// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ErrConfiguration — конфигурация неполна или некорректна.
// Возникает только на старте процесса, никогда — в обработке запроса.
var ErrConfiguration = errors.New("invalid configuration")

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Алгоритмы хэширования паролей.
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Ops      OpsConfig     `yaml:"ops"`
	GRPC     GRPCConfig    `yaml:"grpc"`
	JWT      JWTConfig     `yaml:"jwt"`
	Auth     AuthConfig    `yaml:"auth"`
	Storage  StorageConfig `yaml:"storage"`
	DB       DBConfig      `yaml:"db"`
	SQLite   SQLiteConfig  `yaml:"sqlite"`
	Redis    RedisConfig   `yaml:"redis"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Janitor  JanitorConfig `yaml:"janitor"`
	Tracing  TracingConfig `yaml:"tracing"`
}

// HTTPConfig — публичный HTTP API (register/login/refresh).
type HTTPConfig struct {
	Host     string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH" env-default:"/api/auth"`
}

// OpsConfig — служебный HTTP (livez/healthz/metrics).
type OpsConfig struct {
	Host string `yaml:"host" env:"OPS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"OPS_PORT" env-default:"50081"`
}

// GRPCConfig описывает сетевые настройки gRPC-сервера (health/reflection).
type GRPCConfig struct {
	Host string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"50051"`
}

// Addr возвращает адрес в формате host:port.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Addr возвращает адрес в формате host:port.
func (c OpsConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Addr возвращает адрес в формате host:port.
func (c GRPCConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// JWTConfig содержит параметры подписи access-токенов и срок жизни refresh-токенов.
// Длительности задаются числами (минуты/дни), допускаются дробные значения.
type JWTConfig struct {
	Key                        string  `yaml:"key" env:"JWT_KEY"`
	Issuer                     string  `yaml:"issuer" env:"JWT_ISSUER"`
	Audience                   string  `yaml:"audience" env:"JWT_AUDIENCE"`
	AccessTokenDurationMinutes float64 `yaml:"access_token_duration_minutes" env:"JWT_ACCESS_TOKEN_DURATION_MINUTES"`
	RefreshTokenDurationDays   float64 `yaml:"refresh_token_duration_days" env:"JWT_REFRESH_TOKEN_DURATION_DAYS"`
}

// AccessTokenTTL возвращает срок жизни access-токена.
func (c JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenDurationMinutes * float64(time.Minute))
}

// RefreshTokenTTL возвращает срок жизни refresh-токена.
func (c JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenDurationDays * 24 * float64(time.Hour))
}

// Validate проверяет параметры подписи. Любая ошибка оборачивает ErrConfiguration.
func (c JWTConfig) Validate() error {
	const op = "config.JWTConfig.Validate"

	switch {
	case strings.TrimSpace(c.Key) == "":
		return fmt.Errorf("%s: %w: jwt.key is required", op, ErrConfiguration)
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%s: %w: jwt.issuer is required", op, ErrConfiguration)
	case strings.TrimSpace(c.Audience) == "":
		return fmt.Errorf("%s: %w: jwt.audience is required", op, ErrConfiguration)
	case c.AccessTokenTTL() <= 0:
		return fmt.Errorf("%s: %w: jwt.access_token_duration_minutes must be positive", op, ErrConfiguration)
	case c.RefreshTokenTTL() <= 0:
		return fmt.Errorf("%s: %w: jwt.refresh_token_duration_days must be positive", op, ErrConfiguration)
	}

	return nil
}

// AuthConfig — политика паролей и параметры хэширования.
type AuthConfig struct {
	PasswordHasher    string `yaml:"password_hasher" env:"AUTH_PASSWORD_HASHER" env-default:"bcrypt"`
	BcryptCost        int    `yaml:"bcrypt_cost" env:"AUTH_BCRYPT_COST" env-default:"10"`
	MinPasswordLength int    `yaml:"min_password_length" env:"AUTH_MIN_PASSWORD_LENGTH" env-default:"1"`
}

// StorageConfig выбирает драйвер хранилища.
type StorageConfig struct {
	Driver  string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	Migrate bool   `yaml:"migrate" env:"STORAGE_MIGRATE" env-default:"true"`
}

// DBConfig — настройки подключения к PostgreSQL.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL"`
}

// SQLiteConfig — путь к файлу SQLite (локальная разработка).
type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH" env-default:"auth.db"`
}

// RedisConfig — кэш отозванных refresh-токенов. Пустой URL отключает кэш.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"auth:rt:"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// JanitorConfig — фоновая очистка давно истёкших refresh-токенов.
// Period == 0 отключает очистку.
type JanitorConfig struct {
	Period    time.Duration `yaml:"period" env:"JANITOR_PERIOD" env-default:"0s"`
	Retention time.Duration `yaml:"retention" env:"JANITOR_RETENTION" env-default:"720h"`
}

// TracingConfig — экспорт трейсов OpenTelemetry в stdout.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"TRACING_ENABLED" env-default:"false"`
	ServiceName string `yaml:"service_name" env:"TRACING_SERVICE_NAME" env-default:"jwt-auth-service"`
}

// Validate проверяет конфигурацию целиком (fail-fast на старте).
func (c *Config) Validate() error {
	const op = "config.Config.Validate"

	if err := c.JWT.Validate(); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.DB.DatabaseURL) == "" {
			return fmt.Errorf("%s: %w: db.db_url is required for postgres", op, ErrConfiguration)
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			return fmt.Errorf("%s: %w: sqlite.path is required for sqlite", op, ErrConfiguration)
		}
	default:
		return fmt.Errorf("%s: %w: unknown storage.driver %q", op, ErrConfiguration, c.Storage.Driver)
	}

	switch c.Auth.PasswordHasher {
	case HasherBcrypt, HasherArgon2id:
	default:
		return fmt.Errorf("%s: %w: unknown auth.password_hasher %q", op, ErrConfiguration, c.Auth.PasswordHasher)
	}

	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("%s: %w: auth.min_password_length must be positive", op, ErrConfiguration)
	}

	return nil
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML,
// затем конфигурация валидируется.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %q: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
