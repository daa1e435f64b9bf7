package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StorageBackend выбирает реализацию хранилищ.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StoragePostgres StorageBackend = "postgres"
	StorageMongo    StorageBackend = "mongo"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	// BaseURL — внешний адрес сервиса, из него строятся endpoint'ы
	// возврата/уведомлений, внедряемые в провайдеры.
	BaseURL string `yaml:"base_url"`

	Storage struct {
		Backend     StorageBackend `yaml:"backend"`
		PostgresDSN string         `yaml:"postgres_dsn"`
		MongoURI    string         `yaml:"mongo_uri"`
		MongoDB     string         `yaml:"mongo_db"`
	} `yaml:"storage"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`
}

// DefaultConfig возвращает базовую конфигурацию: in-memory хранилища и
// локальные адреса.
func DefaultConfig() Config {
	cfg := Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		BaseURL:     "http://localhost:8080",
	}
	cfg.Storage.Backend = StorageMemory
	cfg.Storage.MongoDB = "psp"
	return cfg
}

// LoadConfig читает YAML-файл (если путь задан) поверх значений по умолчанию
// и применяет переменные окружения последним слоем.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PSP_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("PSP_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("PSP_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("PSP_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = StorageBackend(v)
	}
	if v := os.Getenv("PSP_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("PSP_MONGO_URI"); v != "" {
		c.Storage.MongoURI = v
	}
	if v := os.Getenv("PSP_MONGO_DB"); v != "" {
		c.Storage.MongoDB = v
	}
	if v := os.Getenv("PSP_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitAndTrim(v)
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage backend %q requires postgres_dsn", c.Storage.Backend)
		}
	case StorageMongo:
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("storage backend %q requires mongo_uri", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
