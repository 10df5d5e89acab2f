package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries everything cmd/server needs to wire the service. A missing
// config file falls back to defaults; MYSQL_DSN and REDIS_ADDR env vars
// override the file so deployments can inject credentials.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	MySQL struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"mysql"`

	Redis struct {
		Addr     string `yaml:"addr"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Reservation struct {
		MaxRetries      int           `yaml:"max_retries"`
		MutationTimeout time.Duration `yaml:"mutation_timeout"`
		WorkerCount     int           `yaml:"worker_count"`
		QueueSize       int           `yaml:"queue_size"`
	} `yaml:"reservation"`
}

func Default() Config {
	var cfg Config
	cfg.HTTPAddr = ":8080"
	cfg.MetricsAddr = ":9090"
	cfg.MySQL.DSN = "root:root@tcp(localhost:3306)/inventory?parseTime=true"
	cfg.MySQL.MaxOpenConns = 50
	cfg.MySQL.MaxIdleConns = 25
	cfg.MySQL.ConnMaxLifetime = 5 * time.Minute
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.PoolSize = 100
	cfg.Reservation.MaxRetries = 5
	cfg.Reservation.MutationTimeout = 3 * time.Second
	cfg.Reservation.WorkerCount = 10
	cfg.Reservation.QueueSize = 10000
	return cfg
}

// Load reads path over the defaults. A nonexistent file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		applyEnv(&cfg)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		cfg.MySQL.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
}

func (c Config) validate() error {
	if c.Reservation.MaxRetries <= 0 {
		return fmt.Errorf("config: max_retries must be positive, got %d", c.Reservation.MaxRetries)
	}
	if c.Reservation.MutationTimeout <= 0 {
		return fmt.Errorf("config: mutation_timeout must be positive, got %s", c.Reservation.MutationTimeout)
	}
	if c.Reservation.WorkerCount <= 0 {
		return fmt.Errorf("config: worker_count must be positive, got %d", c.Reservation.WorkerCount)
	}
	return nil
}
