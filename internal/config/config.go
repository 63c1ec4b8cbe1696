package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser    string
	DBPass    string
	DBHost    string
	DBPort    string
	DBName    string
	SSLMode   string
	RedisHost string
	RedisPort string
	NatsHost  string
	NatsPort  string
	ApiPort   string
}

// New loads and validates configuration from environment variables.
// Postgres, Redis and NATS are all required: the store is the sole
// concurrency-correctness mechanism and NATS carries the mission triggers,
// so the service refuses to start without them.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:    os.Getenv("CROWDTEST_POSTGRES_USER"),
		DBPass:    os.Getenv("CROWDTEST_POSTGRES_PASSWORD"),
		DBHost:    os.Getenv("CROWDTEST_POSTGRES_HOST"),
		DBPort:    os.Getenv("CROWDTEST_POSTGRES_PORT"),
		DBName:    os.Getenv("CROWDTEST_POSTGRES_DB"),
		SSLMode:   os.Getenv("CROWDTEST_POSTGRES_SSLMODE"),
		RedisHost: os.Getenv("CROWDTEST_REDIS_HOST"),
		RedisPort: os.Getenv("CROWDTEST_REDIS_PORT"),
		NatsHost:  os.Getenv("CROWDTEST_NATS_HOST"),
		NatsPort:  os.Getenv("CROWDTEST_NATS_PORT"),
		ApiPort:   os.Getenv("CROWDTEST_API_PORT"),
	}

	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: CROWDTEST_POSTGRES_USER/HOST/DB/SSLMODE")
	}
	if cfg.DBPort == "" {
		cfg.DBPort = "5432"
	}

	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: CROWDTEST_REDIS_HOST/PORT")
	}

	if cfg.NatsHost == "" || cfg.NatsPort == "" {
		return nil, fmt.Errorf("missing required env for nats: CROWDTEST_NATS_HOST/PORT")
	}

	if cfg.ApiPort == "" {
		cfg.ApiPort = "8080"
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}
