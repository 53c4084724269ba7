package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	HaciendaBaseURL  string `env:"HACIENDA_BASE_URL,required=true"`
	HaciendaUsername string `env:"HACIENDA_USERNAME,required=true"`
	HaciendaPassword string `env:"HACIENDA_PASSWORD,required=true"`

	SigningCertPath string `env:"SIGNING_CERT_PATH,required=true"`
	SigningKeyPath  string `env:"SIGNING_KEY_PATH,required=true"`

	SchedulerIntervalMinutes int `env:"SCHEDULER_INTERVAL_MINUTES,default=5"`
	SchedulerBatchSize       int `env:"SCHEDULER_BATCH_SIZE,default=100"`
	PollIntervalMinutes      int `env:"POLL_INTERVAL_MINUTES,default=15"`
	PollBatchSize            int `env:"POLL_BATCH_SIZE,default=50"`
	RetentionDays            int `env:"RETENTION_DAYS,default=30"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalMinutes) * time.Minute
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

func (c *Config) RetentionPeriod() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
