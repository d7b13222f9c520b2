// Package settings loads the batchd configuration file.
package settings

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zoobzio/batchq"
)

// Sink types.
const (
	SinkConsole = "console"
	SinkKafka   = "kafka"
	SinkRedis   = "redis"
)

// Config is the root of the daemon configuration.
type Config struct {
	Server  Server        `yaml:"server"`
	Queue   batchq.Config `yaml:"queue"`
	Breaker Breaker       `yaml:"breaker"`
	Logger  Logger        `yaml:"logger"`
	Sink    Sink          `yaml:"sink"`
}

// Server configures the network front-ends.
type Server struct {
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	HTTPAddr string `yaml:"http_addr"`
}

// Breaker configures the circuit breaker. A zero threshold disables it.
type Breaker struct {
	FailureThreshold int           `yaml:"failure_threshold" validate:"gte=0"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" validate:"gte=0"`
}

// Logger configures logging.
type Logger struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	FileName   string `yaml:"file_name"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Sink selects and configures the batch destination.
type Sink struct {
	Type  string `yaml:"type" validate:"oneof=console kafka redis"`
	Kafka Kafka  `yaml:"kafka"`
	Redis Redis  `yaml:"redis"`
}

// Kafka configures the Kafka sink.
type Kafka struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// Redis configures the Redis sink.
type Redis struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	PoolSize int    `yaml:"pool_size"`
	Key      string `yaml:"key"`
}

// Default returns the demo configuration: a console sink behind a queue of
// 10000 items flushing batches of 5 every 5s.
func Default() Config {
	return Config{
		Server: Server{Port: 10033},
		Queue: batchq.Config{
			Capacity:            10000,
			BatchSize:           5,
			FlushTimeout:        5 * time.Second,
			ConsumeTimeout:      60 * time.Second,
			ConsumerParallelism: 10,
		},
		Breaker: Breaker{FailureThreshold: 3, ResetTimeout: 10 * time.Second},
		Logger:  Logger{Level: "info", MaxSize: 100, MaxBackups: 3, MaxAge: 28},
		Sink: Sink{
			Type:  SinkConsole,
			Kafka: Kafka{Topic: "batchq", ClientID: "batchd"},
			Redis: Redis{Host: "localhost", Port: 6379, PoolSize: 10, Key: "batchq:messages"},
		},
	}
}

var validate = validator.New()

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "settings: read")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "settings: parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "settings: %s", path)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "settings: invalid")
	}

	switch c.Sink.Type {
	case SinkKafka:
		if len(c.Sink.Kafka.Brokers) == 0 || c.Sink.Kafka.Topic == "" {
			return errors.New("settings: kafka sink needs brokers and a topic")
		}
	case SinkRedis:
		if c.Sink.Redis.Host == "" || c.Sink.Redis.Key == "" {
			return errors.New("settings: redis sink needs a host and a key")
		}
	}
	return nil
}
