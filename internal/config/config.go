package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// KafkaConfig enables publishing report notifications to a Kafka topic.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	RequiredAcks string        `yaml:"required_acks"` // none, one, all
	Async        bool          `yaml:"async"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 && c.Topic != "" }

// RabbitMQConfig enables publishing report notifications to an exchange.
type RabbitMQConfig struct {
	URL          string `yaml:"url"`
	Exchange     string `yaml:"exchange"`
	ExchangeType string `yaml:"exchange_type"`
	RoutingKey   string `yaml:"routing_key"`
	Durable      bool   `yaml:"durable"`
}

func (c RabbitMQConfig) Enabled() bool { return c.URL != "" }

type NotifyConfig struct {
	Kafka    KafkaConfig    `yaml:"kafka"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// HttpServerConfig mirrors the net/http server knobs.
type HttpServerConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Config struct {
	Port            int              `yaml:"port"`
	APIPath         string           `yaml:"api_path"`
	DataFile        string           `yaml:"data_file"`
	StaticDir       string           `yaml:"static_dir"`
	IndexFile       string           `yaml:"index_file"`
	MaxBodyBytes    int64            `yaml:"max_body_bytes"`
	FreshnessWindow time.Duration    `yaml:"freshness_window"`
	HttpServer      HttpServerConfig `yaml:"http_server"`
	Notify          NotifyConfig     `yaml:"notify"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills every zero field.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.APIPath == "" {
		c.APIPath = "/api.php"
	}
	if c.DataFile == "" {
		c.DataFile = "data.json"
	}
	if c.StaticDir == "" {
		c.StaticDir = "."
	}
	if c.IndexFile == "" {
		c.IndexFile = "index.html"
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.FreshnessWindow == 0 {
		c.FreshnessWindow = 24 * time.Hour
	}
	if c.HttpServer.ReadTimeout == 0 {
		c.HttpServer.ReadTimeout = 10 * time.Second
	}
	if c.HttpServer.WriteTimeout == 0 {
		c.HttpServer.WriteTimeout = 15 * time.Second
	}
	if c.HttpServer.IdleTimeout == 0 {
		c.HttpServer.IdleTimeout = 60 * time.Second
	}
	if c.HttpServer.ShutdownTimeout == 0 {
		c.HttpServer.ShutdownTimeout = 10 * time.Second
	}
	if c.Notify.RabbitMQ.Enabled() {
		if c.Notify.RabbitMQ.Exchange == "" {
			c.Notify.RabbitMQ.Exchange = "firemap-reports"
		}
		if c.Notify.RabbitMQ.ExchangeType == "" {
			c.Notify.RabbitMQ.ExchangeType = "fanout"
		}
	}
}

// ApplyEnv overrides file values from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := getenv("FIREMAP_DATA_FILE"); v != "" {
		c.DataFile = v
	}
	if v := getenv("FIREMAP_STATIC_DIR"); v != "" {
		c.StaticDir = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("configuration error: port %d out of range", c.Port)
	}
	if !strings.HasPrefix(c.APIPath, "/") || c.APIPath == "/" {
		return fmt.Errorf("configuration error: api_path %q must be an absolute path below /", c.APIPath)
	}
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("configuration error: freshness_window must be positive")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("configuration error: max_body_bytes must not be negative")
	}
	if k := c.Notify.Kafka; len(k.Brokers) > 0 && k.Topic == "" {
		return fmt.Errorf("configuration error: notify.kafka.topic is required when brokers are set")
	}
	return nil
}

// Addr is the listen address for the configured port.
func (c *Config) Addr() string { return ":" + strconv.Itoa(c.Port) }

// Load reads path if it exists, then applies defaults, environment
// overrides and validation. A missing file is not an error.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
