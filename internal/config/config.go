package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Resend    ResendConfig    `yaml:"resend"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Admin     AdminConfig     `yaml:"admin"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	LogLevel  string          `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string          `yaml:"log_format" validate:"oneof=json console"`
	LogFile   string          `yaml:"log_file"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host" validate:"required"`
	Port         int    `yaml:"port" validate:"gt=0"`
	User         string `yaml:"user" validate:"required"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname" validate:"required"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig configures the processed-event cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	KeyPrefix    string        `yaml:"key_prefix"`
	ProcessedTTL time.Duration `yaml:"processed_ttl"`
}

// RabbitMQConfig configures domain event publishing. An empty URL disables it.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	QueueName  string `yaml:"queue_name"`
	BindingKey string `yaml:"binding_key"`
}

type ResendConfig struct {
	APIKey  string        `yaml:"api_key" validate:"required"`
	BaseURL string        `yaml:"base_url" validate:"url"`
	From    string        `yaml:"from" validate:"required"`
	ReplyTo string        `yaml:"reply_to"`
	Timeout time.Duration `yaml:"timeout"`
}

type WebhookConfig struct {
	Secret    string        `yaml:"secret" validate:"required"`
	Tolerance time.Duration `yaml:"tolerance"`
}

type TriggerConfig struct {
	Secret             string `yaml:"secret" validate:"required_unless=TrustedEnvironment true"`
	TrustedEnvironment bool   `yaml:"trusted_environment"`
}

type AdminConfig struct {
	APIKey string `yaml:"api_key" validate:"required"`
}

type NotifyConfig struct {
	Concurrency    int           `yaml:"concurrency" validate:"gte=1"`
	RatePerSecond  float64       `yaml:"rate_per_second" validate:"gte=0"`
	ClaimLease     time.Duration `yaml:"claim_lease"`
	AutoDispatch   bool          `yaml:"auto_dispatch"`
	SiteURL        string        `yaml:"site_url" validate:"required,url"`
	UnsubscribeURL string        `yaml:"unsubscribe_url" validate:"omitempty,url"`
}

type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	PublishInterval time.Duration `yaml:"publish_interval" validate:"gt=0"`
	NotifyInterval  time.Duration `yaml:"notify_interval" validate:"gt=0"`
	RunTimeout      time.Duration `yaml:"run_timeout" validate:"gt=0"`
}

// SecretsConfig enables resolving "ssm:" prefixed values from AWS SSM
// Parameter Store.
type SecretsConfig struct {
	SSMPrefix string `yaml:"ssm_prefix"`
	Region    string `yaml:"region"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SecretFields returns the values that may be stored in a secret manager.
func (c *Config) SecretFields() []*string {
	return []*string{
		&c.Database.Password,
		&c.Redis.URL,
		&c.RabbitMQ.URL,
		&c.Resend.APIKey,
		&c.Webhook.Secret,
		&c.Trigger.Secret,
		&c.Admin.APIKey,
	}
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 2 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "newsroom:webhook:"
	}
	if c.Redis.ProcessedTTL == 0 {
		c.Redis.ProcessedTTL = 72 * time.Hour
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "newsroom"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "newsroom_events"
	}
	if c.RabbitMQ.BindingKey == "" {
		c.RabbitMQ.BindingKey = "#"
	}
	if c.Resend.BaseURL == "" {
		c.Resend.BaseURL = "https://api.resend.com"
	}
	if c.Resend.Timeout == 0 {
		c.Resend.Timeout = 15 * time.Second
	}
	if c.Webhook.Tolerance == 0 {
		c.Webhook.Tolerance = 5 * time.Minute
	}
	if c.Notify.Concurrency == 0 {
		c.Notify.Concurrency = 5
	}
	if c.Notify.RatePerSecond == 0 {
		c.Notify.RatePerSecond = 2
	}
	if c.Notify.ClaimLease == 0 {
		c.Notify.ClaimLease = 30 * time.Minute
	}
	if c.Scheduler.PublishInterval == 0 {
		c.Scheduler.PublishInterval = time.Minute
	}
	if c.Scheduler.NotifyInterval == 0 {
		c.Scheduler.NotifyInterval = 5 * time.Minute
	}
	if c.Scheduler.RunTimeout == 0 {
		c.Scheduler.RunTimeout = 5 * time.Minute
	}
	if c.Secrets.Region == "" {
		c.Secrets.Region = "us-east-1"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
}
