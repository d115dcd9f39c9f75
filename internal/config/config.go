// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Queue   QueueConfig    `mapstructure:"queue"`
	Senders []SenderConfig `mapstructure:"senders"`
}

// ServerConfig controls the monitoring HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// QueueConfig sizes the in-memory event queue feeding each sender.
type QueueConfig struct {
	Depth int `mapstructure:"depth"`
}

// SenderConfig declares one outbound sender instance.
type SenderConfig struct {
	Name                 string `mapstructure:"name"`
	Sink                 string `mapstructure:"sink"`
	BatchSize            int    `mapstructure:"batch_size"`
	Workers              int    `mapstructure:"workers"`
	FlushIntervalSeconds int    `mapstructure:"flush_interval_seconds"`
	Encoder              string `mapstructure:"encoder"`
	EncoderField         string `mapstructure:"encoder_field"`
	Filter               string `mapstructure:"filter"`

	HTTP     HTTPSinkConfig     `mapstructure:"http"`
	TCP      TCPSinkConfig      `mapstructure:"tcp"`
	PubSub   PubSubSinkConfig   `mapstructure:"pubsub"`
	Postgres PostgresSinkConfig `mapstructure:"postgres"`
	GCS      GCSSinkConfig      `mapstructure:"gcs"`
}

// HTTPSinkConfig targets an HTTP bulk endpoint.
type HTTPSinkConfig struct {
	URL            string            `mapstructure:"url"`
	ContentType    string            `mapstructure:"content_type"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	Headers        map[string]string `mapstructure:"headers"`
}

// TCPSinkConfig targets a TCP socket destination.
type TCPSinkConfig struct {
	Address            string `mapstructure:"address"`
	DialTimeoutSeconds int    `mapstructure:"dial_timeout_seconds"`
}

// PubSubSinkConfig holds metadata for the Pub/Sub sink.
type PubSubSinkConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// PostgresSinkConfig controls the Postgres sink connection pool.
type PostgresSinkConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// GCSSinkConfig places archived batches in a Cloud Storage bucket.
type GCSSinkConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOGPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("queue.depth", 1024)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Queue.Depth <= 0 {
		return fmt.Errorf("queue.depth must be > 0")
	}
	seen := make(map[string]struct{}, len(c.Senders))
	for i, sc := range c.Senders {
		if err := sc.validate(); err != nil {
			return fmt.Errorf("senders[%d]: %w", i, err)
		}
		name := sc.EffectiveName()
		if _, dup := seen[name]; dup {
			return fmt.Errorf("senders[%d]: duplicate sender name %q", i, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (sc SenderConfig) validate() error {
	switch sc.Sink {
	case "memory", "memory-batch":
	case "httpbulk":
		if sc.HTTP.URL == "" {
			return fmt.Errorf("http.url is required for the httpbulk sink")
		}
	case "tcp":
		if sc.TCP.Address == "" {
			return fmt.Errorf("tcp.address is required for the tcp sink")
		}
	case "pubsub":
		if sc.PubSub.ProjectID == "" || sc.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required for the pubsub sink")
		}
	case "postgres":
		if sc.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for the postgres sink")
		}
	case "gcs":
		if sc.GCS.Bucket == "" {
			return fmt.Errorf("gcs.bucket is required for the gcs sink")
		}
	case "":
		return fmt.Errorf("sink is required")
	default:
		return fmt.Errorf("unknown sink %q", sc.Sink)
	}
	if sc.BatchSize < 0 {
		return fmt.Errorf("batch_size must be >= 0")
	}
	if sc.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	switch sc.Encoder {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown encoder %q", sc.Encoder)
	}
	switch sc.Filter {
	case "", "gzip":
	default:
		return fmt.Errorf("unknown filter %q", sc.Filter)
	}
	return nil
}

// EffectiveName returns the sender label, falling back to the sink kind.
func (sc SenderConfig) EffectiveName() string {
	if sc.Name != "" {
		return sc.Name
	}
	return sc.Sink
}

// FlushInterval converts the configured seconds into a duration.
func (sc SenderConfig) FlushInterval() time.Duration {
	return time.Duration(sc.FlushIntervalSeconds) * time.Second
}

// HTTPTimeout converts the HTTP sink timeout into a duration.
func (sc SenderConfig) HTTPTimeout() time.Duration {
	return time.Duration(sc.HTTP.TimeoutSeconds) * time.Second
}
