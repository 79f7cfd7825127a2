// Package config defines the analyzer's runtime configuration and its
// loaders.
package config

import "time"

// Config represents the top-level configuration.
type Config struct {
	// Phase names the deployment environment (LOCAL, ALPHA, PROD). Artifact
	// paths are namespaced by it.
	Phase string `mapstructure:"phase" yaml:"phase"`

	Postgres  PostgresConfig  `mapstructure:"postgres" yaml:"postgres"`
	S3        S3Config        `mapstructure:"s3" yaml:"s3"`
	Langflow  LangflowConfig  `mapstructure:"langflow" yaml:"langflow"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Observations is the catalog seed, applied when the observations table
	// is empty. CatalogPath points at a standalone seed file and takes
	// precedence when set.
	Observations []ObservationSeed `mapstructure:"observations" yaml:"observations"`
	CatalogPath  string            `mapstructure:"catalog_path" yaml:"catalog_path"`
}

// PostgresConfig defines the session database connection.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	MinConns int32  `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// S3Config defines the artifact bucket.
type S3Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the S3 endpoint for minio-style local storage.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// AccessKey and SecretKey are static credentials for endpoints outside
	// the default AWS credential chain. Leave empty to use the chain.
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
}

// LangflowConfig defines the inference pipeline connection. The input keys
// are slot identifiers shared with the pipeline's flow definition.
type LangflowConfig struct {
	Host   string `mapstructure:"host" yaml:"host"`
	Token  string `mapstructure:"token" yaml:"token"`
	FlowID string `mapstructure:"flow_id" yaml:"flow_id"`

	ChatInputKey string `mapstructure:"chat_input_key" yaml:"chat_input_key"`
	TextInputKey string `mapstructure:"text_input_key" yaml:"text_input_key"`

	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed" yaml:"retry_max_elapsed"`
	RPS             float64       `mapstructure:"rps" yaml:"rps"`
	Burst           int           `mapstructure:"burst" yaml:"burst"`
}

// SchedulerConfig defines the periodic trigger.
type SchedulerConfig struct {
	// Interval is the fixed tick period.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// RunTimeout bounds one full orchestrator run so a hung inference call
	// cannot leave a session claimed indefinitely.
	RunTimeout time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
}

// TelemetryConfig defines the otel exporter settings.
type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Probability float64 `mapstructure:"probability" yaml:"probability"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
}

// ObservationSeed is one catalog entry in the seed file.
type ObservationSeed struct {
	DisplayName   string `mapstructure:"display_name" yaml:"display_name"`
	CanonicalName string `mapstructure:"canonical_name" yaml:"canonical_name"`
}

// applyDefaults fills in the values that have sensible standalone defaults.
func (c *Config) applyDefaults() {
	if c.Phase == "" {
		c.Phase = "LOCAL"
	}
	if c.Postgres.MinConns == 0 {
		c.Postgres.MinConns = 5
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = 20
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = time.Minute
	}
	if c.Scheduler.RunTimeout == 0 {
		c.Scheduler.RunTimeout = 10 * time.Minute
	}
	if c.Langflow.RequestTimeout == 0 {
		c.Langflow.RequestTimeout = 2 * time.Minute
	}
	if c.Langflow.RetryMaxElapsed == 0 {
		c.Langflow.RetryMaxElapsed = 30 * time.Second
	}
	if c.Langflow.RPS == 0 {
		c.Langflow.RPS = 1
	}
	if c.Langflow.Burst == 0 {
		c.Langflow.Burst = 1
	}
	if c.Telemetry.Probability == 0 {
		c.Telemetry.Probability = 0.05
	}
}
