package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the configuration file at path and applies environment
// overrides. Environment variables use the ANALYZER_ prefix with underscores
// for nesting (ANALYZER_POSTGRES_DSN, ANALYZER_LANGFLOW_TOKEN, ...), so
// secrets never need to live in the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()

	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	if cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("s3.bucket is required")
	}
	if cfg.Langflow.Host == "" || cfg.Langflow.FlowID == "" {
		return nil, fmt.Errorf("langflow.host and langflow.flow_id are required")
	}
	if cfg.Langflow.ChatInputKey == "" || cfg.Langflow.TextInputKey == "" {
		return nil, fmt.Errorf("langflow input slot keys are required")
	}

	return &cfg, nil
}
