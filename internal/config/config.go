package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration. Every path the pipeline
// touches is an explicit named field; no stage relies on implicit
// working-directory state.
type Config struct {
	// Pipeline inputs
	SourceISO         string `mapstructure:"source-iso"`
	PreseedPath       string `mapstructure:"preseed"`
	PostInstallConfig string `mapstructure:"post-install-config"`

	// Pipeline outputs and workspace
	OutputISO    string `mapstructure:"output-iso"`
	WorkspaceDir string `mapstructure:"workspace-dir"`

	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// ISO mirror configuration
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`

	// Behavior flags
	KeepWorkspace bool `mapstructure:"keep-workspace"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("source-iso", "debian-13.0.0-amd64-netinst.iso")
	viper.SetDefault("preseed", "preseed.cfg")
	viper.SetDefault("post-install-config", "post_install_config.json")
	viper.SetDefault("output-iso", "custom-debian-13.iso")
	viper.SetDefault("workspace-dir", "iso-extract")
	viper.SetDefault("sqlite-path", ".artifacts/builds.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("s3-bucket", "debian-iso-mirror")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("keep-workspace", false)
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (will be DEBISO_SOURCE_ISO, etc.)
	viper.SetEnvPrefix("DEBISO")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.debian-customizer")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SourceISO == "" {
		return fmt.Errorf("source-iso cannot be empty")
	}
	if c.PreseedPath == "" {
		return fmt.Errorf("preseed cannot be empty")
	}
	if c.PostInstallConfig == "" {
		return fmt.Errorf("post-install-config cannot be empty")
	}
	if c.OutputISO == "" {
		return fmt.Errorf("output-iso cannot be empty")
	}
	if c.WorkspaceDir == "" {
		return fmt.Errorf("workspace-dir cannot be empty")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
