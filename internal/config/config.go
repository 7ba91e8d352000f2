// Package config loads the dbvault configuration from a YAML file, DBVAULT_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"strings"

	"dbvault/internal/backup"
	"dbvault/internal/database"
	"dbvault/internal/display"
	"dbvault/internal/logging"
)

const redacted = "********"

// AppConfig is the complete application configuration
type AppConfig struct {
	Database database.DatabaseConfig `mapstructure:"database" yaml:"database"`
	Backup   backup.Config           `mapstructure:"backup" yaml:"backup"`
	Display  display.Config          `mapstructure:"display" yaml:"display"`
	Logging  LoggingConfig           `mapstructure:"logging" yaml:"logging"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	ShowCaller bool   `mapstructure:"show_caller" yaml:"show_caller,omitempty"`
}

// SetDefaults applies the defaults of every section
func (c *AppConfig) SetDefaults() {
	c.Database.SetDefaults()
	c.Backup.SetDefaults()
	c.Display.SetDefaults()
	if c.Logging.Level == "" {
		c.Logging.Level = string(logging.LogLevelNormal)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate validates every section except the database, which is only
// required by commands that connect.
func (c *AppConfig) Validate() error {
	var errs []string
	if err := c.Backup.Validate(); err != nil {
		errs = append(errs, "backup: "+err.Error())
	}
	if err := c.Display.Validate(); err != nil {
		errs = append(errs, "display: "+err.Error())
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, "logging: "+err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the logging level and format names
func (lc *LoggingConfig) Validate() error {
	switch logging.LogLevel(lc.Level) {
	case logging.LogLevelQuiet, logging.LogLevelNormal, logging.LogLevelVerbose, logging.LogLevelDebug:
	default:
		return fmt.Errorf("invalid level %q (expected quiet, normal, verbose or debug)", lc.Level)
	}
	if lc.Format != "text" && lc.Format != "json" {
		return fmt.Errorf("invalid format %q (expected text or json)", lc.Format)
	}
	return nil
}

// LoggerConfig converts to the logging package configuration
func (lc *LoggingConfig) LoggerConfig() logging.Config {
	return logging.Config{
		Level:      logging.ParseLevel(lc.Level),
		Format:     lc.Format,
		LogFile:    lc.File,
		ShowCaller: lc.ShowCaller,
	}
}

// Redacted returns a copy safe to print, with every secret masked
func (c *AppConfig) Redacted() *AppConfig {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}

	out.Database.Password = mask(c.Database.Password)
	if c.Backup.Replicas.S3 != nil {
		s3 := *c.Backup.Replicas.S3
		s3.AccessKey = mask(s3.AccessKey)
		s3.SecretKey = mask(s3.SecretKey)
		out.Backup.Replicas.S3 = &s3
	}
	if c.Backup.Replicas.Azure != nil {
		az := *c.Backup.Replicas.Azure
		az.AccountKey = mask(az.AccountKey)
		out.Backup.Replicas.Azure = &az
	}
	if c.Backup.Replicas.GCS != nil {
		gcs := *c.Backup.Replicas.GCS
		out.Backup.Replicas.GCS = &gcs
	}
	return &out
}
