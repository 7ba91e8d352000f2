package display

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// Config holds configuration for visual display options
type Config struct {
	ColorEnabled bool   `mapstructure:"color_enabled" yaml:"color_enabled"`
	Theme        string `mapstructure:"theme" yaml:"theme"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	UseIcons     bool   `mapstructure:"use_icons" yaml:"use_icons"`
	ShowProgress bool   `mapstructure:"show_progress" yaml:"show_progress"`

	VerboseMode bool `mapstructure:"verbose" yaml:"verbose"`
	QuietMode   bool `mapstructure:"quiet" yaml:"quiet"`

	TableStyle    string `mapstructure:"table_style" yaml:"table_style"`
	MaxTableWidth int    `mapstructure:"max_table_width" yaml:"max_table_width"`

	Writer    io.Writer `mapstructure:"-" yaml:"-"`
	ErrWriter io.Writer `mapstructure:"-" yaml:"-"`
}

var (
	validThemes      = []string{"dark", "light", "high-contrast", "plain"}
	validTableStyles = []string{"default", "rounded", "compact"}
)

// DefaultConfig returns a default display configuration
func DefaultConfig() *Config {
	return &Config{
		ColorEnabled:  true,
		Theme:         "dark",
		OutputFormat:  string(FormatTable),
		UseIcons:      true,
		ShowProgress:  true,
		TableStyle:    "default",
		MaxTableWidth: 120,
		Writer:        os.Stdout,
		ErrWriter:     os.Stderr,
	}
}

// Validate validates the display configuration
func (dc *Config) Validate() error {
	var errs []string

	if !slices.Contains(validThemes, dc.Theme) {
		errs = append(errs, fmt.Sprintf("invalid theme '%s', must be one of: %s", dc.Theme, strings.Join(validThemes, ", ")))
	}
	if _, err := ParseOutputFormat(dc.OutputFormat); err != nil {
		errs = append(errs, err.Error())
	}
	if !slices.Contains(validTableStyles, dc.TableStyle) {
		errs = append(errs, fmt.Sprintf("invalid table style '%s', must be one of: %s", dc.TableStyle, strings.Join(validTableStyles, ", ")))
	}
	if dc.MaxTableWidth < 40 || dc.MaxTableWidth > 300 {
		errs = append(errs, fmt.Sprintf("max table width must be between 40 and 300, got %d", dc.MaxTableWidth))
	}
	if dc.VerboseMode && dc.QuietMode {
		errs = append(errs, "verbose and quiet modes are mutually exclusive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("display configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SetDefaults sets default values for unspecified configuration options
func (dc *Config) SetDefaults() {
	if dc.Theme == "" {
		dc.Theme = "dark"
	}
	if dc.OutputFormat == "" {
		dc.OutputFormat = string(FormatTable)
	}
	if dc.TableStyle == "" {
		dc.TableStyle = "default"
	}
	if dc.MaxTableWidth == 0 {
		dc.MaxTableWidth = 120
	}
	if dc.Writer == nil {
		dc.Writer = os.Stdout
	}
	if dc.ErrWriter == nil {
		dc.ErrWriter = os.Stderr
	}
}

// GetColorTheme returns the ColorTheme based on the theme name
func (dc *Config) GetColorTheme() ColorTheme {
	return GetThemeByName(dc.Theme)
}

// TableStyleValue returns the TableStyle named by TableStyle
func (dc *Config) TableStyleValue() TableStyle {
	switch dc.TableStyle {
	case "rounded":
		return RoundedTableStyle
	case "compact":
		return CompactTableStyle
	default:
		return DefaultTableStyle
	}
}

// IsColorEnabled returns true if colors should be used
func (dc *Config) IsColorEnabled() bool {
	return dc.ColorEnabled && !dc.QuietMode
}

// IsProgressEnabled returns true if progress indicators should be shown
func (dc *Config) IsProgressEnabled() bool {
	return dc.ShowProgress && !dc.QuietMode
}

// IsIconsEnabled returns true if icons should be used
func (dc *Config) IsIconsEnabled() bool {
	return dc.UseIcons && !dc.QuietMode
}
