package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable read by the loader
	EnvPrefix = "DBVAULT"
	// ConfigName is the config file base name searched for without --config
	ConfigName = "dbvault"
)

// Keys that have no default but may still be supplied through the environment
var envOnlyKeys = []string{
	"backup.replicas.s3.bucket",
	"backup.replicas.s3.region",
	"backup.replicas.s3.access_key",
	"backup.replicas.s3.secret_key",
	"backup.replicas.s3.endpoint",
	"backup.replicas.azure.account_name",
	"backup.replicas.azure.account_key",
	"backup.replicas.azure.container_name",
	"backup.replicas.gcs.bucket",
	"backup.replicas.gcs.credentials_path",
	"backup.replicas.gcs.project_id",
}

// Loader reads configuration through viper
type Loader struct {
	viper *viper.Viper
}

// NewLoader creates a loader with defaults and environment binding set up
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}
	return &Loader{viper: v}
}

// Viper exposes the underlying instance so commands can bind flags
func (l *Loader) Viper() *viper.Viper {
	return l.viper
}

// Load reads configFile, or searches the default locations when it is empty.
// A missing file in the default locations is not an error.
func (l *Loader) Load(configFile string) (*AppConfig, error) {
	if configFile != "" {
		l.viper.SetConfigFile(configFile)
	} else {
		l.viper.SetConfigName(ConfigName)
		l.viper.SetConfigType("yaml")
		l.viper.AddConfigPath(".")
		l.viper.AddConfigPath("$HOME/.config/dbvault")
		l.viper.AddConfigPath("$HOME")
	}

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if hidden := hiddenConfigFile(); hidden != "" {
			l.viper.SetConfigFile(hidden)
			if err := l.viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg AppConfig
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the file that was read, if any
func (l *Loader) ConfigFileUsed() string {
	return l.viper.ConfigFileUsed()
}

// hiddenConfigFile returns $HOME/.dbvault.yaml when it exists
func hiddenConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, "."+ConfigName+".yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "")
	v.SetDefault("database.path", "")
	v.SetDefault("database.sslmode", "")
	v.SetDefault("database.timeout", "30s")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("backup.archive_dir", "./backups")
	v.SetDefault("backup.files_dir", "")
	v.SetDefault("backup.work_dir", "")
	v.SetDefault("backup.page_size", 5000)
	v.SetDefault("backup.compression", "gzip")
	v.SetDefault("backup.compression_level", 0)
	v.SetDefault("backup.retention_days", 30)
	v.SetDefault("backup.strict_schema", false)

	v.SetDefault("display.color_enabled", true)
	v.SetDefault("display.theme", "dark")
	v.SetDefault("display.output_format", "table")
	v.SetDefault("display.use_icons", true)
	v.SetDefault("display.show_progress", true)
	v.SetDefault("display.verbose", false)
	v.SetDefault("display.quiet", false)
	v.SetDefault("display.table_style", "default")
	v.SetDefault("display.max_table_width", 120)

	v.SetDefault("logging.level", "normal")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.show_caller", false)
}

// EnvironmentVariables lists every environment variable the loader reads
func EnvironmentVariables() []string {
	keys := append(NewLoader().viper.AllKeys(), envOnlyKeys...)
	seen := make(map[string]bool, len(keys))
	var out []string
	for _, k := range keys {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_"))
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
