package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported driver names
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DatabaseConfig holds the configuration parameters for a database connection
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver" yaml:"driver"`
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Database     string        `mapstructure:"database" yaml:"database"`
	Path         string        `mapstructure:"path" yaml:"path,omitempty"`
	SSLMode      string        `mapstructure:"sslmode" yaml:"sslmode,omitempty"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// SetDefaults fills in driver-specific defaults for unset fields
func (dc *DatabaseConfig) SetDefaults() {
	if dc.Driver == "" {
		dc.Driver = DriverMySQL
	}
	if dc.Port == 0 {
		switch dc.Driver {
		case DriverMySQL:
			dc.Port = 3306
		case DriverPostgres:
			dc.Port = 5432
		}
	}
	if dc.Driver == DriverPostgres && dc.SSLMode == "" {
		dc.SSLMode = "disable"
	}
	if dc.Timeout <= 0 {
		dc.Timeout = 30 * time.Second
	}
	if dc.MaxOpenConns <= 0 {
		dc.MaxOpenConns = 10
	}
}

// Validate checks if the database configuration has all required parameters
func (dc *DatabaseConfig) Validate() error {
	var errs []error

	switch dc.Driver {
	case DriverMySQL, DriverPostgres:
		if dc.Host == "" {
			errs = append(errs, errors.New("host is required"))
		}
		if dc.Port <= 0 || dc.Port > 65535 {
			errs = append(errs, errors.New("port must be between 1 and 65535"))
		}
		if dc.Username == "" {
			errs = append(errs, errors.New("username is required"))
		}
		if dc.Database == "" {
			errs = append(errs, errors.New("database name is required"))
		}
	case DriverSQLite:
		if dc.Path == "" {
			errs = append(errs, errors.New("path is required for sqlite3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported driver %q (supported: %s, %s, %s)", dc.Driver, DriverMySQL, DriverPostgres, DriverSQLite))
	}

	if len(errs) > 0 {
		return fmt.Errorf("database configuration validation failed: %v", errs)
	}
	return nil
}

// DSN returns the driver-specific data source name
func (dc *DatabaseConfig) DSN() string {
	switch dc.Driver {
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(dc.Username, dc.Password),
			Host:   net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port)),
			Path:   "/" + dc.Database,
		}
		q := url.Values{}
		q.Set("sslmode", dc.SSLMode)
		if dc.Timeout > 0 {
			q.Set("connect_timeout", strconv.Itoa(int(dc.Timeout.Seconds())))
		}
		u.RawQuery = q.Encode()
		return u.String()
	case DriverSQLite:
		return fmt.Sprintf("file:%s?_foreign_keys=1&_busy_timeout=%d", dc.Path, dc.Timeout.Milliseconds())
	default:
		cfg := mysql.NewConfig()
		cfg.User = dc.Username
		cfg.Passwd = dc.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
		cfg.DBName = dc.Database
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		cfg.Timeout = dc.Timeout
		return cfg.FormatDSN()
	}
}

// Target returns a human readable, password-free description of the connection target
func (dc *DatabaseConfig) Target() string {
	if dc.Driver == DriverSQLite {
		return dc.Path
	}
	return fmt.Sprintf("%s:%d/%s", dc.Host, dc.Port, dc.Database)
}
