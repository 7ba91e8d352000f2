package backup

import (
	"os"
	"path/filepath"

	"dbvault/internal/archive"
)

// Default engine settings
const (
	DefaultArchiveDir    = "./backups"
	DefaultPageSize      = 5000
	DefaultRetentionDays = 30
	DefaultReplicaPrefix = "backups/"
)

// Config configures an Engine
type Config struct {
	ArchiveDir       string        `mapstructure:"archive_dir" yaml:"archive_dir"`
	FilesDir         string        `mapstructure:"files_dir" yaml:"files_dir,omitempty"`
	WorkDir          string        `mapstructure:"work_dir" yaml:"work_dir,omitempty"`
	PageSize         int           `mapstructure:"page_size" yaml:"page_size"`
	Compression      string        `mapstructure:"compression" yaml:"compression"`
	CompressionLevel int           `mapstructure:"compression_level" yaml:"compression_level,omitempty"`
	RetentionDays    int           `mapstructure:"retention_days" yaml:"retention_days"`
	StrictSchema     bool          `mapstructure:"strict_schema" yaml:"strict_schema,omitempty"`
	Replicas         ReplicaConfig `mapstructure:"replicas" yaml:"replicas,omitempty"`
}

// ReplicaConfig lists the offsite copies made after each backup. Nil entries
// are disabled.
type ReplicaConfig struct {
	S3    *S3Config    `mapstructure:"s3" yaml:"s3,omitempty"`
	Azure *AzureConfig `mapstructure:"azure" yaml:"azure,omitempty"`
	GCS   *GCSConfig   `mapstructure:"gcs" yaml:"gcs,omitempty"`
}

// Names lists the configured replica backends
func (rc ReplicaConfig) Names() []string {
	var names []string
	if rc.S3 != nil {
		names = append(names, "s3")
	}
	if rc.Azure != nil {
		names = append(names, "azure")
	}
	if rc.GCS != nil {
		names = append(names, "gcs")
	}
	return names
}

// S3Config for Amazon S3 and S3-compatible stores
type S3Config struct {
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Region         string `mapstructure:"region" yaml:"region"`
	AccessKey      string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey      string `mapstructure:"secret_key" yaml:"secret_key"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
	Prefix         string `mapstructure:"prefix" yaml:"prefix,omitempty"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey    string `mapstructure:"account_key" yaml:"account_key"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Prefix        string `mapstructure:"prefix" yaml:"prefix,omitempty"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path,omitempty"`
	ProjectID       string `mapstructure:"project_id" yaml:"project_id,omitempty"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix,omitempty"`
}

// DefaultConfig returns a Config with every default applied
func DefaultConfig() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills unset fields
func (c *Config) SetDefaults() {
	if c.ArchiveDir == "" {
		c.ArchiveDir = DefaultArchiveDir
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Compression == "" {
		c.Compression = string(archive.DefaultCompression)
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	c.Replicas.SetDefaults()
}

// Validate validates the engine configuration
func (c *Config) Validate() error {
	var errors ValidationErrors

	if c.ArchiveDir == "" {
		errors.Add("archive_dir", "archive directory is required", c.ArchiveDir)
	}
	if c.PageSize < 1 {
		errors.Add("page_size", "page size must be positive", c.PageSize)
	}
	if _, err := archive.ParseCompression(c.Compression); err != nil {
		errors.Add("compression", err.Error(), c.Compression)
	}
	if c.CompressionLevel < 0 {
		errors.Add("compression_level", "compression level cannot be negative", c.CompressionLevel)
	}
	if c.RetentionDays < 1 {
		errors.Add("retention_days", "retention must be at least one day", c.RetentionDays)
	}
	if c.FilesDir != "" && c.ArchiveDir != "" && sameOrNested(c.ArchiveDir, c.FilesDir) {
		errors.Add("files_dir", "files directory must not overlap the archive directory", c.FilesDir)
	}

	if err := c.Replicas.Validate(); err != nil {
		if validationErrs, ok := err.(ValidationErrors); ok {
			errors = append(errors, validationErrs...)
		} else {
			errors.Add("replicas", err.Error(), nil)
		}
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// CompressionType returns the parsed compression setting
func (c *Config) CompressionType() archive.Compression {
	comp, err := archive.ParseCompression(c.Compression)
	if err != nil {
		return archive.DefaultCompression
	}
	return comp
}

// spoolDir is where temporary export and restore data is written
func (c *Config) spoolDir() string {
	if c.WorkDir != "" {
		return c.WorkDir
	}
	return c.ArchiveDir
}

func sameOrNested(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return false
	}
	if absA == absB {
		return true
	}
	relAB, err := filepath.Rel(absA, absB)
	if err == nil && relAB != ".." && !startsWithParent(relAB) {
		return true
	}
	relBA, err := filepath.Rel(absB, absA)
	return err == nil && relBA != ".." && !startsWithParent(relBA)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// Enabled reports whether any replica is configured
func (rc *ReplicaConfig) Enabled() bool {
	return rc.S3 != nil || rc.Azure != nil || rc.GCS != nil
}

// SetDefaults sets default values for every configured replica
func (rc *ReplicaConfig) SetDefaults() {
	if rc.S3 != nil {
		rc.S3.SetDefaults()
	}
	if rc.Azure != nil {
		rc.Azure.SetDefaults()
	}
	if rc.GCS != nil {
		rc.GCS.SetDefaults()
	}
}

// Validate validates every configured replica
func (rc *ReplicaConfig) Validate() error {
	var errors ValidationErrors
	if rc.S3 != nil {
		errors = append(errors, rc.S3.validate()...)
	}
	if rc.Azure != nil {
		errors = append(errors, rc.Azure.validate()...)
	}
	if rc.GCS != nil {
		errors = append(errors, rc.GCS.validate()...)
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for S3 replica configuration
func (s3c *S3Config) SetDefaults() {
	if s3c.Region == "" {
		s3c.Region = "us-east-1"
	}
	if s3c.Prefix == "" {
		s3c.Prefix = DefaultReplicaPrefix
	}
	if s3c.AccessKey == "" {
		s3c.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if s3c.SecretKey == "" {
		s3c.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
}

func (s3c *S3Config) validate() ValidationErrors {
	var errors ValidationErrors
	if s3c.Bucket == "" {
		errors.Add("replicas.s3.bucket", "S3 bucket name is required", s3c.Bucket)
	}
	if s3c.Region == "" {
		errors.Add("replicas.s3.region", "S3 region is required", s3c.Region)
	}
	if s3c.AccessKey == "" {
		errors.Add("replicas.s3.access_key", "S3 access key is required", nil)
	}
	if s3c.SecretKey == "" {
		errors.Add("replicas.s3.secret_key", "S3 secret key is required", nil)
	}
	return errors
}

// SetDefaults sets default values for Azure replica configuration
func (ac *AzureConfig) SetDefaults() {
	if ac.Prefix == "" {
		ac.Prefix = DefaultReplicaPrefix
	}
}

func (ac *AzureConfig) validate() ValidationErrors {
	var errors ValidationErrors
	if ac.AccountName == "" {
		errors.Add("replicas.azure.account_name", "Azure account name is required", ac.AccountName)
	}
	if ac.AccountKey == "" {
		errors.Add("replicas.azure.account_key", "Azure account key is required", nil)
	}
	if ac.ContainerName == "" {
		errors.Add("replicas.azure.container_name", "Azure container name is required", ac.ContainerName)
	}
	return errors
}

// SetDefaults sets default values for GCS replica configuration
func (gc *GCSConfig) SetDefaults() {
	if gc.CredentialsPath == "" {
		gc.CredentialsPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if gc.Prefix == "" {
		gc.Prefix = DefaultReplicaPrefix
	}
}

func (gc *GCSConfig) validate() ValidationErrors {
	var errors ValidationErrors
	if gc.Bucket == "" {
		errors.Add("replicas.gcs.bucket", "GCS bucket name is required", gc.Bucket)
	}
	return errors
}
