package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Template is a commented starter configuration
const Template = `# dbvault configuration
# Every key can be overridden with a DBVAULT_* environment variable,
# e.g. DBVAULT_DATABASE_PASSWORD or DBVAULT_BACKUP_ARCHIVE_DIR.

database:
  driver: mysql            # mysql, postgres or sqlite3
  host: localhost
  port: 3306
  username: app
  password: ""             # prefer DBVAULT_DATABASE_PASSWORD
  database: app
  # path: ./app.db         # sqlite3 only
  # sslmode: disable       # postgres only
  timeout: 30s
  max_open_conns: 10

backup:
  archive_dir: ./backups
  # files_dir: ./uploads   # blob directory archived with --include-files
  # work_dir: /var/tmp     # spool space, defaults to archive_dir
  page_size: 5000          # rows per export page
  compression: gzip        # gzip, zstd, lz4 or none
  compression_level: 0     # 0 picks the codec default
  retention_days: 30
  strict_schema: false     # refuse restores when column types narrowed
  # replicas:
  #   s3:
  #     bucket: my-backups
  #     region: us-east-1
  #     prefix: backups/
  #   azure:
  #     account_name: myaccount
  #     container_name: backups
  #   gcs:
  #     bucket: my-backups
  #     credentials_path: /etc/dbvault/gcs.json

display:
  color_enabled: true
  theme: dark              # dark, light, high-contrast or plain
  output_format: table     # table, json or yaml
  use_icons: true
  show_progress: true
  table_style: default     # default, rounded or compact
  max_table_width: 120

logging:
  level: normal            # quiet, normal, verbose or debug
  format: text             # text or json
  # file: /var/log/dbvault.log
`

// WriteTemplate writes Template to path. An existing file is only replaced
// when force is set.
func WriteTemplate(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Template), 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}
