package backup

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"dbvault/internal/database"
	"dbvault/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serverTestConfig builds a connection config for a dedicated test database
// from environment variables. It returns nil when the server is not
// configured or not reachable.
func serverTestConfig(t *testing.T, driver, prefix string, defaultPort int) *database.DatabaseConfig {
	t.Helper()
	host := os.Getenv(prefix + "_TEST_HOST")
	if host == "" {
		return nil
	}

	port := defaultPort
	if p, err := strconv.Atoi(os.Getenv(prefix + "_TEST_PORT")); err == nil {
		port = p
	}
	username := os.Getenv(prefix + "_TEST_USER")
	if username == "" {
		username = "root"
	}
	name := os.Getenv(prefix + "_TEST_DATABASE")
	if name == "" {
		name = "dbvault_test"
	}

	cfg := &database.DatabaseConfig{
		Driver:   driver,
		Host:     host,
		Port:     port,
		Username: username,
		Password: os.Getenv(prefix + "_TEST_PASSWORD"),
		Database: name,
		Timeout:  5 * time.Second,
	}
	cfg.SetDefaults()

	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		t.Logf("%s not available for integration tests: %v", driver, err)
		return nil
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Logf("%s not available for integration tests: %v", driver, err)
		return nil
	}
	return cfg
}

func TestIntegrationRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	servers := []struct {
		name   string
		driver string
		prefix string
		port   int
		schema []string
		seed   []string
	}{
		{
			name:   "mysql",
			driver: database.DriverMySQL,
			prefix: "MYSQL",
			port:   3306,
			schema: []string{
				`DROP TABLE IF EXISTS vault_orders`,
				`DROP TABLE IF EXISTS vault_users`,
				`CREATE TABLE vault_users (id INT AUTO_INCREMENT PRIMARY KEY, email VARCHAR(255) NOT NULL, avatar BLOB)`,
				`CREATE TABLE vault_orders (id INT PRIMARY KEY, user_id INT NOT NULL, total DECIMAL(10,2),
					total_cents BIGINT GENERATED ALWAYS AS (total * 100) STORED,
					FOREIGN KEY (user_id) REFERENCES vault_users(id))`,
			},
			seed: []string{
				`INSERT INTO vault_users (id, email, avatar) VALUES (1, 'ada@example.com', NULL), (2, 'bob@example.com', NULL)`,
			},
		},
		{
			name:   "postgres",
			driver: database.DriverPostgres,
			prefix: "POSTGRES",
			port:   5432,
			schema: []string{
				`DROP TABLE IF EXISTS vault_orders`,
				`DROP TABLE IF EXISTS vault_users`,
				`CREATE TABLE vault_users (id INT GENERATED ALWAYS AS IDENTITY PRIMARY KEY, email VARCHAR(255) NOT NULL, avatar BYTEA)`,
				`CREATE TABLE vault_orders (id SERIAL PRIMARY KEY, user_id INT NOT NULL REFERENCES vault_users(id), total NUMERIC(10,2),
					total_cents BIGINT GENERATED ALWAYS AS ((total * 100)::bigint) STORED)`,
			},
			seed: []string{
				`INSERT INTO vault_users (id, email, avatar) OVERRIDING SYSTEM VALUE VALUES (1, 'ada@example.com', NULL), (2, 'bob@example.com', NULL)`,
			},
		},
	}

	for _, srv := range servers {
		t.Run(srv.name, func(t *testing.T) {
			cfg := serverTestConfig(t, srv.driver, srv.prefix, srv.port)
			if cfg == nil {
				t.Skipf("%s integration test configuration not available", srv.name)
			}

			service := database.NewServiceWithLogger(logging.NewDefaultLogger())
			db, dialect, err := service.Connect(*cfg)
			require.NoError(t, err)
			defer service.Close(db)

			stmts := append(srv.schema, srv.seed...)
			stmts = append(stmts, `INSERT INTO vault_orders (id, user_id, total) VALUES (10, 1, 12.50), (11, 2, 3.00), (12, 2, 99.99)`)
			for _, stmt := range stmts {
				_, err := db.Exec(stmt)
				require.NoError(t, err, stmt)
			}

			engine, err := NewEngine(db, dialect, &Config{
				ArchiveDir: filepath.Join(t.TempDir(), "archives"),
			})
			require.NoError(t, err)

			ctx := context.Background()
			created, err := engine.CreateBackup(ctx, CreateOptions{Label: "integration"})
			require.NoError(t, err)
			assert.Equal(t, int64(5), created.Manifest.TotalRows)

			_, err = db.Exec(`DELETE FROM vault_orders WHERE id > 10`)
			require.NoError(t, err)

			result, err := engine.RestoreFromBackup(ctx, created.Filename, RestoreOptions{})
			require.NoError(t, err)
			assert.Equal(t, []string{"vault_users", "vault_orders"}, result.Order)

			var n int
			require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM vault_orders`).Scan(&n))
			assert.Equal(t, 3, n)

			var cents int64
			require.NoError(t, db.QueryRow(`SELECT total_cents FROM vault_orders WHERE user_id = 2 AND total > 50`).Scan(&cents))
			assert.Equal(t, int64(9999), cents)

			// counters continue after the restored keys
			_, err = db.Exec(`INSERT INTO vault_users (email) VALUES ('cyd@example.com')`)
			require.NoError(t, err)
			var maxID int
			require.NoError(t, db.QueryRow(`SELECT MAX(id) FROM vault_users`).Scan(&maxID))
			assert.Equal(t, 3, maxID)
		})
	}
}
