// Package postgrestest provisions throwaway Postgres schemas for
// integration tests against internal/storage/postgres, adapted from
// test/util/database.go and test/database/client.go's testcontainers
// bootstrap (CI uses CI_DATABASE_URL, local dev shares one testcontainer
// per package, and every test gets its own schema for isolation).
package postgrestest

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	ourpg "github.com/codeready-toolchain/orcaci/internal/storage/postgres"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// NewTestStore provisions a dedicated schema inside the shared test
// database, applies migrations scoped to it, and returns a ready
// *postgres.Store. The schema is dropped via t.Cleanup.
func NewTestStore(t *testing.T) *ourpg.Store {
	t.Helper()
	ctx := context.Background()

	baseConnStr := baseConnectionString(t)
	schema := generateSchemaName(t)

	db, err := stdsql.Open("pgx", baseConnStr)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	_ = db.Close()

	t.Cleanup(func() {
		cleanDB, err := stdsql.Open("pgx", baseConnStr)
		if err != nil {
			t.Logf("postgrestest: could not connect to drop schema %s: %v", schema, err)
			return
		}
		defer func() { _ = cleanDB.Close() }()
		_, _ = cleanDB.ExecContext(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
	})

	store, err := ourpg.Open(ctx, ourpg.Config{DSN: addSearchPath(baseConnStr, schema)})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store
}

func baseConnectionString(t *testing.T) string {
	t.Helper()
	if ci := os.Getenv("CI_DATABASE_URL"); ci != "" {
		t.Log("postgrestest: using external PostgreSQL from CI_DATABASE_URL")
		return ci
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("postgrestest: starting shared PostgreSQL testcontainer")
		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})

	require.NoError(t, containerErr, "failed to set up shared test container")
	return sharedConnStr
}

func generateSchemaName(t *testing.T) string {
	t.Helper()
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	buf := make([]byte, 4)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(buf))
}

func addSearchPath(connStr, schema string) string {
	sep := "?"
	if strings.Contains(connStr, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%ssearch_path=%s", connStr, sep, schema)
}
