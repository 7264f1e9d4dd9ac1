package gormschema

import (
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq"
)

func TestUserTableName(t *testing.T) {
	require.Equal(t, "users", User{}.TableName())
}

// TestOpenRunsMigrations only runs when POSTGRES_TEST_DSN is set - no live
// Postgres is assumed to be available in this environment.
func TestOpenRunsMigrations(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := Open(sqlDB)
	require.NoError(t, err)

	require.True(t, db.Migrator().HasTable(&User{}))
}
