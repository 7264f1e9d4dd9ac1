// Package gormschema bootstraps the schema of the *host application* tables
// that a coresync.Provider is configured to track - not the sidecar
// change-log, which is always raw SQL owned by coresync itself. Modeled on
// the teacher project's internal/db/gorm/migrations.go, which uses
// gormigrate to own application schema separately from the hand-written SQL
// store that sits beside it.
package gormschema

import (
	"database/sql"
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// User is the example application table used by the CLI demo and the
// integration tests: a minimal row shape with an integer primary key and
// text columns; Created holds an RFC3339 timestamp as text.
type User struct {
	ID      int64  `gorm:"primaryKey;autoIncrement"`
	Email   string `gorm:"uniqueIndex;not null"`
	Name    string
	Created string `gorm:"column:created;not null"` // stored as text (RFC3339) rather than a native timestamp column
}

func (User) TableName() string { return "users" }

// Open wraps an existing *sql.DB (shared with internal/store/postgres, so
// coresync and GORM use one pool) in a *gorm.DB and runs the Users
// migration via gormigrate.
func Open(sqlDB *sql.DB) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_users",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&User{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("users")
			},
		},
	})
	return m.Migrate()
}
