// Package config loads the connection and table declarations a
// coresync.Provider needs to start: a flat JSON settings file merged onto
// defaults, the same shape as the teacher project's own config package, cut
// down to this domain's fields.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pavelkucherov/CoreSync/internal/coresync"
)

// DefaultMaxConns is the connection pool size used when a config file
// doesn't set max_conns.
const DefaultMaxConns = 4

// TableConfig declares one table coresync should track.
type TableConfig struct {
	Name       string `json:"name"`
	Schema     string `json:"schema,omitempty"` // empty: "main" in change-log TBL values, "public" for Postgres introspection
	RecordType string `json:"record_type,omitempty"`
	Direction  string `json:"direction"` // "bidirectional" or "pull_only"
}

// Config holds everything needed to open a store and construct a
// coresync.Provider: connection info, the dialect, and the table list.
type Config struct {
	Dialect  string        `json:"dialect"` // "sqlite" or "postgres"
	DSN      string        `json:"dsn"`
	MaxConns int           `json:"max_conns"`
	WALMode  bool          `json:"wal_mode"`
	Variant  string        `json:"variant"`
	Tables   []TableConfig `json:"tables"`
}

// Default returns a Config with SQLite-local-file defaults.
func Default() *Config {
	return &Config{
		Dialect:  "sqlite",
		DSN:      "coresync.db",
		MaxConns: DefaultMaxConns,
		WALMode:  true,
		Variant:  "default",
	}
}

// Load reads a Config from path, merging onto Default() so a file that only
// sets e.g. "tables" still produces a usable Config. Unlike the teacher's
// Load (which tolerates a missing or malformed settings file by silently
// falling back to defaults), a missing or malformed config here is always
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw struct {
		Dialect  *string       `json:"dialect"`
		DSN      *string       `json:"dsn"`
		MaxConns *int          `json:"max_conns"`
		WALMode  *bool         `json:"wal_mode"`
		Variant  *string       `json:"variant"`
		Tables   []TableConfig `json:"tables"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if raw.Dialect != nil {
		cfg.Dialect = *raw.Dialect
	}
	if raw.DSN != nil {
		cfg.DSN = *raw.DSN
	}
	if raw.MaxConns != nil {
		cfg.MaxConns = *raw.MaxConns
	}
	if raw.WALMode != nil {
		cfg.WALMode = *raw.WALMode
	}
	if raw.Variant != nil {
		cfg.Variant = *raw.Variant
	}
	if raw.Tables != nil {
		cfg.Tables = raw.Tables
	}

	return cfg, nil
}

// Descriptors converts the configured tables into coresync.TableDescriptor
// values with no Columns populated - Provider.Initialize fills those in via
// introspection, so the config file never has to repeat a schema the
// database already knows.
func (c *Config) Descriptors() ([]coresync.TableDescriptor, error) {
	out := make([]coresync.TableDescriptor, 0, len(c.Tables))
	for _, t := range c.Tables {
		dir, err := parseDirection(t.Direction)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.Name, err)
		}
		out = append(out, coresync.TableDescriptor{
			Name:       t.Name,
			Schema:     t.Schema,
			RecordType: t.RecordType,
			Direction:  dir,
		})
	}
	return out, nil
}

func parseDirection(s string) (coresync.Direction, error) {
	switch s {
	case "", "bidirectional":
		return coresync.Bidirectional, nil
	case "pull_only":
		return coresync.PullOnly, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}
