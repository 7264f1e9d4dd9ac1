// Command coresync drives a coresync.Provider from the command line: init
// installs the change-log and triggers, initial-set and changes print a
// ChangeSet as JSON, and apply reads one back in and replays it. Logging and
// flag handling follow cmd/worker's shape in the teacher project.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pavelkucherov/CoreSync/internal/config"
	"github.com/pavelkucherov/CoreSync/internal/coresync"
	"github.com/pavelkucherov/CoreSync/internal/store/gormschema"
	"github.com/pavelkucherov/CoreSync/internal/store/postgres"
	"github.com/pavelkucherov/CoreSync/internal/store/sqlite"
)

var Version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "coresync.json", "path to the coresync config file")
	anchorFlag := fs.String("anchor", "", "anchor to apply from (changes), as version:variant")
	inPath := fs.String("in", "", "path to read a ChangeSet JSON from (apply); defaults to stdin")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	runID := uuid.New().String()
	logger := log.With().Str("run_id", runID).Str("cmd", cmd).Logger()
	logger.Info().Str("version", Version).Msg("starting coresync")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	provider, closeFn, err := open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer closeFn()

	switch cmd {
	case "init":
		runInit(ctx, logger, provider)
	case "initial-set":
		runInitialSet(ctx, logger, provider)
	case "changes":
		runChanges(ctx, logger, provider, cfg.Variant, *anchorFlag)
	case "apply":
		runApply(ctx, logger, provider, *inPath)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: coresync <init|initial-set|changes|apply> [flags]")
}

func open(ctx context.Context, cfg *config.Config) (*coresync.Provider, func(), error) {
	descriptors, err := cfg.Descriptors()
	if err != nil {
		return nil, nil, err
	}

	var session coresync.Session
	var closeFn func()

	switch cfg.Dialect {
	case "sqlite":
		s, err := sqlite.Open(sqlite.Config{Path: cfg.DSN, MaxConns: cfg.MaxConns, WALMode: cfg.WALMode})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		session, closeFn = s, func() { _ = s.Close() }
	case "postgres":
		s, err := postgres.Open(postgres.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if _, err := gormschema.Open(s.DB()); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("bootstrap application schema: %w", err)
		}
		session, closeFn = s, func() { _ = s.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown dialect %q", cfg.Dialect)
	}

	provider, err := coresync.New(coresync.Options{
		Session: session,
		Variant: cfg.Variant,
		Tables:  descriptors,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return provider, closeFn, nil
}

func runInit(ctx context.Context, logger zerolog.Logger, provider *coresync.Provider) {
	if err := provider.Initialize(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initialize")
	}
	logger.Info().Msg("change-log and triggers installed")
}

func runInitialSet(ctx context.Context, logger zerolog.Logger, provider *coresync.Provider) {
	if err := provider.Initialize(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initialize")
	}
	set, err := provider.GetInitialSet(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("get initial set")
	}
	emit(logger, set)
}

func runChanges(ctx context.Context, logger zerolog.Logger, provider *coresync.Provider, variant, anchorFlag string) {
	if err := provider.Initialize(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initialize")
	}
	anchor := coresync.ZeroAnchor(variant)
	if anchorFlag != "" {
		a, err := parseAnchor(anchorFlag)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse anchor")
		}
		anchor = a
	}
	set, err := provider.GetIncrementalChanges(ctx, anchor)
	if err != nil {
		logger.Fatal().Err(err).Msg("get incremental changes")
	}
	emit(logger, set)
}

func runApply(ctx context.Context, logger zerolog.Logger, provider *coresync.Provider, inPath string) {
	if err := provider.Initialize(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initialize")
	}

	src := os.Stdin
	if inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("open input")
		}
		defer f.Close()
		src = f
	}

	var set coresync.ChangeSet
	if err := json.NewDecoder(src).Decode(&set); err != nil {
		logger.Fatal().Err(err).Msg("decode change set")
	}

	// No resolver: conflicting updates/deletes are skipped silently, the
	// documented default for an unattended apply.
	result, err := provider.ApplyChanges(ctx, set, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("apply changes")
	}
	logger.Info().Int64("version", result.Version).Msg("applied")
	emit(logger, result)
}

func emit(logger zerolog.Logger, v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Fatal().Err(err).Msg("encode output")
	}
}

func parseAnchor(s string) (coresync.Anchor, error) {
	var version int64
	var variant string
	n, err := fmt.Sscanf(s, "%d:%s", &version, &variant)
	if err != nil || n != 2 {
		return coresync.Anchor{}, fmt.Errorf("invalid anchor %q, expected version:variant", s)
	}
	return coresync.Anchor{Version: version, Variant: variant}, nil
}
