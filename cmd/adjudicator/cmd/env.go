package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianhealth/adjudicator/internal/audit"
	"github.com/meridianhealth/adjudicator/internal/catalog"
	"github.com/meridianhealth/adjudicator/internal/core/config"
	"github.com/meridianhealth/adjudicator/internal/core/db"
	"github.com/meridianhealth/adjudicator/internal/lifecycle"
	"github.com/meridianhealth/adjudicator/internal/pipeline"
	"github.com/meridianhealth/adjudicator/internal/store"
)

// cmdEnv bundles the wired components shared by every subcommand that
// touches the database.
type cmdEnv struct {
	cfg      *config.Config
	log      *zap.Logger
	database *sqlx.DB
	store    store.RuleStore
	catalog  catalog.Catalog
	manager  *lifecycle.Manager
	pipeline *pipeline.Pipeline
	emitter  *audit.ChainEmitter
}

// setupEnv loads config, opens the database, and wires the store, catalog,
// lifecycle manager, pipeline, and audit emitter. When requireMigrated is
// set, a missing schema migration is a hard error.
func setupEnv(cmd *cobra.Command, requireMigrated bool) (*cmdEnv, error) {
	ctx := context.Background()

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Port = port
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}

	log, err := buildLogger()
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL required (--db-url or ADJ_DATABASE_URL)")
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if requireMigrated {
		applied, err := db.MigrationApplied(database, "001_rules_schema.sql")
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to check migrations: %w", err)
		}
		if !applied {
			database.Close()
			return nil, fmt.Errorf("migration 001_rules_schema not applied - run 'adjudicator migrate' first")
		}
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}

	ruleStore := store.NewSQLStore(queries)

	var cat catalog.Catalog = catalog.NewStoreCatalog(ruleStore)
	var invalidator lifecycle.Invalidator
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		cached := catalog.NewCachedCatalog(cat, catalog.NewRedisKV(client), cfg.CacheTTL, log)
		cat = cached
		invalidator = cached
		log.Info("rule catalog cache enabled", zap.String("redis_addr", cfg.RedisAddr))
	}

	emitter := audit.NewFileEmitter(cfg.AuditLogPath, cfg.AuditMaxSizeMB, cfg.AuditMaxBackups, log)
	if tip, err := audit.LastHashInFile(cfg.AuditLogPath); err != nil {
		log.Warn("could not resume audit chain, starting fresh", zap.Error(err))
	} else {
		emitter.Resume(tip)
	}

	return &cmdEnv{
		cfg:      cfg,
		log:      log,
		database: database,
		store:    ruleStore,
		catalog:  cat,
		manager:  lifecycle.NewManager(ruleStore, invalidator, log),
		pipeline: pipeline.New(cat, nil, emitter, log),
		emitter:  emitter,
	}, nil
}

func (e *cmdEnv) Close() {
	e.database.Close()
	e.log.Sync()
}
