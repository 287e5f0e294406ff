// Package app wires the domain services onto the configured store. Both the
// server and the admin CLI build their services here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opentrusty/ssoproxy/internal/accesskey"
	"github.com/opentrusty/ssoproxy/internal/audit"
	"github.com/opentrusty/ssoproxy/internal/auth"
	"github.com/opentrusty/ssoproxy/internal/authz"
	"github.com/opentrusty/ssoproxy/internal/config"
	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/opentrusty/ssoproxy/internal/importer"
	"github.com/opentrusty/ssoproxy/internal/observability/logger"
	"github.com/opentrusty/ssoproxy/internal/observability/metrics"
	"github.com/opentrusty/ssoproxy/internal/ratelimit"
	"github.com/opentrusty/ssoproxy/internal/revocation"
	"github.com/opentrusty/ssoproxy/internal/roles"
	"github.com/opentrusty/ssoproxy/internal/secret"
	"github.com/opentrusty/ssoproxy/internal/store/memory"
	"github.com/opentrusty/ssoproxy/internal/store/postgres"
	"go.opentelemetry.io/otel/trace"
)

// App holds the wired services
type App struct {
	Directory   *directory.Service
	Keys        *accesskey.Service
	Revocations *revocation.Service
	Audit       *audit.Log
	Limiter     *ratelimit.Limiter
	Roles       *roles.Directory
	Auth        *auth.Service
	Importer    *importer.Importer

	db *postgres.DB
}

// Options carry optional observability hooks
type Options struct {
	Instruments *metrics.Instruments
	Tracer      trace.Tracer
}

type repositories struct {
	accounts    directory.AccountRepository
	aliases     directory.AliasRepository
	tags        directory.TagRepository
	groups      directory.GroupRepository
	keys        accesskey.Repository
	revocations revocation.Repository
	audit       audit.Repository
}

// PostgresConfig maps the database section onto the store config
func PostgresConfig(cfg config.DatabaseConfig) postgres.Config {
	return postgres.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxConnLifetime: cfg.ConnMaxLifetime,
	}
}

// Open connects the store and builds every service
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	cipher, err := secret.NewCipher(cfg.Security.SecretPassphrase, cfg.Security.SecretSalt, secret.KDFParams{
		Memory:      cfg.Security.Argon2Memory,
		Iterations:  cfg.Security.Argon2Iterations,
		Parallelism: cfg.Security.Argon2Parallelism,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create secret cipher: %w", err)
	}

	a := &App{}
	repos, err := a.openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	roleDir := roles.NewStatic(nil)
	if cfg.Roles.File != "" {
		if roleDir, err = roles.Load(cfg.Roles.File); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		slog.WarnContext(ctx, "no role snapshot configured, every subject holds no roles",
			logger.Component("app"),
		)
	}

	in := opts.Instruments
	if in == nil {
		in = &metrics.Instruments{}
	}
	if in.RolesReloads != nil {
		roleDir.CountReloads(in.RolesReloads)
	}

	a.Directory = directory.NewService(repos.accounts, repos.aliases, repos.tags, repos.groups, cipher)
	a.Keys = accesskey.NewService(repos.keys, cipher, nil)
	a.Revocations = revocation.NewService(repos.revocations)
	a.Audit = audit.NewLog(repos.audit, in.AuditWriteFailures)
	a.Limiter = ratelimit.New(repos.audit, ratelimit.Policy{
		MaxAttempts: cfg.Auth.MaxFailedAttempts,
		Window:      cfg.Auth.FailureWindow,
	})
	a.Roles = roleDir
	a.Importer = importer.New(a.Directory)

	var authOpts []auth.Option
	if in.AuthAttempts != nil {
		authOpts = append(authOpts, auth.WithAttemptCounter(in.AuthAttempts))
	}
	if opts.Tracer != nil {
		authOpts = append(authOpts, auth.WithTracer(opts.Tracer))
	}
	a.Auth = auth.NewService(
		a.Directory,
		a.Keys,
		authz.NewEngine(a.Directory, a.Revocations),
		a.Limiter,
		a.Audit,
		roleDir,
		authOpts...,
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.DatabaseConfig) (*repositories, error) {
	switch cfg.Driver {
	case "memory":
		slog.WarnContext(ctx, "using in-memory store, data is lost on exit", logger.Component("app"))
		store := memory.New()
		return &repositories{
			accounts:    store.Accounts(),
			aliases:     store.Aliases(),
			tags:        store.Tags(),
			groups:      store.Groups(),
			keys:        store.Keys(),
			revocations: store.Revocations(),
			audit:       store.Audit(),
		}, nil
	case "postgres":
		pgCfg := PostgresConfig(cfg)
		if cfg.AutoMigrate {
			version, err := postgres.MigrateUp(pgCfg)
			if err != nil {
				return nil, err
			}
			slog.InfoContext(ctx, "database schema up to date",
				logger.Component("app"),
				slog.Uint64("version", uint64(version)),
			)
		}
		db, err := postgres.New(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		return &repositories{
			accounts:    postgres.NewAccountRepository(db),
			aliases:     postgres.NewAliasRepository(db),
			tags:        postgres.NewTagRepository(db),
			groups:      postgres.NewGroupRepository(db),
			keys:        postgres.NewKeyRepository(db),
			revocations: postgres.NewRevocationRepository(db),
			audit:       postgres.NewAuditRepository(db),
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Ready reports whether the store is reachable
func (a *App) Ready(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Ping(ctx)
}

// Close releases the store
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
