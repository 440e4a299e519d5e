// Package app assembles an engine from the workspace configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"supplyfuse/internal/config"
	"supplyfuse/internal/db"
	"supplyfuse/internal/engine"
	"supplyfuse/internal/llm"
	"supplyfuse/internal/migrate"
	"supplyfuse/internal/specialist"
)

type Options struct {
	Workspace string
	// ConfigPath overrides <workspace>/fusion.yml.
	ConfigPath string
	Logger     *zap.Logger
	// NoLedger skips opening the database.
	NoLedger bool
	Getenv   func(string) string
}

func (o Options) getenv(key string) string {
	if o.Getenv != nil {
		return o.Getenv(key)
	}
	return os.Getenv(key)
}

// App owns the engine and the resources behind it.
type App struct {
	Engine engine.Engine
	Config *config.Config
	Logger *zap.Logger
	db     *sql.DB
}

// LoadConfig reads the explicit path when given, else the workspace config,
// falling back to defaults when the workspace has none.
func LoadConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.LoadOrDefault(workspace)
}

// Open loads config and wires the engine. The ledger database is opened and
// migrated unless NoLedger is set.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := LoadConfig(opts.Workspace, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var conn *sql.DB
	if !opts.NoLedger {
		conn, err = db.Open(db.Config{Workspace: opts.Workspace})
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		if _, err := migrate.Apply(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate ledger: %w", err)
		}
	}

	asker, err := NewAsker(ctx, cfg.LLM, opts.getenv)
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}

	e := engine.New(conn, cfg)
	e.Logger = log
	e.LLM = asker
	e.Invoker = NewInvoker(cfg.Specialists, log)
	log.Debug("engine ready",
		zap.Bool("ledger", conn != nil),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Int("endpoints", len(cfg.Specialists.Endpoints)))
	return &App{Engine: e, Config: cfg, Logger: log, db: conn}, nil
}

func (a *App) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// SpecialistToken returns the bearer token configured for CLI use.
func (a *App) SpecialistToken(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if a.Config.Specialists.TokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(getenv(a.Config.Specialists.TokenEnv))
}

// NewAsker builds the language model client named by cfg.Provider.
func NewAsker(ctx context.Context, cfg config.LLMConfig, getenv func(string) string) (llm.Asker, error) {
	switch cfg.Provider {
	case "", config.ProviderNone:
		return llm.Disabled{}, nil
	case config.ProviderStatic:
		return llm.Static(cfg.StaticReply), nil
	case config.ProviderGemini:
		key := strings.TrimSpace(getenv(cfg.APIKeyEnv))
		if key == "" {
			return nil, fmt.Errorf("llm provider gemini needs %s set", cfg.APIKeyEnv)
		}
		g, err := llm.NewGemini(ctx, key, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return g, nil
	}
	return nil, errors.New("unknown llm provider " + cfg.Provider)
}

// NewInvoker picks fixtures when a fixtures directory is configured, else
// HTTP calls against static endpoints or the registry, cached for CacheTTL.
func NewInvoker(cfg config.SpecialistsConfig, log *zap.Logger) specialist.Invoker {
	if cfg.FixturesDir != "" {
		return specialist.FixtureInvoker{Dir: cfg.FixturesDir}
	}
	client := &http.Client{Timeout: cfg.Timeout}
	var resolver specialist.Resolver = specialist.StaticResolver(cfg.AgentEndpoints())
	if cfg.RegistryURL != "" {
		resolver = specialist.ChainResolver{resolver, specialist.RegistryResolver{BaseURL: cfg.RegistryURL, Client: client}}
	}
	if cfg.CacheTTL > 0 {
		resolver = specialist.NewCachingResolver(resolver, cfg.CacheTTL)
	}
	return specialist.HTTPInvoker{Resolver: resolver, Client: client, Logger: log}
}
