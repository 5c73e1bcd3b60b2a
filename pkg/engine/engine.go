// Package engine wires the memory lifecycle subsystems into a single object
// constructed once at startup: the record store, the maintenance sweeps and
// their schedulers, the backup coordinator, the conversation assembler, and
// the health monitor.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/backup"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/conversation"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/health"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/lifecycle"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/respond"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/respond/ollama"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/respond/openai"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/scheduler"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store"
	filestore "github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store/file"
	mysqlstore "github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store/mysql"
	postgresstore "github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store/postgres"
	sqlitestore "github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store/sqlite"
)

// shutdownGrace is the per-scheduler drain timeout during shutdown.
const shutdownGrace = 30 * time.Second

// Engine is the top-level memory lifecycle engine.
//
// It owns the record store, the expiry cleaner, the usage optimizer, the
// backup coordinator, the conversation assembler, the health monitor, and
// one scheduler per maintenance sweep. Construct it once at startup with New
// and pass it by reference; Start launches the schedulers and Shutdown
// drains them.
//
// Example:
//
//	cfg, _ := core.LoadConfigFromEnv()
//	eng, err := engine.New(cfg, world.CurrentDay)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng.Start()
//	defer eng.Shutdown(context.Background())
type Engine struct {
	cfg       *core.Config
	store     store.RecordStore
	generator respond.Generator
	cleaner   *lifecycle.ExpiryCleaner
	optimizer *lifecycle.UsageOptimizer
	backups   *backup.Coordinator
	assembler *conversation.Assembler
	monitor   *health.Monitor
	day       core.DaySource
	logger    *slog.Logger

	// storeMu is the coarse lock serializing load-mutate-save cycles across
	// all subsystems.
	storeMu sync.Mutex

	schedulers []*scheduler.Scheduler

	mu      sync.Mutex
	started bool
}

// Option configures the engine.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	generator respond.Generator
	recStore  store.RecordStore
}

// WithLogger sets the engine's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithGenerator injects a response generator, bypassing the provider
// configured in cfg.Responder.
func WithGenerator(g respond.Generator) Option {
	return func(o *options) {
		o.generator = g
	}
}

// WithRecordStore injects a record store, bypassing the backend configured
// in cfg.Store.
func WithRecordStore(s store.RecordStore) Option {
	return func(o *options) {
		o.recStore = s
	}
}

// New creates the engine from configuration.
//
// Parameters:
//   - cfg: Engine configuration; nil loads from environment variables
//   - day: Source of the current logical day, supplied by the host
//     application (the engine never computes this itself)
//   - opts: Optional overrides (logger, generator, record store)
//
// Returns the engine, or an error if the configuration is invalid or a
// backend cannot be initialized.
func New(cfg *core.Config, day core.DaySource, opts ...Option) (*Engine, error) {
	if cfg == nil {
		var err error
		cfg, err = core.LoadConfigFromEnv()
		if err != nil {
			return nil, core.NewEngineError("New", err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if day == nil {
		return nil, core.NewEngineError("New",
			fmt.Errorf("%w: logical day source is required", core.ErrInvalidConfig))
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	recStore := o.recStore
	if recStore == nil {
		var err error
		recStore, err = buildStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	generator := o.generator
	if generator == nil {
		var err error
		generator, err = buildGenerator(cfg.Responder)
		if err != nil {
			return nil, err
		}
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, core.NewEngineError("New", err)
	}

	e := &Engine{
		cfg:       cfg,
		store:     recStore,
		generator: generator,
		day:       day,
		logger:    logger,
	}

	e.cleaner = lifecycle.NewExpiryCleaner(recStore, day, &e.storeMu, logger)
	e.optimizer = lifecycle.NewUsageOptimizer(recStore, e.cleaner, cfg.Retention, cfg.Optimizer, day, &e.storeMu, logger)
	e.backups = backup.NewCoordinator(recStore, cfg.Backup, &e.storeMu, logger)
	e.assembler = conversation.NewAssembler(recStore, generator, node, day, &e.storeMu, logger)
	e.monitor = health.NewMonitor(e.cleaner, e.optimizer, e.backups, cfg.Retention, day, logger)

	e.schedulers = []*scheduler.Scheduler{
		scheduler.New("expiry", core.DefaultExpiryInterval, 0, func(ctx context.Context) error {
			_, err := e.cleaner.CleanupExpired(ctx, day(), cfg.Retention.RetentionDays)
			return err
		}, logger),
		scheduler.New("optimize", cfg.Optimizer.Interval, 0, func(ctx context.Context) error {
			_, err := e.optimizer.PerformOptimization(ctx)
			return err
		}, logger),
		scheduler.New("backup", core.DefaultBackupInterval,
			scheduler.DelayUntilHour(time.Now(), cfg.Backup.Hour),
			func(ctx context.Context) error {
				_, err := e.backups.CreateManualBackup(ctx, "")
				return err
			}, logger),
		scheduler.New("health", cfg.Health.Interval, 0, func(ctx context.Context) error {
			e.monitor.CheckHealth(ctx)
			return nil
		}, logger),
	}

	return e, nil
}

// buildStore constructs the record store backend from configuration,
// wrapping it with the read cache when enabled.
func buildStore(cfg *core.Config) (store.RecordStore, error) {
	var (
		backend store.RecordStore
		err     error
	)

	sc := cfg.Store.Config
	switch cfg.Store.Provider {
	case "file":
		backend, err = filestore.NewStore(&filestore.Config{
			RootDir: getString(sc, "root_dir", "./villager_memories"),
		})
	case "sqlite":
		backend, err = sqlitestore.NewStore(&sqlitestore.Config{
			DBPath:    getString(sc, "db_path", "./villager_memories.db"),
			TableName: getString(sc, "table_name", ""),
		})
	case "postgres":
		backend, err = postgresstore.NewStore(&postgresstore.Config{
			Host:      getString(sc, "host", "localhost"),
			Port:      getInt(sc, "port", 5432),
			User:      getString(sc, "user", "postgres"),
			Password:  getString(sc, "password", ""),
			DBName:    getString(sc, "db_name", "villagemem"),
			TableName: getString(sc, "table_name", ""),
			SSLMode:   getString(sc, "ssl_mode", "disable"),
		})
	case "mysql":
		backend, err = mysqlstore.NewStore(&mysqlstore.Config{
			Host:      getString(sc, "host", "127.0.0.1"),
			Port:      getInt(sc, "port", 3306),
			User:      getString(sc, "user", "root"),
			Password:  getString(sc, "password", ""),
			DBName:    getString(sc, "db_name", "villagemem"),
			TableName: getString(sc, "table_name", ""),
		})
	default:
		return nil, core.NewEngineError("buildStore",
			fmt.Errorf("%w: unknown store provider %q", core.ErrInvalidConfig, cfg.Store.Provider))
	}
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled {
		return store.NewCachedStore(backend, cfg.Cache.MaxStores, cfg.Cache.TTL)
	}
	return backend, nil
}

// buildGenerator constructs the response generator from configuration.
func buildGenerator(cfg core.ResponderConfig) (respond.Generator, error) {
	switch cfg.Provider {
	case "openai", "":
		return openai.NewClient(&openai.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		return ollama.NewClient(&ollama.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, core.NewEngineError("buildGenerator",
			fmt.Errorf("%w: unknown responder provider %q", core.ErrInvalidConfig, cfg.Provider))
	}
}

// Start launches the background maintenance schedulers. Calling Start on a
// started engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	for _, s := range e.schedulers {
		s.Start()
	}
	e.logger.Info("memory engine started",
		slog.String("store_provider", e.cfg.Store.Provider),
		slog.Int("schedulers", len(e.schedulers)))
}

// Shutdown stops all schedulers, waits for in-flight conversation turns and
// maintenance tasks up to a bounded grace period, and closes the store and
// generator.
//
// Returns the first close error encountered, if any.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()

	for _, s := range e.schedulers {
		s.Stop(shutdownGrace)
	}

	done := make(chan struct{})
	go func() {
		e.assembler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("shutdown abandoned in-flight conversation turns")
	}

	var firstErr error
	if err := e.store.Close(); err != nil {
		firstErr = err
	}
	if err := e.generator.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	e.logger.Info("memory engine stopped")
	return firstErr
}

// ProcessConversation runs one conversation turn asynchronously. See
// conversation.Assembler.ProcessConversation.
func (e *Engine) ProcessConversation(ctx context.Context, agentID string, actor core.Actor, input string, kind core.InteractionKind) <-chan *conversation.Result {
	return e.assembler.ProcessConversation(ctx, agentID, actor, input, kind)
}

// EnsureStore creates an empty store for the agent if none exists yet.
func (e *Engine) EnsureStore(ctx context.Context, agentID string) (*core.AgentMemoryStore, error) {
	return e.assembler.EnsureStore(ctx, agentID)
}

// GetConversationContinuity reports how recently the actor last spoke with
// the agent.
func (e *Engine) GetConversationContinuity(ctx context.Context, agentID, actorID string) (*conversation.Continuity, error) {
	return e.assembler.GetConversationContinuity(ctx, agentID, actorID)
}

// CleanupExpired runs one expiry sweep with the configured retention.
func (e *Engine) CleanupExpired(ctx context.Context) (int, error) {
	return e.cleaner.CleanupExpired(ctx, e.day(), e.cfg.Retention.RetentionDays)
}

// PerformOptimization runs one usage optimization pass.
func (e *Engine) PerformOptimization(ctx context.Context) (*lifecycle.OptimizationResult, error) {
	return e.optimizer.PerformOptimization(ctx)
}

// GetMemoryUsageStatistics computes aggregate usage statistics.
func (e *Engine) GetMemoryUsageStatistics(ctx context.Context) (*lifecycle.UsageStatistics, error) {
	return e.optimizer.GetMemoryUsageStatistics(ctx)
}

// CreateManualBackup snapshots every agent store. An empty name generates a
// timestamped one.
func (e *Engine) CreateManualBackup(ctx context.Context, name string) (string, error) {
	return e.backups.CreateManualBackup(ctx, name)
}

// RestoreFromBackup restores agent stores from a snapshot artifact.
func (e *Engine) RestoreFromBackup(ctx context.Context, path string, overwrite bool) (*backup.RestoreResult, error) {
	return e.backups.RestoreFromBackup(ctx, path, overwrite)
}

// ListAvailableBackups returns metadata for every snapshot on disk.
func (e *Engine) ListAvailableBackups() ([]backup.Info, error) {
	return e.backups.ListAvailableBackups()
}

// GetBackupStatistics returns an aggregate view of the backup subsystem.
func (e *Engine) GetBackupStatistics() *backup.Statistics {
	return e.backups.GetBackupStatistics()
}

// CheckHealth runs one health check.
func (e *Engine) CheckHealth(ctx context.Context) *health.Status {
	return e.monitor.CheckHealth(ctx)
}

// PerformComprehensiveCleanup runs expiry, optimization, and a backup as one
// composite operation.
func (e *Engine) PerformComprehensiveCleanup(ctx context.Context) (*health.CleanupReport, error) {
	return e.monitor.PerformComprehensiveCleanup(ctx)
}

// getString reads a string value from a provider config map.
func getString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

// getInt reads an integer value from a provider config map, tolerating the
// float64 produced by JSON decoding.
func getInt(m map[string]interface{}, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
