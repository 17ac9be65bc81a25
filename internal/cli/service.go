package cli

import (
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/breakq/internal/breaks"
	"github.com/roach88/breakq/internal/catalog"
	"github.com/roach88/breakq/internal/clock"
	"github.com/roach88/breakq/internal/config"
	"github.com/roach88/breakq/internal/engine"
	"github.com/roach88/breakq/internal/ingress"
	"github.com/roach88/breakq/internal/notify"
	"github.com/roach88/breakq/internal/queue"
	"github.com/roach88/breakq/internal/store"
)

// Lease names shared by every process using one database.
const (
	processorLock    = "processor"
	submitLockPrefix = "submit:"
)

// service is the wired set of components a command works with.
type service struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *store.SQLite
	catalog   *catalog.Catalog
	loc       *time.Location
	clock     clock.Clock
	queue     *queue.Queue
	machine   *breaks.Machine
	gate      *ingress.Gate
	processor *engine.Processor
}

// newLogger installs a text handler on w; verbose lowers the level to Debug.
func newLogger(verbose bool, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads config and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	return cfg, nil
}

// openService loads config and opens the store. Failures are reported
// through f and returned as ExitCommandError. notifier may be nil, in which
// case replies go to the log.
func openService(opts *RootOptions, cmd *cobra.Command, f *OutputFormatter, notifier notify.Notifier) (*service, error) {
	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	cat, err := cfg.LoadCatalog()
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeCatalog, "failed to load catalog", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load timezone", err)
	}

	f.VerboseLog("opening database %s", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}

	if notifier == nil {
		notifier = notify.Log{Logger: logger}
	}

	// serve, batch and submit may run as separate processes on one file.
	locker := engine.Chain(engine.NewLocalLocker(), store.NewLeaseLocker(st, processorLock, cfg.LeaseTTL))

	svc := &service{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		catalog: cat,
		loc:     loc,
		clock:   clock.System{Location: loc},
	}
	svc.queue = queue.New(st, nil)
	svc.machine = breaks.NewMachine(st, cat, loc).WithLogger(logger)
	svc.gate = ingress.NewGate(svc.queue, cat, ingress.Options{
		Clock:        svc.clock,
		Notifier:     notifier,
		Logger:       logger,
		ExpectedWait: cfg.Cadence(),
		UserLocks:    store.NewLeaseSet(st, submitLockPrefix, cfg.LeaseTTL),
		LockWait:     cfg.LockWait,
	})
	svc.processor = engine.NewProcessor(svc.queue, svc.machine, engine.Options{
		BatchSize: cfg.BatchSize,
		LockWait:  cfg.LockWait,
		Locker:    locker,
		Clock:     svc.clock,
		Notifier:  notifier,
		Logger:    logger,
	})
	return svc, nil
}

// Close closes the store, logging failures.
func (s *service) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}
