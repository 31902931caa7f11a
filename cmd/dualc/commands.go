package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sbl8/dualc/compiler"
	"github.com/sbl8/dualc/config"
	"github.com/sbl8/dualc/logging"
	"github.com/sbl8/dualc/runtime"
	"github.com/sbl8/dualc/store"
	"github.com/sbl8/dualc/telemetry"
)

const version = "0.1.0"

// PlanExt is the file extension of serialized plans.
const PlanExt = ".dplan"

var (
	configPath string
	logLevel   string
	logJSON    bool
	traceOut   bool
	metricsOut bool

	// app is populated by PersistentPreRunE and torn down after each
	// command.
	app *appState
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dualc",
		Short:        "Compile and run declarative operations over the 96-class state space",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			app = s
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app == nil {
				return nil
			}
			err := app.close()
			app = nil
			return err
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logJSON, "json-log", false, "emit JSON log records")
	root.PersistentFlags().BoolVar(&traceOut, "trace", false, "export spans to stderr")
	root.PersistentFlags().BoolVar(&metricsOut, "metrics", false, "export metrics to stderr on exit")

	root.AddCommand(newCompileCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVerifyCmd())
	return root
}

// appState is what every subcommand shares.
type appState struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	compiler *compiler.Compiler
	engine   *runtime.Engine
	shutdown func(context.Context) error
}

func setup(ctx context.Context) (*appState, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logJSON {
		cfg.Log.JSON = true
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{Level: level, JSON: cfg.Log.JSON, Service: "dualc"})

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "dualc",
		ServiceVersion: version,
		Traces:         traceOut,
		Metrics:        metricsOut,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	s := &appState{cfg: cfg, logger: logger, shutdown: shutdown}
	if cfg.Store.Enabled() {
		scfg := store.DefaultConfig(cfg.Store.Path)
		scfg.InMemory = cfg.Store.InMemory
		scfg.Logger = logger
		st, err := store.Open(scfg)
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
		s.store = st
	}

	s.compiler = compiler.New(compiler.Options{
		Logger:     logger,
		CacheSize:  cfg.Compiler.CacheSize,
		Store:      s.store,
		Specialize: cfg.Compiler.Specialize,
		MaxPasses:  cfg.Compiler.MaxPasses,
	})

	eopts := runtime.DefaultEngineOptions()
	eopts.Logger = logger
	s.engine = runtime.NewEngine(eopts)
	return s, nil
}

func (s *appState) close() error {
	var firstErr error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			firstErr = err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
