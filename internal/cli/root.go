// Package cli provides the command-line interface for the chart scanner.
package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chart-scanner/internal/analysis/indicators"
	"chart-scanner/internal/config"
	"chart-scanner/internal/logging"
	"chart-scanner/internal/marketdata"
	"chart-scanner/internal/publish"
	"chart-scanner/internal/scanner"
	"chart-scanner/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-16"
)

// App holds the application dependencies. Everything beyond Config and
// Logger is created on first use so that commands such as version and
// config path work without credentials or a writable cache.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	source    string
	store     store.BarStore
	scanner   *scanner.Scanner
	publisher publish.Publisher
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "scanner",
		Short: "Chart Scanner - Bollinger Bands and chart pattern detection",
		Long: `Chart Scanner fetches daily price history for one instrument and runs
either Bollinger Bands or one of the chart pattern detectors over it.

Every bar where a pattern's raw predicate holds is reported. Nothing is
scored or filtered.

Use 'scanner detectors' to list the available computations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory or file (default: ~/.config/chart-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("source", "", "data source override (yahoo, kite, csv)")

	addScanCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addCoreCommands(rootCmd, app)

	return rootCmd
}

// Execute runs the CLI with ctx as the base context of every command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *App) setup(cmd *cobra.Command) error {
	configFlag, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	a.Config = cfg

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	if cfg.Logging.Path != "" {
		logCfg.FilePath = cfg.Logging.Path
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logCfg.Level = "debug"
	}
	a.Logger = logging.NewLoggerWithConfig(logCfg)

	if cfg.TemplateCreated() {
		a.Logger.Info().Str("path", cfg.Path()).Msg("Created configuration template")
	}

	a.source, _ = cmd.Flags().GetString("source")
	a.source = strings.ToLower(strings.TrimSpace(a.source))
	return nil
}

func loadConfig(flag string) (*config.Config, error) {
	switch {
	case flag == "":
		return config.Load("")
	case strings.EqualFold(filepath.Ext(flag), ".toml"):
		return config.LoadFile(flag)
	default:
		return config.Load(flag)
	}
}

// Store returns the bar cache, opening it on first use. It returns nil when
// the cache is disabled or cannot be opened.
func (a *App) Store() store.BarStore {
	if a.store != nil || a.Config == nil || !a.Config.Cache.Enabled {
		return a.store
	}
	db, err := store.NewSQLiteStore(a.Config.Cache.Path)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to open bar cache, fetching live")
		return nil
	}
	a.store = db
	a.Logger.Debug().Str("path", a.Config.Cache.Path).Msg("Bar cache opened")
	return a.store
}

// Scanner returns the scanner, building the data source on first use.
func (a *App) Scanner() (*scanner.Scanner, error) {
	if a.scanner != nil {
		return a.scanner, nil
	}
	cfg := *a.Config
	if a.source != "" {
		cfg.Data.Source = a.source
	}

	src, err := marketdata.New(&cfg, a.Store(), a.Logger)
	if err != nil {
		return nil, err
	}

	sc, err := scanner.New(src, scanner.Config{
		Bollinger: indicators.BollingerConfig{
			Window:     cfg.Bollinger.Window,
			Multiplier: cfg.Bollinger.Multiplier,
		},
		Workers: cfg.Engine.Workers,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("source", src.Name()).Msg("Scanner initialized")
	a.scanner = sc
	return sc, nil
}

// Publisher returns the NATS publisher when publishing is enabled.
func (a *App) Publisher() (publish.Publisher, error) {
	if a.publisher != nil || !a.Config.Publish.Enabled {
		return a.publisher, nil
	}
	cfg := publish.DefaultConfig()
	cfg.URL = a.Config.Publish.URL
	cfg.SubjectPrefix = a.Config.Publish.SubjectPrefix
	p, err := publish.NewNATSPublisher(cfg, a.Logger)
	if err != nil {
		return nil, err
	}
	a.publisher = p
	return p, nil
}

// Close releases the cache and publisher.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
		a.publisher = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close bar cache")
		}
		a.store = nil
	}
}

// fetchTimeout bounds a single data source call from the CLI.
func (a *App) fetchTimeout() time.Duration {
	d := a.Config.Data.Timeout * time.Duration(a.Config.Data.Retries+1)
	if d <= 0 {
		return time.Minute
	}
	return d + 10*time.Second
}

func (a *App) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithLogger(ctx, a.Logger)
	return context.WithTimeout(ctx, a.fetchTimeout())
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Chart Scanner v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func requireArg(name string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("requires exactly one %s argument", name)
		}
		return nil
	}
}
