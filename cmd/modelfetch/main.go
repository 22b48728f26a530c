package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"modelfetch/internal/catalog"
	"modelfetch/internal/config"
	"modelfetch/internal/download"
	"modelfetch/internal/history"
	"modelfetch/internal/lease"
	"modelfetch/internal/logging"
	"modelfetch/internal/models"
	"modelfetch/internal/transfer"
)

const (
	version         = "0.1.0-dev"
	confirmationYes = "yes"
)

func main() {
	if len(os.Args) <= 1 {
		runTUI()
		return
	}

	command := strings.ToLower(os.Args[1])
	if handler, ok := commandHandlers()[command]; ok {
		handler()
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
	printUsage()
	os.Exit(1)
}

func commandHandlers() map[string]func() {
	return map[string]func(){
		"tui":      runTUI,
		"list":     runList,
		"download": runDownload,
		"status":   runStatus,
		"history":  runHistory,
		"verify":   runVerify,
		"check":    runCheck,
		"remove":   runRemove,
		"delete":   runRemove, // Alias for remove
		"unlock":   runUnlock,
		"config":   runConfig,
		"diag":     runDiag,
		"version":  runVersion,
		"help":     printUsage,
		"--help":   printUsage,
		"-h":       printUsage,
	}
}

// app holds the wired components shared by the commands
type app struct {
	cfg     config.Config
	logger  *logging.Logger
	catalog *catalog.Catalog
	library *models.Library
	lease   *lease.Manager
	history *history.Writer
}

// setup loads configuration and builds the catalog and library. quiet sends
// logs nowhere unless a log file is configured; the TUI owns the terminal.
func setup(quiet bool) *app {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging, quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to open log file: %v\n", err)
		os.Exit(1)
	}

	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		cat, err = catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to load catalog: %v\n", err)
			os.Exit(1)
		}
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		catalog: cat,
		library: models.NewLibrary(cfg.StateDir, cfg.ModelsDir, logger),
		lease:   lease.NewManager(cfg.StateDir, logger),
		history: history.NewWriter(cfg.StateDir, logger),
	}
}

func newLogger(cfg config.LoggingConfig, quiet bool) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)

	var logger *logging.Logger
	switch {
	case cfg.File != "":
		fileLogger, err := logging.NewFileLogger(level, cfg.File)
		if err != nil {
			return nil, err
		}
		logger = fileLogger
	case quiet:
		return nil, nil
	default:
		logger = logging.NewLogger(level)
	}

	logger.SetFormat(logging.Format(cfg.Format))
	return logger, nil
}

// agent builds the configured transfer agent
func (a *app) agent() transfer.Agent {
	if a.cfg.Transfer.Agent == config.AgentHTTP {
		return transfer.NewHTTP(a.logger)
	}
	agent := transfer.NewAria2(a.cfg.Transfer.Binary, a.logger)
	agent.GracePeriod = time.Duration(a.cfg.Transfer.GracePeriodSeconds) * time.Second
	return agent
}

// controller builds the download controller reporting to observer
func (a *app) controller(observer download.Observer) *download.Controller {
	policy, err := download.ParseSourcePolicy(a.cfg.Transfer.Source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	ctrl, err := download.New(download.Options{
		Catalog:    a.catalog,
		Library:    a.library,
		Agent:      a.agent(),
		CacheDir:   a.cfg.CacheDir,
		Policy:     policy,
		SpaceCheck: a.cfg.Transfer.SpaceCheck(),
		Lease:      a.lease,
		Observer:   observer,
		Logger:     a.logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to initialize downloads: %v\n", err)
		os.Exit(1)
	}
	return ctrl
}

// lookup resolves the variant named by os.Args[2] or exits with usage
func (a *app) lookup(usage string) catalog.Variant {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: modelfetch %s\n", usage)
		os.Exit(1)
	}
	v, err := a.catalog.Lookup(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'modelfetch list' to see available variants\n")
		os.Exit(1)
	}
	return v
}

func (a *app) close() {
	if err := a.logger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", err)
	}
}

func runVersion() {
	fmt.Printf("modelfetch version %s\n", version)
}

// printUsage displays usage information
func printUsage() {
	fmt.Printf(`modelfetch - Whisper model download manager (version %s)

Usage:
  modelfetch                       Start the interactive download dialog (default)
  modelfetch tui                   Same as above
  modelfetch list                  List catalog variants with install markers
  modelfetch download <variant>    Download and install a variant (Ctrl+C cancels, partial file is kept)
  modelfetch status                Show installed models, digests and the active download lease
  modelfetch history [--all]       Show recent download outcomes
  modelfetch verify <variant>      Recompute the digest of an installed model
  modelfetch check <type>          Report whether a model of the given type is installed
  modelfetch remove <variant> [--yes]  Delete an installed model
  modelfetch unlock                Force release the download lease (recovery)
  modelfetch config test [path]    Test configuration file for validity (defaults to system/user configs)
  modelfetch diag [--output path] [--no-logs] [--no-config]  Create diagnostic package (ZIP)
  modelfetch version               Print version information
  modelfetch help                  Show this help message

Variants may be given by id (tiny, base, small, medium, large-v3) or by display name.

Environment:
  MODELFETCH_MODELS_DIR, MODELFETCH_CACHE_DIR, MODELFETCH_STATE_DIR override the configured directories
  MODELFETCH_CONFIG_DIR overrides the system configuration directory
`, version)
}
