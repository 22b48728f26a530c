package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"modelfetch/internal/catalog"
	"modelfetch/internal/config"
	"modelfetch/internal/diag"
	"modelfetch/internal/download"
	"modelfetch/internal/fsutil"
	"modelfetch/internal/history"
	"modelfetch/internal/logging"
	"modelfetch/internal/tui"

	modelprogress "modelfetch/internal/progress"
)

var (
	installedMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render("✓")
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	headerStyle   = lipgloss.NewStyle().Bold(true)
)

func runTUI() {
	a := setup(true)
	defer a.close()

	startTime := time.Now()
	a.logger.Info("app.started", "Application started", map[string]interface{}{
		"version": version,
		"ts":      startTime.UTC().Format(time.RFC3339),
	})

	bridge := tui.NewBridge()
	ctrl := a.controller(download.Observers{a.history, bridge})

	p := tea.NewProgram(tui.NewModel(a.logger, ctrl, bridge, a.cfg.StateDir))
	_, err := p.Run()

	// Quitting cancels a running download; the partial file stays for resume
	bridge.Stop()
	ctrl.Close()

	exitReason := "normal"
	if err != nil {
		exitReason = "error"
		a.logger.Error("app.error", "Application error", map[string]interface{}{
			"error": err.Error(),
		})
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		a.close()
		os.Exit(1)
	}

	a.logger.Info("app.exited", "Application exited", map[string]interface{}{
		"reason":   exitReason,
		"duration": time.Since(startTime).Round(time.Second).String(),
	})
}

func runList() {
	a := setup(false)
	defer a.close()

	ctrl := a.controller(nil)
	defer ctrl.Close()

	fmt.Println(headerStyle.Render("Whisper models"))
	for _, vs := range ctrl.Variants() {
		mark := " "
		if vs.Installed {
			mark = installedMark
		}
		line := fmt.Sprintf("  %s %-18s %-10s %s", mark, vs.Variant.ID, vs.Variant.SizeLabel, vs.Variant.Name)
		if vs.PartialBytes > 0 {
			line += dimStyle.Render(fmt.Sprintf("  (partial %s)", humanize.Bytes(uint64(vs.PartialBytes))))
		}
		fmt.Println(line)
	}
	fmt.Println()
	fmt.Printf("Models directory: %s\n", a.cfg.ModelsDir)
}

func runDownload() {
	a := setup(false)
	defer a.close()
	v := a.lookup("download <variant>")

	outcomes := make(chan download.Outcome, 1)
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))
	observer := download.ObserverFuncs{
		Progress: func(_ catalog.Variant, ev modelprogress.Event) {
			fmt.Printf("\r%s %s   ", bar.ViewAs(ev.Clamp()/100), ev.Status())
		},
		Outcome: func(o download.Outcome) { outcomes <- o },
	}

	ctrl := a.controller(download.Observers{a.history, observer})
	defer ctrl.Close()

	if err := ctrl.RequestDownload(v.ID); err != nil {
		if errors.Is(err, download.ErrAlreadyInstalled) {
			fmt.Println("Model file already exists, no need to download again")
			return
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		a.close()
		os.Exit(1)
	}

	fmt.Printf("Downloading %s\n", v.DisplayName())
	fmt.Println(download.ConnectingStatus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var o download.Outcome
	select {
	case o = <-outcomes:
	case <-ctx.Done():
		fmt.Println()
		fmt.Println("Cancelling...")
		if !ctrl.CancelDownload() {
			fmt.Println("Installing, cancel ignored")
		}
		o = <-outcomes
	}
	fmt.Println()

	switch o.Kind {
	case download.OutcomeSuccess:
		fmt.Printf("✓ %s\n", o.Message())
		fmt.Printf("  Installed at %s\n", o.Path)
	case download.OutcomeCancelled:
		fmt.Println(o.Message())
		fmt.Println("  The partial file is kept; run the command again to resume")
	default:
		fmt.Fprintf(os.Stderr, "❌ Download failed: %s\n", o.Message())
		ctrl.Close()
		a.close()
		os.Exit(1)
	}
}

func runStatus() {
	a := setup(false)
	defer a.close()

	if err := a.library.Sync(a.catalog); err != nil {
		a.logger.Warn("models.status.sync_failed", "Failed to sync inventory", map[string]interface{}{
			"error": err.Error(),
		})
	}

	entries, err := a.library.Entries()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to read inventory: %v\n", err)
		a.close()
		os.Exit(1)
	}

	fmt.Println(headerStyle.Render("Installed models"))
	if len(entries) == 0 {
		fmt.Println("  none")
	}
	for _, e := range entries {
		fmt.Printf("  %s %-18s %10s  %s  %s\n", installedMark, e.Variant,
			humanize.Bytes(uint64(e.Size)), shortDigest(e.Digest), humanize.Time(e.InstalledAt))
	}

	if stats, statsErr := a.library.Stats(); statsErr == nil && stats.Count > 0 {
		fmt.Printf("\nTotal: %d models, %s\n", stats.Count, humanize.Bytes(uint64(stats.TotalSize)))
	}

	fmt.Println()
	if info, leaseErr := a.lease.Status(); leaseErr != nil {
		fmt.Printf("Download lease: unreadable (%v)\n", leaseErr)
	} else if info != nil {
		fmt.Printf("Download lease: pid %d is downloading %s (since %s)\n",
			info.PID, info.Variant, humanize.Time(info.SinceTS))
	} else {
		fmt.Println("Download lease: free")
	}
	if free, spaceErr := fsutil.FreeSpace(a.cfg.CacheDir); spaceErr == nil {
		fmt.Printf("Cache free space: %s\n", humanize.IBytes(free))
	}
}

func runHistory() {
	a := setup(false)
	defer a.close()

	limit := 20
	if hasFlag("--all") {
		limit = 0
	}

	records, err := history.Read(a.history.Path(), limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		a.close()
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("No downloads recorded")
		return
	}

	fmt.Println(headerStyle.Render("Download history"))
	for _, r := range records {
		detail := r.Error
		if r.Outcome == download.OutcomeSuccess.String() {
			detail = fmt.Sprintf("%s at %s/s", humanize.Bytes(uint64(r.Bytes)), humanize.Bytes(uint64(r.BytesPerSecond)))
		}
		fmt.Printf("  %-20s %-16s %-9s %8s  %s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Variant, r.Outcome,
			time.Duration(r.DurationSeconds*float64(time.Second)).Round(time.Second), detail)
	}
}

func runVerify() {
	a := setup(false)
	defer a.close()
	v := a.lookup("verify <variant>")

	result, err := a.library.Verify(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to verify %s: %v\n", v.ID, err)
		a.close()
		os.Exit(1)
	}

	if !result.OK {
		fmt.Fprintf(os.Stderr, "❌ %s does not match the recorded digest\n", result.Path)
		fmt.Fprintf(os.Stderr, "   expected %s\n   actual   %s\n", result.Expected, result.Actual)
		a.close()
		os.Exit(1)
	}
	fmt.Printf("✓ %s verified (%s)\n", v.DisplayName(), result.Actual)
}

func runCheck() {
	a := setup(false)
	defer a.close()

	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: modelfetch check <type>\n")
		fmt.Fprintf(os.Stderr, "Example: modelfetch check tiny\n")
		a.close()
		os.Exit(1)
	}

	found, err := a.library.HasType(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		a.close()
		os.Exit(1)
	}
	if !found {
		fmt.Printf("No %s model installed\n", os.Args[2])
		a.close()
		os.Exit(1)
	}
	fmt.Printf("✓ %s model installed\n", os.Args[2])
}

func runRemove() {
	a := setup(false)
	defer a.close()
	v := a.lookup("remove <variant> [--yes]")

	if !a.library.IsInstalled(v) {
		fmt.Printf("%s is not installed\n", v.DisplayName())
		return
	}

	if !hasFlag("--yes") {
		fmt.Printf("⚠️  Warning: This will permanently delete %s\n", a.library.Path(v))
		fmt.Print("Are you sure? (yes/no): ")

		var response string
		if _, scanErr := fmt.Scanln(&response); scanErr != nil && !errors.Is(scanErr, io.EOF) {
			fmt.Fprintf(os.Stderr, "Failed to read confirmation: %v\n", scanErr)
			a.close()
			os.Exit(1)
		}
		if strings.ToLower(strings.TrimSpace(response)) != confirmationYes {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := a.library.Delete(v); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to delete model: %v\n", err)
		a.close()
		os.Exit(1)
	}
	fmt.Printf("✓ %s removed\n", v.DisplayName())
}

func runUnlock() {
	a := setup(false)
	defer a.close()

	if err := a.lease.ForceRelease(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to release download lease: %v\n", err)
		a.close()
		os.Exit(1)
	}
	fmt.Println("✓ Download lease released")
}

func runConfig() {
	logger := logging.NewLogger(logging.LevelInfo)

	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: modelfetch config <subcommand>\n")
		fmt.Fprintf(os.Stderr, "Subcommands:\n")
		fmt.Fprintf(os.Stderr, "  test [path]  Test configuration file for validity\n")
		os.Exit(1)
	}

	switch subcommand := strings.ToLower(os.Args[2]); subcommand {
	case "test":
		runConfigTest(logger)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", subcommand)
		fmt.Fprintf(os.Stderr, "Valid subcommands: test\n")
		os.Exit(1)
	}
}

// runConfigTest validates the merged configuration or a single file
func runConfigTest(logger *logging.Logger) {
	var cfg config.Config
	var err error

	if len(os.Args) > 3 {
		path := os.Args[3]
		fmt.Printf("Testing configuration file: %s\n", path)
		cfg, err = config.LoadFrom(path)
	} else {
		fmt.Println("Testing configuration (system + user merge):")
		fmt.Printf("  System config: %s\n", config.SystemConfigPath())
		if userPath := config.UserConfigPath(); userPath != "" {
			fmt.Printf("  User config:   %s\n", userPath)
		}
		fmt.Println()
		cfg, err = config.Load()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation FAILED:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		logger.Error("config.validation.error", "Configuration validation failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	fmt.Println("✓ Configuration is VALID")
	fmt.Println()
	fmt.Println("Configuration Summary:")
	fmt.Printf("  Models Dir:     %s\n", cfg.ModelsDir)
	fmt.Printf("  Cache Dir:      %s\n", cfg.CacheDir)
	fmt.Printf("  State Dir:      %s\n", cfg.StateDir)
	if cfg.CatalogFile != "" {
		fmt.Printf("  Catalog File:   %s\n", cfg.CatalogFile)
	}
	fmt.Printf("  Agent:          %s\n", cfg.Transfer.Agent)
	if cfg.Transfer.Agent == config.AgentAria2 {
		fmt.Printf("  Agent Binary:   %s\n", cfg.Transfer.Binary)
	}
	fmt.Printf("  Source:         %s\n", cfg.Transfer.Source)
	fmt.Printf("  Grace Period:   %ds\n", cfg.Transfer.GracePeriodSeconds)
	fmt.Printf("  Space Check:    %t\n", cfg.Transfer.SpaceCheck())
	fmt.Printf("  Log Level:      %s\n", cfg.Logging.Level)
	fmt.Printf("  Log Format:     %s\n", cfg.Logging.Format)

	logger.Info("config.validation.ok", "Configuration validation passed", map[string]interface{}{
		"agent":  cfg.Transfer.Agent,
		"source": cfg.Transfer.Source,
	})
}

func runDiag() {
	a := setup(false)
	defer a.close()

	cfg := diag.NewConfig(version)
	cfg.LogFile = a.cfg.Logging.File
	cfg.ConfigPaths = []string{config.SystemConfigPath(), config.UserConfigPath()}
	cfg.StateDir = a.cfg.StateDir
	cfg.ModelsDir = a.cfg.ModelsDir
	cfg.CacheDir = a.cfg.CacheDir
	if a.cfg.Transfer.Agent == config.AgentAria2 {
		cfg.AgentBinary = a.cfg.Transfer.Binary
	}

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--output":
			if i+1 < len(args) {
				cfg.OutputPath = args[i+1]
				i++
			}
		case "--no-logs":
			cfg.IncludeLogs = false
		case "--no-config":
			cfg.IncludeConfig = false
		}
	}

	fmt.Println("Creating diagnostic package...")
	path, err := diag.NewPackager(cfg, a.logger).CreatePackage(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create diagnostic package: %v\n", err)
		a.close()
		os.Exit(1)
	}
	fmt.Printf("✓ Diagnostic package created: %s\n", path)
}

func hasFlag(flag string) bool {
	for _, arg := range os.Args[2:] {
		if arg == flag {
			return true
		}
	}
	return false
}

// shortDigest abbreviates a recorded digest for display.
func shortDigest(digest string) string {
	switch {
	case digest == "":
		return "unverified"
	case len(digest) > 16:
		return digest[:16]
	default:
		return digest
	}
}
