package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hacastro22/watibot3-sub002/internal/config"
	"github.com/hacastro22/watibot3-sub002/internal/debounce"
	"github.com/hacastro22/watibot3-sub002/internal/store"
	"github.com/hacastro22/watibot3-sub002/internal/store/pg"
	"github.com/hacastro22/watibot3-sub002/internal/store/sqlite"
	"github.com/hacastro22/watibot3-sub002/internal/upgrade"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, channels and buffer store health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("watibot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Buffer:")
	fmt.Printf("    %-14s %s\n", "Quiet period:", cfg.Buffer.QuietPeriodDuration())
	opts := cfg.Buffer.ToOptions()
	fmt.Printf("    %-14s %s\n", "Lookback:", opts.LookbackMargin)
	fmt.Printf("    %-14s %d retries, %s..%s\n", "Drain retry:", opts.DrainRetry.MaxRetries, opts.DrainRetry.BaseDelay, opts.DrainRetry.MaxDelay)
	if cfg.Buffer.SweepEnabled() {
		status := "OK"
		if err := debounce.ValidateSweepSchedule(cfg.Buffer.SweepSchedule); err != nil {
			status = "INVALID"
		}
		fmt.Printf("    %-14s %s (%s)\n", "Sweep:", cfg.Buffer.SweepSchedule, status)
	} else {
		fmt.Printf("    %-14s off\n", "Sweep:")
	}

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("WATI", cfg.Channels.Wati)
	checkChannel("ManyChat", cfg.Channels.ManyChat)
	checkChannel("Generic", cfg.Channels.Generic)

	fmt.Println()
	fmt.Println("  Processor:")
	switch cfg.Processor.Mode {
	case "http":
		fmt.Printf("    %-14s http %s (timeout %s)\n", "Mode:", cfg.Processor.URL, cfg.Processor.TimeoutDuration())
		fmt.Printf("    %-14s %s\n", "API key:", maskSecret(cfg.Processor.APIKey))
	case "", "log":
		fmt.Printf("    %-14s log (batches are only logged)\n", "Mode:")
	default:
		fmt.Printf("    %-14s %q (UNKNOWN)\n", "Mode:", cfg.Processor.Mode)
	}

	fmt.Println()
	fmt.Println("  Database:")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cfg.Database.Mode == "managed" {
		checkManagedDB(ctx, cfg)
	} else {
		checkStandaloneDB(ctx, cfg)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkManagedDB(ctx context.Context, cfg *config.Config) {
	fmt.Printf("    %-14s managed (postgres)\n", "Mode:")
	if cfg.Database.PostgresDSN == "" {
		fmt.Printf("    %-14s WATIBOT_POSTGRES_DSN not set\n", "Status:")
		return
	}
	db, err := pg.OpenDB(cfg.Database.PostgresDSN)
	if err != nil {
		fmt.Printf("    %-14s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(ctx, db)
	switch {
	case err != nil:
		fmt.Printf("    %-14s CHECK FAILED (%s)\n", "Schema:", err)
		return
	case s.Dirty:
		fmt.Printf("    %-14s v%d (DIRTY, see: watibot migrate force)\n", "Schema:", s.CurrentVersion)
		return
	case s.Compatible:
		fmt.Printf("    %-14s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-14s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
		return
	default:
		fmt.Printf("    %-14s v%d (run: watibot migrate up)\n", "Schema:", s.CurrentVersion)
		return
	}

	printPending(ctx, pg.NewPGBufferStore(db))
}

func checkStandaloneDB(ctx context.Context, cfg *config.Config) {
	path := config.ExpandHome(cfg.Database.SQLitePath)
	fmt.Printf("    %-14s standalone (sqlite %s)\n", "Mode:", path)
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("    %-14s not created yet\n", "Status:")
		return
	}
	bs, err := sqlite.Open(path)
	if err != nil {
		fmt.Printf("    %-14s OPEN FAILED (%s)\n", "Status:", err)
		return
	}
	defer bs.Close()
	printPending(ctx, bs)
}

func printPending(ctx context.Context, bs store.BufferStore) {
	pending, err := bs.ListPending(ctx)
	if err != nil {
		fmt.Printf("    %-14s QUERY FAILED (%s)\n", "Pending:", err)
		return
	}
	total := 0
	for _, p := range pending {
		total += p.Count
	}
	fmt.Printf("    %-14s %d conversation(s), %d message(s)\n", "Pending:", len(pending), total)
}

func checkChannel(name string, ch config.WebhookChannelConfig) {
	status := "disabled"
	if ch.Enabled {
		status = "enabled"
		if ch.WebhookSecret == "" {
			status += " (no webhook secret)"
		}
		if len(ch.AllowFrom) > 0 {
			status += fmt.Sprintf(", %d allowed sender(s)", len(ch.AllowFrom))
		}
	}
	fmt.Printf("    %-14s %s\n", name+":", status)
}

func maskSecret(s string) string {
	if s == "" {
		return "(not configured)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
