package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/hacastro22/watibot3-sub002/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "watibot",
	Short: "watibot: inbound message debounce gateway",
	Long:  "watibot receives chat webhooks (WATI, ManyChat, generic), buffers each conversation durably and hands the burst to the AI engine once the customer stops typing.",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $WATIBOT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(bufferCmd())
	rootCmd.AddCommand(migrateCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("watibot %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("WATIBOT_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// setupLogging installs the default slog logger. -v wins over
// WATIBOT_LOG_LEVEL; WATIBOT_LOG_FORMAT=json switches to JSON lines for log
// shippers.
func setupLogging() {
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, os.Getenv("WATIBOT_LOG_LEVEL"), os.Getenv("WATIBOT_LOG_FORMAT"), verbose)))
}

func newLogHandler(w io.Writer, level, format string, debug bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLogLevel accepts debug, info, warn/warning and error; anything else is info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
