// Package cli implements the agent-context admin CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/app"
	"github.com/rcliao/agent-context/internal/config"
)

var (
	configPath string
	dbPath     string
	formatFlag string
	verbose    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agent-context",
	Short: "Memory and context assembly for an LLM gateway",
	Long:  "Inspect and manage the memory store behind the context assembler. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AGENT_CONTEXT_CONFIG"), "YAML config file (default: $AGENT_CONTEXT_CONFIG)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $AGENT_CONTEXT_DB or ~/.agent-context/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Memory.DBPath = dbPath
	}
	return cfg, nil
}

func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openWith(cfg)
}

func openWith(cfg *config.Config) (*app.App, error) {
	return app.Open(cfg, app.WithLogger(newLogger()))
}

func mustOpenApp() *app.App {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	return a
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func textFormat() bool {
	return strings.EqualFold(formatFlag, "text")
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
