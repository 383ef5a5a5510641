// Package cli implements the railctl operator commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/rail-support-bot/internal/app"
	"github.com/capitalize-ai/rail-support-bot/internal/config"
	"github.com/capitalize-ai/rail-support-bot/internal/store"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

var (
	dbPath     string
	badgerDir  string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "railctl",
	Short: "Operator tools for the railway support bot",
	Long:  "Talk to the conversation engine locally, inspect created tickets and drive outbound delivery.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite path (default: $SQLITE_PATH)")
	RootCmd.PersistentFlags().StringVar(&badgerDir, "sessions", "", "Session store directory (default: $BADGER_DIR)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
}

func loadConfig() *config.Config {
	cfg := config.Load()
	if dbPath != "" {
		cfg.SQLitePath = dbPath
	}
	if badgerDir != "" {
		cfg.BadgerDir = badgerDir
	}
	return cfg
}

func newLogger(cfg *config.Config) *logger.Logger {
	log, err := app.NewLogger(cfg)
	if err != nil {
		return logger.NewNop()
	}
	return log
}

func openRecords(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.SQLitePath, cfg.TicketPrefix)
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
