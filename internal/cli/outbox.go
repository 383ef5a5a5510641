package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/internal/outbox"
	"github.com/capitalize-ai/rail-support-bot/internal/wazzup"
)

func init() {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Deliver queued messages, or list them",
		Run:   runOutbox,
	}

	cmd.Flags().Bool("once", false, "Drain due items once and exit")
	cmd.Flags().String("list", "", "List items with this status (pending, sending, sent, failed, all) instead of delivering")
	cmd.Flags().IntP("limit", "l", 20, "Max results for --list")

	RootCmd.AddCommand(cmd)
}

func runOutbox(cmd *cobra.Command, args []string) {
	once, _ := cmd.Flags().GetBool("once")
	list, _ := cmd.Flags().GetString("list")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg := loadConfig()
	s, err := openRecords(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if list != "" {
		status := model.OutboxStatus(list)
		if list == "all" {
			status = ""
		}
		items, err := s.ListOutbox(cmd.Context(), status, limit)
		if err != nil {
			exitErr("list outbox", err)
		}
		if formatFlag == "json" {
			printJSON(cmd.OutOrStdout(), items)
			return
		}
		for _, it := range items {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s %-7s attempts=%d  %s\n", it.ID, it.Kind, it.Status, it.Attempts, it.LastError)
		}
		return
	}

	if cfg.WazzupAPIKey == "" {
		exitErr("outbox", errors.New("WAZZUP_API_KEY is not set"))
	}
	log := newLogger(cfg)
	worker := outbox.NewWorker(s, wazzup.NewClient(cfg.WazzupAPIKey, cfg.WazzupAPIURL), cfg.OutboxMaxAttempts, cfg.OutboxPollInterval, log)

	if once {
		n, err := worker.Drain(cmd.Context())
		if err != nil {
			exitErr("drain outbox", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d item(s)\n", n)
		return
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	worker.Run(ctx)
}
