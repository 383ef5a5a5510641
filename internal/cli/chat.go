package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/rail-support-bot/internal/app"
	"github.com/capitalize-ai/rail-support-bot/internal/dialog"
	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/internal/service"
	"github.com/capitalize-ai/rail-support-bot/internal/store"
)

// chatType marks conversations started from the command line.
const chatType = "cli"

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the bot in the terminal",
		Run:   runChat,
	}

	cmd.Flags().Bool("memory", false, "Keep everything in memory instead of the configured stores")
	cmd.Flags().String("chat", "local", "Chat id to talk as")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	memory, _ := cmd.Flags().GetBool("memory")
	chatID, _ := cmd.Flags().GetString("chat")

	cfg := loadConfig()
	log := newLogger(cfg)

	analyzer, err := app.NewAnalyzer(cfg)
	if err != nil {
		exitErr("load vocabulary", err)
	}

	var st interface {
		dialog.Store
		service.Records
	}
	if memory {
		st = store.NewMemoryStore(cfg.TicketPrefix)
	} else {
		composite, _, err := app.OpenStores(cfg, log)
		if err != nil {
			exitErr("open stores", err)
		}
		defer composite.Close()
		st = composite
	}

	// Local sessions never deliver anything.
	chatCfg := service.ChatConfig{HashSalt: cfg.ChatHashSalt}
	chat := service.NewChatService(dialog.NewEngine(st, analyzer, log), st, nil, chatCfg, log)

	if err := chatLoop(cmd.Context(), chat, chatID, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		exitErr("chat", err)
	}
}

// chatLoop reads one message per line until EOF or "exit".
func chatLoop(ctx context.Context, chat *service.ChatService, chatID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "conversation %s\n", chat.Key(chatID)[:12])

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			return nil
		}

		result, err := chat.Handle(ctx, service.Inbound{ChatID: chatID, ChatType: chatType, Text: text})
		if err != nil {
			fmt.Fprintf(out, "bot> %s\n", service.FailureReplyText)
			fmt.Fprintf(out, "     (%v)\n", err)
			continue
		}
		printTurn(out, result)
	}
}

func printTurn(out io.Writer, result *model.TurnResult) {
	fmt.Fprintf(out, "bot> %s\n", strings.ReplaceAll(result.Reply.Text, "\n", "\n     "))
	if len(result.Reply.AskedSlots) > 0 {
		slots := make([]string, len(result.Reply.AskedSlots))
		for i, s := range result.Reply.AskedSlots {
			slots[i] = string(s)
		}
		fmt.Fprintf(out, "     [asked: %s]\n", strings.Join(slots, ", "))
	}
	fmt.Fprintf(out, "     [phase: %s, score: %d, tone: %s]\n", result.Phase, result.MeaningScore, result.Tone)
}
