package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/chainspeak/kernel"
	"github.com/tailored-agentic-units/chainspeak/notify"
)

func chatCmd(g *globalFlags) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runChat(ctx, cfg, userID, cmd.InOrStdin(), cmd.OutOrStdout(), newLogger(g.verbose, os.Stderr))
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "console", "user id for the conversation")
	return cmd
}

// runChat reads one message per line from in until EOF or /quit. Bot
// messages are written to out.
func runChat(ctx context.Context, cfg *kernel.Config, userID string, in io.Reader, out io.Writer, logger *slog.Logger, opts ...kernel.Option) error {
	opts = append([]kernel.Option{
		kernel.WithNotifier(notify.NewWriter(out)),
		kernel.WithLogger(logger),
	}, opts...)

	k, err := kernel.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer k.Close()

	from := notify.Recipient(userID, cfg.Notify.Domain)
	fmt.Fprintf(out, "Chatting as %s. Type /quit to exit.\n", userID)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}

		result, err := k.HandleMessage(ctx, kernel.Inbound{From: from, Body: line})
		if err != nil {
			logger.Error("turn failed", slog.String("error", err.Error()))
			continue
		}
		if tc := result.ToolCall; tc != nil {
			fmt.Fprintf(out, "  (tool %s -> %s)\n", tc.Name, tc.Result.JSON())
		}

		if ctx.Err() != nil {
			break
		}
	}

	return scanner.Err()
}
