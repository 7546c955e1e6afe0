package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/chainspeak/gateway"
	"github.com/tailored-agentic-units/chainspeak/hub"
	"github.com/tailored-agentic-units/chainspeak/kernel"
	"github.com/tailored-agentic-units/chainspeak/notify"
	"github.com/tailored-agentic-units/chainspeak/observability"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the websocket and webhook gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Gateway.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, newLogger(g.verbose, os.Stderr))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// runServe wires gateway, hub, and kernel together and blocks until ctx is
// done. Queued turns are drained before it returns.
func runServe(ctx context.Context, cfg *kernel.Config, logger *slog.Logger) error {
	obs, err := observability.GetObserver(cfg.Observer, logger)
	if err != nil {
		return err
	}

	gw := gateway.New(cfg.Gateway,
		gateway.WithDomain(cfg.Notify.Domain),
		gateway.WithLogger(logger),
	)

	k, err := kernel.New(ctx, cfg,
		kernel.WithNotifier(cfg.Notify.Wrap(gw)),
		kernel.WithObserver(obs),
		kernel.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer k.Close()

	logger.Info("kernel ready",
		slog.Any("tools", k.Tools().Names()),
		slog.String("store", cfg.Store.Driver),
	)

	inbound := hub.New(context.WithoutCancel(ctx), cfg.Hub,
		func(ctx context.Context, _ string, in kernel.Inbound) error {
			_, err := k.HandleMessage(ctx, in)
			return err
		},
		hub.WithLogger(logger),
		hub.WithObserver(obs),
	)

	dispatch := func(ctx context.Context, from, body string) error {
		userID := notify.UserID(from, cfg.Notify.Domain)
		return inbound.Submit(ctx, userID, kernel.Inbound{From: from, Body: body})
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return gw.Run(gctx, dispatch)
	})
	group.Go(func() error {
		<-gctx.Done()
		err := inbound.Shutdown(time.Duration(cfg.Hub.ShutdownTimeout))
		m := inbound.Metrics()
		logger.Info("hub stopped",
			slog.Int64("processed", m.Processed),
			slog.Int64("failed", m.Failed),
		)
		return err
	})

	return group.Wait()
}
