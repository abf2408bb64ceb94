package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kubemc/mcbridge/internal/bridge"
	"github.com/kubemc/mcbridge/internal/config"
	"github.com/kubemc/mcbridge/internal/discord"
	"github.com/kubemc/mcbridge/internal/events"
	"github.com/kubemc/mcbridge/internal/metrics"
	"github.com/kubemc/mcbridge/internal/rcon"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadBridge(os.Getenv("MCBRIDGE_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("bridge starting", "rcon", cfg.Rcon.Addr(), "channel", cfg.ChannelID)

	rc := rcon.New(cfg.Rcon.Addr(), cfg.Rcon.Password)
	rc.OnReconnect(metrics.RconReconnects.Inc)
	defer rc.Close()

	session := discord.New(cfg.Token, cfg.GuildID)
	engine := bridge.New(cfg, session, rc)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := session.Run(gctx); err != nil {
			return fmt.Errorf("discord session: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := engine.Run(gctx); err != nil {
			return fmt.Errorf("bridge engine: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := metrics.Serve(gctx, cfg.MetricsAddr); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	if cfg.DatabaseURL != "" {
		if err := events.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		source, err := events.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("opening event source: %w", err)
		}
		defer source.Close()
		slog.Info("database event source enabled")

		interval := time.Duration(cfg.StatsCheckInterval) * time.Second
		g.Go(func() error {
			if err := source.Run(gctx, engine, interval); err != nil {
				return fmt.Errorf("event source: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("bridge stopped")
	return nil
}
