package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kubemc/mcbridge/internal/config"
	"github.com/kubemc/mcbridge/internal/metrics"
	"github.com/kubemc/mcbridge/internal/rcon"
	"github.com/kubemc/mcbridge/internal/reward"
	"github.com/kubemc/mcbridge/internal/votifier"
)

const pendingRewardsPath = "data/pending_rewards.json"

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
	cfg, err := config.LoadVotifier(os.Getenv("MCBRIDGE_CONFIG"))
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

	slog.Info("votifier service starting", "listen", cfg.Addr(), "rcon", cfg.Rcon.Addr())

	key, err := votifier.LoadKeys(cfg.KeysPath)
	if err != nil {
		return fmt.Errorf("loading keys: %w", err)
	}
	pubPEM, err := votifier.PublicKeyPEM(key)
	if err != nil {
		return fmt.Errorf("rendering public key: %w", err)
	}
	slog.Info("public key for voting sites:\n" + pubPEM)

	store, err := reward.Open(filepath.FromSlash(pendingRewardsPath))
	if err != nil {
		return fmt.Errorf("opening pending reward store: %w", err)
	}

	rc := rcon.New(cfg.Rcon.Addr(), cfg.Rcon.Password)
	rc.OnReconnect(metrics.RconReconnects.Inc)
	defer rc.Close()

	server := votifier.NewServer(cfg.Addr(), votifier.NewCodec(key), votifier.NewDedup(), store, rc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Run(gctx); err != nil {
			return fmt.Errorf("votifier server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := metrics.Serve(gctx, cfg.MetricsAddr); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("votifier service stopped")
	return nil
}
