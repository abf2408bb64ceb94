// Package metrics holds the process-wide prometheus collectors and the
// optional /metrics listener.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VotesReceived counts votes that decrypted and parsed cleanly.
	VotesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcbridge_votes_received_total",
		Help: "Votes received and successfully decoded.",
	})

	// VotesDuplicate counts votes dropped by the dedup window.
	VotesDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcbridge_votes_duplicate_total",
		Help: "Votes dropped as duplicates within the dedup window.",
	})

	// VotesPending counts votes diverted to the pending-reward store.
	VotesPending = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcbridge_votes_pending_total",
		Help: "Votes stored as pending rewards for offline players.",
	})

	// Claims counts claim routines executed.
	Claims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcbridge_claims_total",
		Help: "Pending-reward claim routines executed.",
	})

	// RconReconnects counts established RCON sessions.
	RconReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcbridge_rcon_reconnects_total",
		Help: "RCON sessions established, including the first.",
	})

	// BridgeOnline is 1 while the status FSM considers the game online.
	BridgeOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcbridge_bridge_online",
		Help: "1 when the game is considered online, 0 otherwise.",
	})

	// MessagesRelayed counts chat messages relayed, by direction.
	MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcbridge_messages_relayed_total",
		Help: "Chat messages relayed between the game and the channel.",
	}, []string{"direction"})
)

// Serve exposes /metrics on addr until ctx is cancelled. A zero addr
// disables the listener.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
