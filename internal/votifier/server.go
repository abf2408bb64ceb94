package votifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/kubemc/mcbridge/internal/metrics"
	"github.com/kubemc/mcbridge/internal/reward"
)

const (
	connTimeout        = 5 * time.Second
	claimPollInterval  = 1 * time.Second
	playerPollInterval = 5 * time.Second
)

// Execer runs one command on the game and returns its response.
// Satisfied by *rcon.Client.
type Execer interface {
	Exec(command string) (string, error)
}

// Server terminates voting-site connections and reconciles pending
// rewards with the game.
type Server struct {
	addr  string
	codec *Codec
	dedup *Dedup
	store *reward.Store
	rc    Execer

	// notified tracks lowercase names already told about their pending
	// rewards this session. Shared by the claim and join pollers.
	notifiedMu sync.Mutex
	notified   map[string]bool

	// online is owned solely by the join poller.
	online map[string]bool

	listenerMu sync.Mutex
	listener   net.Listener
}

// NewServer wires the gateway together. Call Run to start serving.
func NewServer(addr string, codec *Codec, dedup *Dedup, store *reward.Store, rc Execer) *Server {
	return &Server{
		addr:     addr,
		codec:    codec,
		dedup:    dedup,
		store:    store,
		rc:       rc,
		notified: make(map[string]bool),
		online:   make(map[string]bool),
	}
}

// Addr returns the bound listen address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop and both pollers on a ready listener.
// Used directly by tests with a loopback listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("votifier server listening", "address", ln.Addr())

	// Startup probe so operators see connectivity state immediately.
	if _, err := s.rc.Exec("list"); err != nil {
		slog.Warn("rcon connection failed, will retry when needed", "err", err)
	} else {
		slog.Info("rcon connection verified")
	}

	var wg sync.WaitGroup
	wg.Go(func() { s.pollClaimQueue(ctx) })
	wg.Go(func() { s.pollOnlinePlayers(ctx) })
	wg.Go(func() { s.acceptLoop(ctx, &wg) })
	wg.Wait()

	return nil
}

func (s *Server) acceptLoop(ctx context.Context, wg *sync.WaitGroup) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			slog.Error("failed to accept connection", "err", err)
			continue
		}
		wg.Go(func() { s.handleConn(conn) })
	}
}

// handleConn runs the full protocol for one voting-site connection:
// greeting, one 256-byte block, no response.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr()
	slog.Info("connection accepted", "remote", remote)

	if err := conn.SetDeadline(time.Now().Add(connTimeout)); err != nil {
		return
	}

	if _, err := io.WriteString(conn, Greeting); err != nil {
		slog.Warn("failed to send greeting", "remote", remote, "err", err)
		return
	}

	block := make([]byte, BlockSize)
	if _, err := io.ReadFull(conn, block); err != nil {
		slog.Warn("failed to receive vote block", "remote", remote, "err", err)
		return
	}

	vote, err := s.codec.Process(block)
	if err != nil {
		slog.Error("failed to decode vote", "remote", remote, "err", err)
		return
	}
	slog.Info("received vote", "vote", vote)
	metrics.VotesReceived.Inc()

	if s.dedup.IsDuplicate(vote.User, vote.Service) {
		slog.Info("duplicate vote rejected", "user", vote.User, "service", vote.Service)
		metrics.VotesDuplicate.Inc()
		return
	}
	s.dedup.MarkProcessed(vote.User, vote.Service)

	s.deliverVote(vote)
}

// deliverVote pushes the vote to the game, falling back to the pending
// store when the recipient cannot be credited.
func (s *Server) deliverVote(vote Vote) {
	service := strings.ReplaceAll(vote.Service, " ", "_")
	command := fmt.Sprintf("kubevote process %s %s", vote.User, service)

	resp, err := s.rc.Exec(command)
	if err != nil {
		slog.Error("failed to deliver vote", "user", vote.User, "err", err)
		s.addPending(vote)
		return
	}
	slog.Info("vote delivered", "user", vote.User, "response", resp)

	lowered := strings.ToLower(resp)
	if strings.Contains(lowered, "not found") || strings.Contains(lowered, "no player") {
		slog.Info("player offline, saving pending reward", "user", vote.User)
		s.addPending(vote)
	}
}

func (s *Server) addPending(vote Vote) {
	if err := s.store.Add(vote.User, vote.Service); err != nil {
		slog.Error("failed to persist pending reward", "user", vote.User, "err", err)
		return
	}
	metrics.VotesPending.Inc()
}

// pollClaimQueue asks the game for queued claim requests every second.
func (s *Server) pollClaimQueue(ctx context.Context) {
	ticker := time.NewTicker(claimPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := s.rc.Exec("kubevote claimqueue")
			if err != nil {
				slog.Debug("claim queue poll failed", "err", err)
				continue
			}
			s.drainClaimQueue(resp)
		}
	}
}

// drainClaimQueue runs the claim routine for every name the game
// reported after the CLAIMQUEUE: marker.
func (s *Server) drainClaimQueue(resp string) {
	_, after, found := strings.Cut(resp, "CLAIMQUEUE:")
	if !found {
		return
	}
	for name := range strings.SplitSeq(after, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		slog.Info("processing claim request", "user", name)
		s.claimPendingRewards(name)
	}
}

// claimPendingRewards runs the claim routine for one player. The claim
// command is always sent, even with count 0, so the game can give the
// player feedback.
func (s *Server) claimPendingRewards(user string) bool {
	count := s.store.PendingCount(user)

	resp, err := s.rc.Exec(fmt.Sprintf("kubevote claim %s %d", user, count))
	if err != nil {
		slog.Error("failed to claim pending rewards", "user", user, "err", err)
		return false
	}
	slog.Info("claim response", "user", user, "count", count, "response", resp)
	metrics.Claims.Inc()

	if count == 0 {
		return false
	}

	if _, err := s.store.ClaimAll(user); err != nil {
		slog.Error("failed to mark rewards claimed", "user", user, "err", err)
		return false
	}
	if err := s.store.ClearClaimed(user); err != nil {
		slog.Error("failed to clear claimed rewards", "user", user, "err", err)
	}

	s.notifiedMu.Lock()
	delete(s.notified, strings.ToLower(user))
	s.notifiedMu.Unlock()
	return true
}

// pollOnlinePlayers watches `list` output and greets newly joined
// players who have rewards waiting.
func (s *Server) pollOnlinePlayers(ctx context.Context) {
	ticker := time.NewTicker(playerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := s.rc.Exec("list")
			if err != nil {
				slog.Debug("player poll failed", "err", err)
				continue
			}
			s.trackPlayers(parsePlayerList(resp))
		}
	}
}

// trackPlayers diffs the freshly parsed player set against the last one
// and notifies joins with pending rewards. An empty parse while players
// were previously online is treated as a transient parse failure and
// ignored.
func (s *Server) trackPlayers(current map[string]bool) {
	if len(current) == 0 && len(s.online) > 0 {
		return
	}

	s.notifiedMu.Lock()
	for name := range s.online {
		if !current[name] {
			delete(s.notified, strings.ToLower(name))
		}
	}
	s.notifiedMu.Unlock()

	for name := range current {
		if s.online[name] {
			continue
		}
		s.notifiedMu.Lock()
		seen := s.notified[strings.ToLower(name)]
		s.notifiedMu.Unlock()
		if seen {
			continue
		}
		count := s.store.PendingCount(name)
		if count == 0 {
			continue
		}
		slog.Info("player joined with pending rewards", "user", name, "count", count)
		s.notifyPendingRewards(name, count)
		s.notifiedMu.Lock()
		s.notified[strings.ToLower(name)] = true
		s.notifiedMu.Unlock()
	}

	s.online = current
}

// parsePlayerList extracts player names from `list` output:
//
//	There are X of a max of Y players online: Player1, [MOD]Player2
//
// Rank tags in square brackets are stripped.
func parsePlayerList(resp string) map[string]bool {
	players := make(map[string]bool)
	idx := strings.LastIndex(resp, ":")
	if idx < 0 {
		return players
	}

	for name := range strings.SplitSeq(resp[idx+1:], ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if j := strings.LastIndex(name, "]"); j >= 0 {
			name = strings.TrimSpace(name[j+1:])
		}
		if name != "" {
			players[name] = true
		}
	}
	return players
}

// notifyPendingRewards sends the in-game banner with the clickable
// claim command.
func (s *Server) notifyPendingRewards(user string, count int) {
	plural := ""
	if count != 1 {
		plural = "s"
	}
	msg := `["",{"text":"★ ","color":"gold"},` +
		`{"text":"Vote Rewards Available","color":"yellow"},` +
		`{"text":" ★\n","color":"gold"},` +
		`{"text":"  You have ","color":"gray"},` +
		fmt.Sprintf(`{"text":"%d","color":"green"},`, count) +
		fmt.Sprintf(`{"text":" pending vote reward%s!\n","color":"gray"},`, plural) +
		`{"text":"  Use ","color":"gray"},` +
		`{"text":"/vote claim","color":"aqua","clickEvent":{"action":"run_command","value":"/vote claim"}},` +
		`{"text":" to collect them.","color":"gray"}]`

	if _, err := s.rc.Exec(fmt.Sprintf("tellraw %s %s", user, msg)); err != nil {
		slog.Error("failed to notify player of pending rewards", "user", user, "err", err)
	}
}
