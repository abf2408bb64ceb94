// Package reward persists vote rewards that could not be delivered,
// keyed by lowercase player name, until the player claims them in game.
package reward

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PendingReward is one undelivered vote reward.
type PendingReward struct {
	User      string `json:"username"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Claimed   bool   `json:"claimed"`
}

// Store is a durable per-player FIFO of pending rewards. One mutex
// guards both the in-memory map and the file; every mutation rewrites
// the whole file through a temp+rename.
type Store struct {
	path string

	mu      sync.Mutex
	rewards map[string][]PendingReward
	now     func() time.Time
}

// Open loads the store at path. A missing file starts empty; a corrupt
// file is renamed aside to <path>.bad and the store starts empty.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		rewards: make(map[string][]PendingReward),
		now:     time.Now,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("no pending rewards file, starting fresh", "path", path)
			return s, nil
		}
		return nil, fmt.Errorf("reading pending rewards %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.rewards); err != nil {
		slog.Warn("pending rewards file is corrupt, starting empty", "path", path, "err", err)
		if renameErr := os.Rename(path, path+".bad"); renameErr != nil {
			slog.Warn("could not set corrupt file aside", "err", renameErr)
		}
		s.rewards = make(map[string][]PendingReward)
		return s, nil
	}

	slog.Info("loaded pending rewards", "players", len(s.rewards))
	return s, nil
}

// Add appends an unclaimed reward for user and persists.
func (s *Store) Add(user, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := lower(user)
	s.rewards[key] = append(s.rewards[key], PendingReward{
		User:      user,
		Service:   service,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
	if err := s.saveLocked(); err != nil {
		return err
	}
	slog.Info("added pending reward", "user", user, "service", service)
	return nil
}

// Pending returns the unclaimed rewards for user.
func (s *Store) Pending(user string) []PendingReward {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PendingReward
	for _, r := range s.rewards[lower(user)] {
		if !r.Claimed {
			out = append(out, r)
		}
	}
	return out
}

// PendingCount returns the number of unclaimed rewards for user.
func (s *Store) PendingCount(user string) int {
	return len(s.Pending(user))
}

// ClaimAll marks every reward for user as claimed and returns the ones
// that were previously unclaimed.
func (s *Store) ClaimAll(user string) ([]PendingReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := lower(user)
	rewards := s.rewards[key]

	var unclaimed []PendingReward
	for i := range rewards {
		if !rewards[i].Claimed {
			unclaimed = append(unclaimed, rewards[i])
			rewards[i].Claimed = true
		}
	}

	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	slog.Info("claimed rewards", "user", user, "count", len(unclaimed))
	return unclaimed, nil
}

// ClearClaimed drops claimed rewards for user, removing the player's
// key entirely when nothing is left.
func (s *Store) ClearClaimed(user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := lower(user)
	rewards, ok := s.rewards[key]
	if !ok {
		return nil
	}

	var remaining []PendingReward
	for _, r := range rewards {
		if !r.Claimed {
			remaining = append(remaining, r)
		}
	}
	if len(remaining) == 0 {
		delete(s.rewards, key)
	} else {
		s.rewards[key] = remaining
	}
	return s.saveLocked()
}

// AllPlayersWithPending lists players holding at least one unclaimed
// reward.
func (s *Store) AllPlayersWithPending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var players []string
	for user, rewards := range s.rewards {
		for _, r := range rewards {
			if !r.Claimed {
				players = append(players, user)
				break
			}
		}
	}
	return players
}

// saveLocked rewrites the whole file. Caller holds the mutex.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.rewards, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pending rewards: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

func lower(s string) string {
	return strings.ToLower(s)
}
