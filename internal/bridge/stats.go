package bridge

import (
	"encoding/json"
	"fmt"
)

// Event types surfaced in a stats snapshot.
const (
	EventChat  = "chat"
	EventJoin  = "join"
	EventLeave = "leave"
)

// Player is one online player in a stats snapshot.
type Player struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

// Event is one game event queued for the channel: a chat line, a join
// or a leave.
type Event struct {
	Type    string `json:"type"`
	Player  string `json:"player"`
	UUID    string `json:"uuid"`
	Message string `json:"message,omitempty"`
}

// Stats is the snapshot returned by the game's getstats command.
type Stats struct {
	TPS         float64  `json:"tps"`
	PlayerCount int      `json:"playerCount"`
	Uptime      string   `json:"uptime"`
	Players     []Player `json:"players"`
	Messages    []Event  `json:"messages"`
}

// ParseStats decodes a getstats response. A decode failure is treated
// by callers the same as an unreachable game.
func ParseStats(raw string) (*Stats, error) {
	var stats Stats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, fmt.Errorf("parsing stats: %w", err)
	}
	return &stats, nil
}

// Topic renders the channel-topic line for a snapshot.
func (s *Stats) Topic() string {
	return fmt.Sprintf("TPS: %.2f | Players: %d | Uptime: %s", s.TPS, s.PlayerCount, s.Uptime)
}

// AvatarURL builds the head-thumbnail URL for a player UUID.
func AvatarURL(uuid string, size int) string {
	return fmt.Sprintf("https://mc-heads.net/avatar/%s/%d", uuid, size)
}
