package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const gatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opPresenceUpdate = 3
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Intents: guilds, guild messages, message content.
const identifyIntents = 1<<0 | 1<<9 | 1<<15

type gatewayPayload struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  *int64          `json:"s"`
	Type string          `json:"t"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type readyData struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Application struct {
		ID string `json:"id"`
	} `json:"application"`
}

type messageCreateData struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Bot        bool   `json:"bot"`
	} `json:"author"`
	Member struct {
		Nick string `json:"nick"`
	} `json:"member"`
	Attachments []json.RawMessage `json:"attachments"`
	Stickers    []json.RawMessage `json:"sticker_items"`
}

type interactionData struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	Data  struct {
		Name string `json:"name"`
	} `json:"data"`
}

// gateway maintains one websocket session: identify, heartbeat,
// dispatch. Reconnects with backoff until ctx is cancelled.
type gateway struct {
	token string

	mu       sync.Mutex
	conn     *websocket.Conn
	seq      int64
	presence string

	onReady       func(readyData)
	onMessage     func(messageCreateData)
	onInteraction func(interactionData)
}

// run blocks until ctx is cancelled, re-dialing on any session drop.
func (g *gateway) run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := g.session(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("gateway session ended, reconnecting", "err", err, "backoff", backoff)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (g *gateway) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dialing gateway: %w", err)
	}
	defer conn.Close()

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	// First frame must be HELLO.
	payload, err := g.read(conn)
	if err != nil {
		return err
	}
	if payload.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", payload.Op)
	}
	var hello helloData
	if err := json.Unmarshal(payload.Data, &hello); err != nil {
		return fmt.Errorf("decoding hello: %w", err)
	}

	if err := g.send(opIdentify, map[string]any{
		"token":   g.token,
		"intents": identifyIntents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "mcbridge",
			"device":  "mcbridge",
		},
	}); err != nil {
		return err
	}

	heartbeat := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	go g.heartbeatLoop(sessionCtx, heartbeat)

	for {
		payload, err := g.read(conn)
		if err != nil {
			return err
		}
		if payload.Seq != nil {
			g.mu.Lock()
			g.seq = *payload.Seq
			g.mu.Unlock()
		}

		switch payload.Op {
		case opDispatch:
			g.dispatch(payload)
		case opHeartbeat:
			if err := g.sendHeartbeat(); err != nil {
				return err
			}
		case opReconnect, opInvalidSession:
			return fmt.Errorf("server requested reconnect (op %d)", payload.Op)
		case opHeartbeatACK:
			// Nothing to do.
		}
	}
}

func (g *gateway) dispatch(payload gatewayPayload) {
	switch payload.Type {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(payload.Data, &ready); err != nil {
			slog.Warn("decoding ready event", "err", err)
			return
		}
		slog.Info("gateway ready", "user", ready.User.Username)
		if g.onReady != nil {
			g.onReady(ready)
		}
		g.pushPresence()
	case "MESSAGE_CREATE":
		var msg messageCreateData
		if err := json.Unmarshal(payload.Data, &msg); err != nil {
			slog.Warn("decoding message event", "err", err)
			return
		}
		if g.onMessage != nil {
			g.onMessage(msg)
		}
	case "INTERACTION_CREATE":
		var in interactionData
		if err := json.Unmarshal(payload.Data, &in); err != nil {
			slog.Warn("decoding interaction event", "err", err)
			return
		}
		if g.onInteraction != nil {
			g.onInteraction(in)
		}
	}
}

func (g *gateway) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.sendHeartbeat(); err != nil {
				return
			}
		}
	}
}

func (g *gateway) sendHeartbeat() error {
	g.mu.Lock()
	seq := g.seq
	g.mu.Unlock()
	return g.send(opHeartbeat, seq)
}

// setPresence records the activity and pushes it if a session is up.
func (g *gateway) setPresence(activity string) {
	g.mu.Lock()
	g.presence = activity
	g.mu.Unlock()
	g.pushPresence()
}

func (g *gateway) pushPresence() {
	g.mu.Lock()
	activity := g.presence
	g.mu.Unlock()
	if activity == "" {
		return
	}
	// Activity type 3 is "Watching".
	err := g.send(opPresenceUpdate, map[string]any{
		"since":      nil,
		"activities": []map[string]any{{"name": activity, "type": 3}},
		"status":     "online",
		"afk":        false,
	})
	if err != nil {
		slog.Debug("presence update failed", "err", err)
	}
}

func (g *gateway) read(conn *websocket.Conn) (gatewayPayload, error) {
	var payload gatewayPayload
	if err := conn.ReadJSON(&payload); err != nil {
		return payload, fmt.Errorf("reading gateway frame: %w", err)
	}
	return payload, nil
}

func (g *gateway) send(op int, data any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return fmt.Errorf("gateway not connected")
	}
	if err := g.conn.WriteJSON(map[string]any{"op": op, "d": data}); err != nil {
		return fmt.Errorf("writing gateway frame: %w", err)
	}
	return nil
}

func parseSnowflake(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
