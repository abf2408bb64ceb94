// Package bridge relays between a chat channel and the game: inbound
// chat becomes game commands, polled game state becomes webhook posts,
// embeds, topic updates and a players slash command.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kubemc/mcbridge/internal/avatar"
	"github.com/kubemc/mcbridge/internal/config"
	"github.com/kubemc/mcbridge/internal/discord"
	"github.com/kubemc/mcbridge/internal/metrics"
)

// Embed colors.
const (
	colorGreen  = 0x57F287
	colorRed    = 0xED4245
	colorPurple = 0x9B59B6
	colorOrange = 0xE67E22
)

const (
	webhookName    = "Minecraft Bridge"
	maxListPlayers = 20

	chatAvatarSize  = 128
	embedAvatarSize = 32
	gridPerRow      = 5
	gridPad         = 4
)

// Execer runs one command on the game. Satisfied by *rcon.Client.
type Execer interface {
	Exec(command string) (string, error)
}

// Engine is the bridge core. Create with New, then Run.
type Engine struct {
	cfg  config.Bridge
	chat discord.Adapter
	rc   Execer

	channel discord.Channel
	fsm     *statusFSM

	mu         sync.Mutex
	lastStats  *Stats
	lastTopic  string
	webhook    discord.Webhook
	webhookSet bool

	stopOnce sync.Once
}

// New wires the engine and registers its chat handlers. The adapter's
// Run must be started separately by the caller.
func New(cfg config.Bridge, chat discord.Adapter, rc Execer) *Engine {
	e := &Engine{
		cfg:     cfg,
		chat:    chat,
		rc:      rc,
		channel: chat.Channel(cfg.ChannelID),
		fsm:     newStatusFSM(),
	}
	chat.OnMessage(e.handleMessage)
	chat.RegisterSlash("players", "List players currently online", e.handlePlayers)
	return e
}

// Run starts the pollers and blocks until ctx is cancelled, then emits
// the shutdown embed.
func (e *Engine) Run(ctx context.Context) error {
	e.setupWebhook()
	e.chat.SetPresence(e.cfg.ServerName)

	if err := e.channel.SendEmbed(discord.Embed{
		Title: "Discord bot started",
		Color: colorPurple,
	}); err != nil {
		slog.Warn("failed to send startup embed", "err", err)
	}

	var wg sync.WaitGroup
	wg.Go(func() { e.pollStats(ctx) })
	wg.Go(func() { e.pollTopic(ctx) })
	wg.Wait()

	e.sendStopEmbed()
	return nil
}

// sendStopEmbed emits the shutdown notice exactly once.
func (e *Engine) sendStopEmbed() {
	e.stopOnce.Do(func() {
		if err := e.channel.SendEmbed(discord.Embed{
			Title: "Discord bot stopped",
			Color: colorRed,
		}); err != nil {
			slog.Warn("failed to send shutdown embed", "err", err)
		}
	})
}

// setupWebhook resolves the message-fanout webhook: a configured URL
// wins, else find-or-create a channel webhook, else degrade.
func (e *Engine) setupWebhook() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.WebhookURL != "" {
		e.webhookSet = true
		slog.Info("using configured webhook url")
		return
	}

	hook, err := e.channel.GetOrCreateWebhook(webhookName)
	if err != nil {
		slog.Warn("webhook unavailable, game messages will be dropped", "err", err)
		return
	}
	e.webhook = hook
	e.webhookSet = true
	slog.Info("channel webhook ready", "name", webhookName)
}

// sendWebhook posts one payload through whichever webhook path is
// configured. Payloads are dropped with a warning when neither is.
func (e *Engine) sendWebhook(payload discord.WebhookPayload) {
	e.mu.Lock()
	hook := e.webhook
	useURL := e.webhookSet && hook == nil
	ok := e.webhookSet
	e.mu.Unlock()

	if !ok {
		slog.Warn("no webhook configured, dropping message")
		return
	}

	var err error
	if useURL {
		err = e.chat.PostWebhookURL(e.cfg.WebhookURL, payload, nil)
	} else {
		err = hook.Send(payload)
	}
	if err != nil {
		var rl *discord.RateLimitError
		if errors.As(err, &rl) {
			slog.Warn("webhook rate limited", "retry_after", rl.RetryAfter)
			return
		}
		slog.Error("webhook post failed", "err", err)
	}
}

// pollStats drives the status FSM and the event fanout.
func (e *Engine) pollStats(ctx context.Context) {
	interval := time.Duration(e.cfg.StatsCheckInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.statsTick()
		}
	}
}

func (e *Engine) statsTick() {
	stats := e.fetchStats()

	change := e.fsm.Observe(stats != nil)
	if e.fsm.Online() {
		metrics.BridgeOnline.Set(1)
	} else {
		metrics.BridgeOnline.Set(0)
	}

	switch change {
	case StatusOnline:
		slog.Info("game is back online")
		e.sendWebhook(discord.WebhookPayload{Embeds: []discord.Embed{{
			Title: fmt.Sprintf("%s is online", e.cfg.ServerName),
			Color: colorGreen,
		}}})
	case StatusRestarting:
		slog.Warn("game appears to be restarting")
		e.sendWebhook(discord.WebhookPayload{Embeds: []discord.Embed{{
			Title: fmt.Sprintf("%s is restarting", e.cfg.ServerName),
			Color: colorOrange,
		}}})
	}

	if stats == nil {
		return
	}

	e.mu.Lock()
	e.lastStats = stats
	e.mu.Unlock()

	e.ProcessEvents(stats.Messages)
}

// fetchStats polls the game; nil means unreachable or unparseable.
func (e *Engine) fetchStats() *Stats {
	resp, err := e.rc.Exec("getstats")
	if err != nil {
		slog.Debug("stats poll failed", "err", err)
		return nil
	}
	stats, err := ParseStats(resp)
	if err != nil {
		slog.Warn("stats response is not valid json", "err", err)
		return nil
	}
	return stats
}

// ProcessEvents fans game events out to the channel. Also fed by the
// optional database event source.
func (e *Engine) ProcessEvents(events []Event) {
	for _, ev := range events {
		switch ev.Type {
		case EventChat:
			e.sendWebhook(discord.WebhookPayload{
				Content:   ev.Message,
				Username:  ev.Player,
				AvatarURL: AvatarURL(ev.UUID, chatAvatarSize),
			})
			metrics.MessagesRelayed.WithLabelValues("to_discord").Inc()
		case EventJoin:
			e.sendPresenceEmbed(ev, "logged in", colorGreen)
		case EventLeave:
			e.sendPresenceEmbed(ev, "logged out", colorRed)
		default:
			slog.Debug("ignoring unknown event type", "type", ev.Type)
		}
	}
}

func (e *Engine) sendPresenceEmbed(ev Event, verb string, color int) {
	e.sendWebhook(discord.WebhookPayload{Embeds: []discord.Embed{{
		Color: color,
		Author: &discord.EmbedAuthor{
			Name:    fmt.Sprintf("%s %s", ev.Player, verb),
			IconURL: AvatarURL(ev.UUID, embedAvatarSize),
		},
	}}})
}

// pollTopic keeps the channel topic in sync with the latest snapshot.
func (e *Engine) pollTopic(ctx context.Context) {
	interval := time.Duration(e.cfg.TopicUpdateInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.topicTick()
		}
	}
}

func (e *Engine) topicTick() {
	e.mu.Lock()
	stats := e.lastStats
	last := e.lastTopic
	e.mu.Unlock()

	if stats == nil {
		return
	}
	topic := stats.Topic()
	if topic == last {
		return
	}

	if err := e.channel.EditTopic(topic); err != nil {
		var rl *discord.RateLimitError
		switch {
		case errors.As(err, &rl):
			slog.Warn("rate limited editing topic", "retry_after", rl.RetryAfter)
		case errors.Is(err, discord.ErrForbidden):
			slog.Error("missing permission to edit channel topic")
		default:
			slog.Error("failed to edit channel topic", "err", err)
		}
		return
	}

	e.mu.Lock()
	e.lastTopic = topic
	e.mu.Unlock()
	slog.Info("updated channel topic", "topic", topic)
}

// handleMessage relays one inbound chat message to the game.
func (e *Engine) handleMessage(msg discord.Message) {
	if msg.AuthorBot || msg.ChannelID != e.cfg.ChannelID {
		return
	}

	content := msg.Content
	if content == "" {
		switch {
		case msg.HasAttachments:
			content = "[attachment]"
		case msg.HasStickers:
			content = "[sticker]"
		default:
			return
		}
	}

	content = Sanitize(content, e.cfg.MaxMessageLength)
	if content == "" {
		return
	}
	user := SanitizeUsername(msg.AuthorName)

	command := fmt.Sprintf("discordmsg %q %s", user, content)
	slog.Info("relaying message to game", "user", user)

	if _, err := e.rc.Exec(command); err != nil {
		slog.Warn("failed to relay message", "user", user, "err", err)
		replyErr := e.channel.ReplyEmbed(msg.ID, discord.Embed{
			Title:       "Message was not delivered",
			Description: content,
			Color:       colorRed,
		})
		if replyErr != nil {
			slog.Error("failed to send delivery-failure reply", "err", replyErr)
		}
		return
	}
	metrics.MessagesRelayed.WithLabelValues("to_game").Inc()
}

// handlePlayers answers the players slash command.
func (e *Engine) handlePlayers(in *discord.Interaction) {
	e.mu.Lock()
	stats := e.lastStats
	e.mu.Unlock()

	if stats == nil || !e.fsm.Online() {
		err := in.Respond(discord.InteractionReply{
			Ephemeral: true,
			Embed: discord.Embed{
				Title:       "Players Online",
				Description: "The server is offline or restarting.",
				Color:       colorOrange,
			},
		})
		if err != nil {
			slog.Error("failed to respond to players command", "err", err)
		}
		return
	}

	players := stats.Players
	if len(players) > maxListPlayers {
		players = players[:maxListPlayers]
	}

	var sb strings.Builder
	for _, p := range players {
		fmt.Fprintf(&sb, "• %s\n", p.Name)
	}

	embed := discord.Embed{
		Title:       fmt.Sprintf("Players Online (%d)", stats.PlayerCount),
		Description: sb.String(),
		Color:       colorGreen,
		Footer:      &discord.Footer{Text: fmt.Sprintf("TPS: %.2f | Uptime: %s", stats.TPS, stats.Uptime)},
	}

	reply := discord.InteractionReply{Embed: embed}
	if grid := e.renderAvatarGrid(players); grid != nil {
		reply.File = &discord.File{Name: "players.png", Data: grid}
		reply.Embed.Image = &discord.EmbedImage{URL: "attachment://players.png"}
	}

	if err := in.Respond(reply); err != nil {
		slog.Error("failed to respond to players command", "err", err)
	}
}

// renderAvatarGrid fetches head thumbnails and composites them. Any
// fetch or composite failure drops the grid; the embed goes out alone.
func (e *Engine) renderAvatarGrid(players []Player) []byte {
	if len(players) == 0 {
		return nil
	}

	images := make([][]byte, 0, len(players))
	for _, p := range players {
		data, err := e.chat.HTTPGetBytes(AvatarURL(p.UUID, embedAvatarSize))
		if err != nil {
			slog.Debug("avatar fetch failed", "player", p.Name, "err", err)
			return nil
		}
		images = append(images, data)
	}

	grid, err := avatar.Grid(images, gridPerRow, embedAvatarSize, gridPad)
	if err != nil {
		slog.Debug("avatar grid failed", "err", err)
		return nil
	}
	return grid
}
