package discord

import (
	"context"
	"log/slog"
	"sync"
)

// Session implements Adapter on top of the Discord REST API and
// gateway.
type Session struct {
	rest    *rest
	gw      *gateway
	guildID int64

	mu    sync.Mutex
	appID string

	msgHandler func(Message)
	slash      map[string]slashCommand
}

type slashCommand struct {
	description string
	handler     func(*Interaction)
}

// New creates a session for the given bot token. guildID, when nonzero,
// scopes slash commands to that guild for instant registration.
func New(token string, guildID int64) *Session {
	s := &Session{
		rest:    newREST(token),
		guildID: guildID,
		slash:   make(map[string]slashCommand),
	}
	s.gw = &gateway{
		token:         token,
		onReady:       s.handleReady,
		onMessage:     s.handleMessage,
		onInteraction: s.handleInteraction,
	}
	return s
}

// Run connects the gateway and blocks until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	return s.gw.run(ctx)
}

// OnMessage implements Adapter.
func (s *Session) OnMessage(handler func(Message)) {
	s.msgHandler = handler
}

// RegisterSlash implements Adapter.
func (s *Session) RegisterSlash(name, description string, handler func(*Interaction)) {
	s.slash[name] = slashCommand{description: description, handler: handler}
}

// SetPresence implements Adapter.
func (s *Session) SetPresence(activity string) {
	s.gw.setPresence(activity)
}

// PostWebhookURL implements Adapter.
func (s *Session) PostWebhookURL(url string, payload WebhookPayload, file *File) error {
	if file != nil {
		return s.rest.postMultipart(url, payload, file, false)
	}
	return s.rest.postJSON(url, payload)
}

// HTTPGetBytes implements Adapter.
func (s *Session) HTTPGetBytes(url string) ([]byte, error) {
	return s.rest.getBytes(url)
}

// Channel implements Adapter.
func (s *Session) Channel(id int64) Channel {
	return &channel{session: s, id: id}
}

func (s *Session) handleReady(ready readyData) {
	s.mu.Lock()
	s.appID = ready.Application.ID
	s.mu.Unlock()

	if len(s.slash) == 0 {
		return
	}
	defs := make([]commandDef, 0, len(s.slash))
	for name, cmd := range s.slash {
		defs = append(defs, commandDef{Name: name, Description: cmd.description, Type: 1})
	}
	if err := s.rest.syncCommands(ready.Application.ID, s.guildID, defs); err != nil {
		slog.Error("failed to sync slash commands", "err", err)
		return
	}
	slog.Info("slash commands synced", "count", len(defs), "guild", s.guildID)
}

func (s *Session) handleMessage(raw messageCreateData) {
	if s.msgHandler == nil {
		return
	}

	name := raw.Member.Nick
	if name == "" {
		name = raw.Author.GlobalName
	}
	if name == "" {
		name = raw.Author.Username
	}

	s.msgHandler(Message{
		ID:             raw.ID,
		ChannelID:      parseSnowflake(raw.ChannelID),
		AuthorName:     name,
		AuthorBot:      raw.Author.Bot,
		Content:        raw.Content,
		HasAttachments: len(raw.Attachments) > 0,
		HasStickers:    len(raw.Stickers) > 0,
	})
}

func (s *Session) handleInteraction(raw interactionData) {
	cmd, ok := s.slash[raw.Data.Name]
	if !ok {
		slog.Debug("unknown slash command", "name", raw.Data.Name)
		return
	}
	cmd.handler(NewInteraction(raw.Data.Name, func(reply InteractionReply) error {
		return s.rest.respondInteraction(raw.ID, raw.Token, reply)
	}))
}

// channel binds channel operations to one id.
type channel struct {
	session *Session
	id      int64
}

func (c *channel) EditTopic(topic string) error {
	return c.session.rest.editTopic(c.id, topic)
}

func (c *channel) SendEmbed(embed Embed) error {
	return c.session.rest.sendEmbed(c.id, embed, "")
}

func (c *channel) ReplyEmbed(messageID string, embed Embed) error {
	return c.session.rest.sendEmbed(c.id, embed, messageID)
}

// GetOrCreateWebhook finds a webhook with the given name on the channel
// or creates one.
func (c *channel) GetOrCreateWebhook(name string) (Webhook, error) {
	hooks, err := c.session.rest.channelWebhooks(c.id)
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		if h.Name == name && h.Token != "" {
			return &webhook{session: c.session, url: h.url()}, nil
		}
	}

	hook, err := c.session.rest.createWebhook(c.id, name)
	if err != nil {
		return nil, err
	}
	return &webhook{session: c.session, url: hook.url()}, nil
}

// webhook posts through a concrete webhook URL.
type webhook struct {
	session *Session
	url     string
}

func (w *webhook) Send(payload WebhookPayload) error {
	return w.session.rest.postJSON(w.url, payload)
}
