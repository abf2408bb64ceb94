// Package discord is the chat-platform adapter: a small interface the
// bridge engine drives, plus a concrete implementation speaking the
// Discord v10 REST API and gateway.
package discord

// Message is an inbound channel message, reduced to what the bridge
// needs.
type Message struct {
	ID             string
	ChannelID      int64
	AuthorName     string
	AuthorBot      bool
	Content        string
	HasAttachments bool
	HasStickers    bool
}

// Embed is a rich message card.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Footer      *Footer      `json:"footer,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
}

// EmbedAuthor is the name and icon line above an embed.
type EmbedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// Footer is the small text line under an embed.
type Footer struct {
	Text string `json:"text"`
}

// EmbedImage references an image by URL, including attachment:// URLs.
type EmbedImage struct {
	URL string `json:"url"`
}

// File is an attachment uploaded alongside a message.
type File struct {
	Name string
	Data []byte
}

// WebhookPayload is one webhook execution: plain content or embeds,
// posted under a synthetic name and avatar.
type WebhookPayload struct {
	Content   string  `json:"content,omitempty"`
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []Embed `json:"embeds,omitempty"`
}

// InteractionReply is the response to a slash command.
type InteractionReply struct {
	Embed     Embed
	Ephemeral bool
	File      *File
}

// Interaction is one received slash-command invocation.
type Interaction struct {
	Name    string
	respond func(InteractionReply) error
}

// NewInteraction builds an interaction whose Respond calls respond.
// Used by the gateway dispatcher and by handler tests.
func NewInteraction(name string, respond func(InteractionReply) error) *Interaction {
	return &Interaction{Name: name, respond: respond}
}

// Respond sends the command response. Must be called exactly once.
func (i *Interaction) Respond(reply InteractionReply) error {
	return i.respond(reply)
}

// Channel is the slice of channel operations the bridge uses.
type Channel interface {
	// EditTopic sets the channel topic.
	EditTopic(topic string) error
	// GetOrCreateWebhook finds a channel webhook by name or creates it.
	GetOrCreateWebhook(name string) (Webhook, error)
	// SendEmbed posts an embed as the bot itself.
	SendEmbed(embed Embed) error
	// ReplyEmbed posts an embed as a reply to messageID, without
	// mentioning the author.
	ReplyEmbed(messageID string, embed Embed) error
}

// Webhook posts messages as a synthetic user.
type Webhook interface {
	Send(payload WebhookPayload) error
}

// Adapter is everything the bridge engine needs from the chat platform.
type Adapter interface {
	// OnMessage registers the inbound message handler. Must be called
	// before Run.
	OnMessage(handler func(Message))
	// RegisterSlash registers a slash command and its handler. Must be
	// called before Run; commands are synced once the gateway is ready.
	RegisterSlash(name, description string, handler func(*Interaction))
	// Channel returns operations bound to a channel id.
	Channel(id int64) Channel
	// SetPresence sets the bot activity, e.g. watching a server name.
	SetPresence(activity string)
	// PostWebhookURL executes a webhook by its full URL.
	PostWebhookURL(url string, payload WebhookPayload, file *File) error
	// HTTPGetBytes fetches an arbitrary URL (avatar thumbnails).
	HTTPGetBytes(url string) ([]byte, error)
}
