package bridge

import (
	"regexp"
	"strings"
)

var (
	mentionRe    = regexp.MustCompile(`<@!?\d+>`)
	channelRe    = regexp.MustCompile(`<#\d+>`)
	roleRe       = regexp.MustCompile(`<@&\d+>`)
	emojiRe      = regexp.MustCompile(`<a?:(\w+):\d+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	usernameRe   = regexp.MustCompile(`[^\w\s\-]`)
)

// Sanitize rewrites a channel message so it is safe to splice into a
// game command: platform markup becomes plain placeholders, quoting and
// escape characters are stripped, whitespace is collapsed and the
// result is truncated to maxLen.
func Sanitize(content string, maxLen int) string {
	content = mentionRe.ReplaceAllString(content, "[mention]")
	content = channelRe.ReplaceAllString(content, "[channel]")
	content = roleRe.ReplaceAllString(content, "[role]")
	content = emojiRe.ReplaceAllString(content, ":$1:")

	content = strings.ReplaceAll(content, `"`, "'")
	content = strings.ReplaceAll(content, `\`, "")
	content = strings.ReplaceAll(content, "\n", " ")
	content = strings.ReplaceAll(content, "\r", " ")

	content = whitespaceRe.ReplaceAllString(content, " ")
	content = strings.TrimSpace(content)

	if runes := []rune(content); maxLen > 3 && len(runes) > maxLen {
		content = string(runes[:maxLen-3]) + "..."
	}
	return content
}

// SanitizeUsername reduces a display name to characters the game
// accepts, capped at 16. An empty result becomes "Discord".
func SanitizeUsername(name string) string {
	name = usernameRe.ReplaceAllString(name, "")
	if len(name) > 16 {
		name = name[:16]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Discord"
	}
	return name
}
