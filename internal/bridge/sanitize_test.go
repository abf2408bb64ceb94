package bridge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		limit int
	}{
		{name: "plain", in: "hello world", want: "hello world", limit: 256},
		{name: "user mention", in: "hi <@123456789>", want: "hi [mention]", limit: 256},
		{name: "nick mention", in: "hi <@!123456789>", want: "hi [mention]", limit: 256},
		{name: "channel", in: "see <#987654321>", want: "see [channel]", limit: 256},
		{name: "role", in: "ping <@&555>", want: "ping [role]", limit: 256},
		{name: "custom emoji", in: "nice <:pog:112233>", want: "nice :pog:", limit: 256},
		{name: "animated emoji", in: "nice <a:party:112233>", want: "nice :party:", limit: 256},
		{name: "quotes become apostrophes", in: `say "hi"`, want: "say 'hi'", limit: 256},
		{name: "backslashes stripped", in: `a\b\\c`, want: "abc", limit: 256},
		{name: "newlines collapse", in: "line1\nline2\r\nline3", want: "line1 line2 line3", limit: 256},
		{name: "whitespace collapses", in: "  a \t b  ", want: "a b", limit: 256},
		{name: "truncated", in: strings.Repeat("x", 40), want: strings.Repeat("x", 7) + "...", limit: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in, tt.limit))
		})
	}
}

func TestSanitizeTruncationIsRuneSafe(t *testing.T) {
	in := strings.Repeat("é", 40)
	out := Sanitize(in, 10)
	assert.Equal(t, strings.Repeat("é", 7)+"...", out)
}

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Steve", want: "Steve"},
		{name: "symbols stripped", in: "St:eve!?", want: "Steve"},
		{name: "hyphen and underscore kept", in: "St-eve_99", want: "St-eve_99"},
		{name: "capped at 16", in: "abcdefghijklmnopqrstuv", want: "abcdefghijklmnop"},
		{name: "empty becomes Discord", in: "!!!", want: "Discord"},
		{name: "blank becomes Discord", in: "   ", want: "Discord"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeUsername(tt.in))
		})
	}
}
