package mention

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/filippgl/tagall-bot/internal/storage"
)

// Renderer formats user records into clickable mention tokens and composes
// batch text. Mentions use Telegram's tg://user deep link with the display
// name as HTML-escaped anchor text.
type Renderer struct {
	separator string
}

func NewRenderer(separator string) Renderer {
	if separator == "" {
		separator = " | "
	}
	return Renderer{separator: separator}
}

// DisplayName picks the human-readable name for a member:
// first+last name, else @username, else an id fallback.
func DisplayName(m storage.Member) string {
	name := strings.TrimSpace(strings.TrimSpace(m.FirstName) + " " + strings.TrimSpace(m.LastName))
	if name != "" {
		return name
	}
	if m.Username != "" {
		return "@" + m.Username
	}
	return fmt.Sprintf("id:%d", m.UserID)
}

// Mention renders one member as an anchor-style mention token.
// The display name is escaped; names are user-controlled input.
func Mention(m storage.Member) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, m.UserID, html.EscapeString(DisplayName(m)))
}

// BatchText joins one batch of mentions. When dispatching on behalf of a
// team, a trailing line names the team (capitalized) on every batch, so
// late-arriving batches still carry context.
func (r Renderer) BatchText(batch []storage.Member, teamSlug string) string {
	parts := make([]string, 0, len(batch))
	for _, m := range batch {
		parts = append(parts, Mention(m))
	}
	text := strings.Join(parts, r.separator)
	if teamSlug != "" {
		text += "\n\n" + capitalize(teamSlug)
	}
	return text
}

func capitalize(s string) string {
	rs := []rune(s)
	if len(rs) == 0 {
		return s
	}
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}
