package mention

import (
	"context"
	"strings"

	kit "github.com/filippgl/tagall-bot/internal/transport"
)

// Kind classifies what an inbound message asks the engine to do.
type Kind int

const (
	KindNone Kind = iota
	KindRoster
	KindTeam
)

// Invocation is a classified dispatch request.
type Invocation struct {
	Kind Kind
	// Slug is the stored team slug (stored casing), set when Kind is KindTeam.
	Slug string
	// TargetID is the message the mention batches reply to.
	TargetID int
}

// TeamIndex resolves a command token against the chat's known team slugs,
// case-insensitively, returning the stored casing.
type TeamIndex interface {
	ResolveTeamSlug(ctx context.Context, chatID int64, token string) (slug string, ok bool, err error)
}

// Parser is a two-stage classifier: a tokenizer extracts a candidate command
// word, then the word is matched against the reserved roster command and the
// chat's team slugs. Classification is pure; no side effects.
type Parser struct {
	command string
	botName string
	teams   TeamIndex
}

func NewParser(command, botUsername string, teams TeamIndex) *Parser {
	return &Parser{
		command: command,
		botName: botUsername,
		teams:   teams,
	}
}

// Classify decides whether msg invokes mention dispatch and what message the
// batches should be anchored to.
//
// Returns (zero Invocation, nil) when the message does not invoke dispatch at
// all, so normal message handling proceeds unaffected. Returns ErrNoTarget
// when the command matched but there is nothing to anchor mentions to; the
// Invocation's Kind is still set so the caller can report usage.
func (p *Parser) Classify(ctx context.Context, msg *kit.Message) (Invocation, error) {
	token, rest, ok := extractCommand(msg.Text, p.botName)
	if !ok {
		return Invocation{}, nil
	}

	var inv Invocation
	if strings.EqualFold(token, p.command) {
		inv.Kind = KindRoster
	} else {
		slug, found, err := p.teams.ResolveTeamSlug(ctx, msg.ChatID, token)
		if err != nil {
			return Invocation{}, err
		}
		if !found {
			return Invocation{}, nil
		}
		inv.Kind = KindTeam
		inv.Slug = slug
	}

	// Target resolution: an explicit reply wins; otherwise the invoking
	// message itself, but only if it carries content beyond the bare command.
	switch {
	case msg.ReplyToID != 0:
		inv.TargetID = msg.ReplyToID
	case msg.HasMedia || strings.TrimSpace(rest) != "":
		inv.TargetID = msg.ID
	default:
		return inv, ErrNoTarget
	}
	return inv, nil
}

// extractCommand scans text for a token of the form "/word" (optionally
// "/word@botname", matched case-insensitively). It returns the word, the text
// with the token stripped, and whether a token addressed to this bot was
// found. Tokens suffixed with a different bot's name are skipped.
func extractCommand(text, botName string) (token, rest string, ok bool) {
	rs := []rune(text)
	for i := 0; i < len(rs); i++ {
		if rs[i] != '/' {
			continue
		}
		if i > 0 && !isSpace(rs[i-1]) {
			continue
		}
		j := i + 1
		for j < len(rs) && isWordRune(rs[j]) {
			j++
		}
		if j == i+1 {
			continue // bare slash
		}
		word := string(rs[i+1 : j])

		end := j
		if j < len(rs) && rs[j] == '@' {
			k := j + 1
			for k < len(rs) && isWordRune(rs[k]) {
				k++
			}
			suffix := string(rs[j+1 : k])
			if !strings.EqualFold(suffix, botName) {
				// Addressed to another bot.
				i = k - 1
				continue
			}
			end = k
		}

		return word, string(rs[:i]) + string(rs[end:]), true
	}
	return "", text, false
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
