package mention

import (
	"context"
	"errors"
	"strings"
	"testing"

	kit "github.com/filippgl/tagall-bot/internal/transport"
)

// fakeTeams resolves slugs from a fixed set, returning stored casing.
type fakeTeams struct {
	slugs []string
	err   error
}

func (f *fakeTeams) ResolveTeamSlug(_ context.Context, _ int64, token string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	for _, s := range f.slugs {
		if strings.EqualFold(s, token) {
			return s, true, nil
		}
	}
	return "", false, nil
}

func TestClassify(t *testing.T) {
	t.Parallel()

	teams := &fakeTeams{slugs: []string{"Devs", "ops"}}
	p := NewParser("tagall", "tagallbot", teams)

	cases := []struct {
		name    string
		msg     kit.Message
		want    Invocation
		wantErr error
	}{
		{
			name: "plain text is not an invocation",
			msg:  kit.Message{ID: 10, Text: "good morning"},
		},
		{
			name: "roster command replying to a message",
			msg:  kit.Message{ID: 10, Text: "/tagall", ReplyToID: 7},
			want: Invocation{Kind: KindRoster, TargetID: 7},
		},
		{
			name: "roster command with its own text",
			msg:  kit.Message{ID: 10, Text: "/tagall standup in 5"},
			want: Invocation{Kind: KindRoster, TargetID: 10},
		},
		{
			name: "roster command with media",
			msg:  kit.Message{ID: 10, Text: "/tagall", HasMedia: true},
			want: Invocation{Kind: KindRoster, TargetID: 10},
		},
		{
			name:    "bare roster command has no target",
			msg:     kit.Message{ID: 10, Text: "/tagall"},
			want:    Invocation{Kind: KindRoster},
			wantErr: ErrNoTarget,
		},
		{
			name: "reply wins over own content",
			msg:  kit.Message{ID: 10, Text: "/tagall look here", ReplyToID: 3},
			want: Invocation{Kind: KindRoster, TargetID: 3},
		},
		{
			name: "command is case-insensitive",
			msg:  kit.Message{ID: 10, Text: "/TagAll", ReplyToID: 7},
			want: Invocation{Kind: KindRoster, TargetID: 7},
		},
		{
			name: "bot-name suffix accepted",
			msg:  kit.Message{ID: 10, Text: "/tagall@TagallBot", ReplyToID: 7},
			want: Invocation{Kind: KindRoster, TargetID: 7},
		},
		{
			name: "other bot's command ignored",
			msg:  kit.Message{ID: 10, Text: "/tagall@otherbot", ReplyToID: 7},
		},
		{
			name: "team slug resolves with stored casing",
			msg:  kit.Message{ID: 10, Text: "/devs", ReplyToID: 4},
			want: Invocation{Kind: KindTeam, Slug: "Devs", TargetID: 4},
		},
		{
			name:    "bare team command has no target",
			msg:     kit.Message{ID: 10, Text: "/ops"},
			want:    Invocation{Kind: KindTeam, Slug: "ops"},
			wantErr: ErrNoTarget,
		},
		{
			name: "unknown command word is not an invocation",
			msg:  kit.Message{ID: 10, Text: "/help", ReplyToID: 7},
		},
		{
			name: "command after whitespace is found",
			msg:  kit.Message{ID: 10, Text: "hey\n/tagall", ReplyToID: 7},
			want: Invocation{Kind: KindRoster, TargetID: 7},
		},
		{
			name: "slash inside a word is not a command",
			msg:  kit.Message{ID: 10, Text: "see a/tagall thing", ReplyToID: 7},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.Classify(context.Background(), &tc.msg)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Classify error = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("Classify = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestClassifyTeamLookupError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db closed")
	p := NewParser("tagall", "tagallbot", &fakeTeams{err: boom})
	_, err := p.Classify(context.Background(), &kit.Message{ID: 1, Text: "/devs", ReplyToID: 2})
	if !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestExtractCommandStripsToken(t *testing.T) {
	t.Parallel()

	word, rest, ok := extractCommand("/tagall wake up", "tagallbot")
	if !ok || word != "tagall" {
		t.Fatalf("got word=%q ok=%v", word, ok)
	}
	if strings.TrimSpace(rest) != "wake up" {
		t.Fatalf("rest = %q", rest)
	}
}
