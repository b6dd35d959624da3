package mention

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/filippgl/tagall-bot/internal/storage"
	kit "github.com/filippgl/tagall-bot/internal/transport"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

// fakeStore is an in-memory StoreAPI for service-level tests.
type fakeStore struct {
	roster    []storage.Member
	teams     map[string][]storage.Member // stored casing
	adminOnly bool
}

func (f *fakeStore) ResolveTeamSlug(_ context.Context, _ int64, token string) (string, bool, error) {
	for slug := range f.teams {
		if strings.EqualFold(slug, token) {
			return slug, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeStore) AdminOnly(context.Context, int64) (bool, error) {
	return f.adminOnly, nil
}

func (f *fakeStore) FetchRoster(_ context.Context, _ int64, limit int) ([]storage.Member, error) {
	if limit >= 0 && limit < len(f.roster) {
		return f.roster[:limit], nil
	}
	return f.roster, nil
}

func (f *fakeStore) FetchTeamMembers(_ context.Context, _ int64, slug string) ([]storage.Member, error) {
	return f.teams[slug], nil
}

func newTestService(store *fakeStore, sender *scriptedSender, cfg Config) *Service {
	s := New(cfg, store, &fakeRoles{}, sender, "tagallbot", logx.Nop())
	s.disp.sleep = func(context.Context, time.Duration) error { return nil }
	s.gate.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

func groupMsg(text string, replyTo int) *kit.Message {
	return &kit.Message{
		ID:        100,
		ChatID:    42,
		ChatType:  kit.ChatSuperGroup,
		From:      kit.User{ID: 9},
		Text:      text,
		ReplyToID: replyTo,
	}
}

func TestHandleMessageRosterDispatch(t *testing.T) {
	t.Parallel()

	store := &fakeStore{roster: roster(25)}
	sender := &scriptedSender{}
	svc := newTestService(store, sender, Config{BatchSize: 10})

	if !svc.HandleMessage(context.Background(), groupMsg("/tagall", 7)) {
		t.Fatal("invocation not handled")
	}
	if len(sender.calls) != 3 {
		t.Fatalf("sent %d messages, want 3 batches", len(sender.calls))
	}
	for _, c := range sender.calls {
		if c.opt.ReplyTo != 7 {
			t.Fatalf("batch anchored to %d, want 7", c.opt.ReplyTo)
		}
	}
}

func TestHandleMessageIgnoresNonInvocations(t *testing.T) {
	t.Parallel()

	sender := &scriptedSender{}
	svc := newTestService(&fakeStore{roster: roster(3)}, sender, Config{})

	if svc.HandleMessage(context.Background(), groupMsg("hello there", 0)) {
		t.Fatal("plain message reported as handled")
	}
	if svc.HandleMessage(context.Background(), groupMsg("/unrelated", 7)) {
		t.Fatal("unknown command reported as handled")
	}
	if len(sender.calls) != 0 {
		t.Fatalf("sent %d messages, want none", len(sender.calls))
	}
}

func TestHandleMessageUsageHint(t *testing.T) {
	t.Parallel()

	sender := &scriptedSender{}
	svc := newTestService(&fakeStore{roster: roster(3)}, sender, Config{})

	if !svc.HandleMessage(context.Background(), groupMsg("/tagall", 0)) {
		t.Fatal("bare command not handled")
	}
	if len(sender.calls) != 1 {
		t.Fatalf("sent %d messages, want 1 hint", len(sender.calls))
	}
	if !strings.Contains(sender.calls[0].text, "/tagall") {
		t.Fatalf("hint does not name the command: %q", sender.calls[0].text)
	}
}

func TestHandleMessageRefusals(t *testing.T) {
	t.Parallel()

	t.Run("private chat", func(t *testing.T) {
		t.Parallel()
		sender := &scriptedSender{}
		svc := newTestService(&fakeStore{roster: roster(3)}, sender, Config{})
		msg := groupMsg("/tagall", 7)
		msg.ChatType = kit.ChatPrivate
		if !svc.HandleMessage(context.Background(), msg) {
			t.Fatal("not handled")
		}
		if len(sender.calls) != 1 || !strings.Contains(sender.calls[0].text, "group") {
			t.Fatalf("calls = %+v", sender.calls)
		}
	})

	t.Run("admin only", func(t *testing.T) {
		t.Parallel()
		sender := &scriptedSender{}
		svc := newTestService(&fakeStore{roster: roster(3), adminOnly: true}, sender, Config{})
		if !svc.HandleMessage(context.Background(), groupMsg("/tagall", 7)) {
			t.Fatal("not handled")
		}
		if len(sender.calls) != 1 || !strings.Contains(sender.calls[0].text, "admin") {
			t.Fatalf("calls = %+v", sender.calls)
		}
	})

	t.Run("cooldown", func(t *testing.T) {
		t.Parallel()
		sender := &scriptedSender{}
		svc := newTestService(&fakeStore{roster: roster(3)}, sender, Config{Cooldown: time.Minute})
		if !svc.HandleMessage(context.Background(), groupMsg("/tagall", 7)) {
			t.Fatal("first invocation not handled")
		}
		sent := len(sender.calls)
		if !svc.HandleMessage(context.Background(), groupMsg("/tagall", 7)) {
			t.Fatal("second invocation not handled")
		}
		if len(sender.calls) != sent+1 {
			t.Fatalf("expected exactly one refusal message, got %d new", len(sender.calls)-sent)
		}
		if got := sender.calls[len(sender.calls)-1].text; !strings.Contains(got, "wait 60s") {
			t.Fatalf("cooldown reply = %q", got)
		}
	})
}

func TestHandleMessageEmptySources(t *testing.T) {
	t.Parallel()

	t.Run("empty roster", func(t *testing.T) {
		t.Parallel()
		sender := &scriptedSender{}
		svc := newTestService(&fakeStore{}, sender, Config{})
		if !svc.HandleMessage(context.Background(), groupMsg("/tagall", 7)) {
			t.Fatal("not handled")
		}
		if len(sender.calls) != 1 || !strings.Contains(sender.calls[0].text, "haven't seen") {
			t.Fatalf("calls = %+v", sender.calls)
		}
	})

	t.Run("empty team", func(t *testing.T) {
		t.Parallel()
		sender := &scriptedSender{}
		store := &fakeStore{roster: roster(3), teams: map[string][]storage.Member{"Devs": nil}}
		svc := newTestService(store, sender, Config{})
		if !svc.HandleMessage(context.Background(), groupMsg("/devs", 7)) {
			t.Fatal("not handled")
		}
		if len(sender.calls) != 1 || !strings.Contains(sender.calls[0].text, "Devs") {
			t.Fatalf("calls = %+v", sender.calls)
		}
	})
}

func TestHandleMessageTeamDispatch(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		roster: roster(50),
		teams:  map[string][]storage.Member{"Devs": roster(3)},
	}
	sender := &scriptedSender{}
	svc := newTestService(store, sender, Config{BatchSize: 20})

	if !svc.HandleMessage(context.Background(), groupMsg("/DEVS", 7)) {
		t.Fatal("team invocation not handled")
	}
	if len(sender.calls) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.calls))
	}
	if !strings.HasSuffix(sender.calls[0].text, "\n\nDevs") {
		t.Fatalf("team label missing: %q", sender.calls[0].text)
	}
}

func TestHandleMessageDispatchFailure(t *testing.T) {
	t.Parallel()

	sender := &scriptedSender{script: []error{nil, context.DeadlineExceeded}}
	svc := newTestService(&fakeStore{roster: roster(25)}, sender, Config{BatchSize: 10})

	if !svc.HandleMessage(context.Background(), groupMsg("/tagall", 7)) {
		t.Fatal("not handled")
	}
	// Two batch attempts plus one failure notice.
	if len(sender.calls) != 3 {
		t.Fatalf("sent %d messages, want 3", len(sender.calls))
	}
	if got := sender.calls[2].text; !strings.Contains(got, "try again") {
		t.Fatalf("failure notice = %q", got)
	}
}

func TestApplyKeepsCooldownState(t *testing.T) {
	t.Parallel()

	sender := &scriptedSender{}
	svc := newTestService(&fakeStore{roster: roster(3)}, sender, Config{Cooldown: time.Minute})

	if !svc.HandleMessage(context.Background(), groupMsg("/tagall", 7)) {
		t.Fatal("first invocation not handled")
	}

	svc.Apply(Config{Cooldown: time.Minute, BatchSize: 5})
	svc.gate.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	sent := len(sender.calls)
	if !svc.HandleMessage(context.Background(), groupMsg("/tagall", 7)) {
		t.Fatal("second invocation not handled")
	}
	if got := sender.calls[len(sender.calls)-1].text; !strings.Contains(got, "wait") {
		t.Fatalf("reload cleared cooldown; reply = %q", got)
	}
	if len(sender.calls) != sent+1 {
		t.Fatalf("expected one refusal, got %d new sends", len(sender.calls)-sent)
	}
}
