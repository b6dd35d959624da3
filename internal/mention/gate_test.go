package mention

import (
	"context"
	"errors"
	"testing"
	"time"

	kit "github.com/filippgl/tagall-bot/internal/transport"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

type fakeRoles struct {
	roles map[int64]kit.Role
	err   error
}

func (f *fakeRoles) MemberRole(_ context.Context, _ int64, userID int64) (kit.Role, error) {
	if f.err != nil {
		return "", f.err
	}
	if r, ok := f.roles[userID]; ok {
		return r, nil
	}
	return kit.RoleMember, nil
}

type fakeSettings struct {
	adminOnly bool
	err       error
}

func (f *fakeSettings) AdminOnly(context.Context, int64) (bool, error) {
	return f.adminOnly, f.err
}

func newTestGate(roles *fakeRoles, settings *fakeSettings, cooldown time.Duration) (*Gate, *time.Time) {
	g := NewGate(roles, settings, cooldown, logx.Nop())
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestAdmitGroupOnly(t *testing.T) {
	t.Parallel()

	g, _ := newTestGate(&fakeRoles{}, &fakeSettings{}, time.Minute)
	for _, ct := range []kit.ChatType{kit.ChatPrivate, kit.ChatChannel} {
		if err := g.Admit(context.Background(), ct, 1, 2); !errors.Is(err, ErrGroupsOnly) {
			t.Fatalf("chat type %q: got %v, want ErrGroupsOnly", ct, err)
		}
	}
	if err := g.Admit(context.Background(), kit.ChatSuperGroup, 1, 2); err != nil {
		t.Fatalf("supergroup rejected: %v", err)
	}
}

func TestAdmitAdminRestriction(t *testing.T) {
	t.Parallel()

	roles := &fakeRoles{roles: map[int64]kit.Role{
		10: kit.RoleCreator,
		11: kit.RoleAdministrator,
	}}

	g, _ := newTestGate(roles, &fakeSettings{adminOnly: true}, time.Minute)
	for _, admin := range []int64{10, 11} {
		if err := g.Admit(context.Background(), kit.ChatGroup, int64(admin), admin); err != nil {
			t.Fatalf("admin %d rejected: %v", admin, err)
		}
	}
	if err := g.Admit(context.Background(), kit.ChatGroup, 99, 12); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("member admitted under restriction: %v", err)
	}

	open, _ := newTestGate(roles, &fakeSettings{adminOnly: false}, time.Minute)
	if err := open.Admit(context.Background(), kit.ChatGroup, 99, 12); err != nil {
		t.Fatalf("member rejected in open chat: %v", err)
	}
}

func TestAdmitFailsClosed(t *testing.T) {
	t.Parallel()

	// Unreadable setting keeps the restrictive default.
	g, _ := newTestGate(&fakeRoles{}, &fakeSettings{err: errors.New("db closed")}, time.Minute)
	if err := g.Admit(context.Background(), kit.ChatGroup, 1, 12); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("got %v, want ErrNotAdmin", err)
	}

	// Unknown role is not admin.
	g2, _ := newTestGate(&fakeRoles{err: errors.New("timeout")}, &fakeSettings{adminOnly: true}, time.Minute)
	if err := g2.Admit(context.Background(), kit.ChatGroup, 1, 12); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("got %v, want ErrNotAdmin", err)
	}
}

func TestAdmitCooldown(t *testing.T) {
	t.Parallel()

	const cooldown = time.Minute
	g, now := newTestGate(&fakeRoles{}, &fakeSettings{}, cooldown)
	t0 := *now

	if err := g.Admit(context.Background(), kit.ChatGroup, 1, 2); err != nil {
		t.Fatalf("first admit: %v", err)
	}

	// Just inside the window: rejected, remaining rounds up to whole seconds.
	*now = t0.Add(cooldown - time.Second)
	var cd *CooldownError
	err := g.Admit(context.Background(), kit.ChatGroup, 1, 2)
	if !errors.As(err, &cd) {
		t.Fatalf("got %v, want CooldownError", err)
	}
	if cd.RemainingSeconds() != 1 {
		t.Fatalf("RemainingSeconds = %d, want 1", cd.RemainingSeconds())
	}

	// A rejected attempt must not extend the window.
	*now = t0.Add(cooldown)
	if err := g.Admit(context.Background(), kit.ChatGroup, 1, 2); err != nil {
		t.Fatalf("admit at window end: %v", err)
	}

	// Other chats are unaffected.
	*now = t0.Add(time.Second)
	if err := g.Admit(context.Background(), kit.ChatGroup, 2, 2); err != nil {
		t.Fatalf("independent chat rejected: %v", err)
	}
}

func TestCooldownRemainingCeiling(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remaining time.Duration
		want      int
	}{
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{time.Second + time.Millisecond, 2},
		{59*time.Second + 500*time.Millisecond, 60},
	}
	for _, tc := range cases {
		e := &CooldownError{Remaining: tc.remaining}
		if got := e.RemainingSeconds(); got != tc.want {
			t.Fatalf("remaining %v: got %d, want %d", tc.remaining, got, tc.want)
		}
	}
}
