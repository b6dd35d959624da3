package adminsync

import (
	"context"
	"errors"
	"testing"
	"time"

	kit "github.com/filippgl/tagall-bot/internal/transport"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

type fakeSource struct {
	admins     []int64
	adminsErr  error
	listCalls  int
	roleCalls  int
	directRole kit.Role
}

func (f *fakeSource) MemberRole(context.Context, int64, int64) (kit.Role, error) {
	f.roleCalls++
	if f.directRole == "" {
		return kit.RoleMember, nil
	}
	return f.directRole, nil
}

func (f *fakeSource) Administrators(context.Context, int64) ([]int64, error) {
	f.listCalls++
	if f.adminsErr != nil {
		return nil, f.adminsErr
	}
	return f.admins, nil
}

func newTestCache(src *fakeSource, enabled bool, ttl time.Duration) (*Cache, *time.Time) {
	c := New(Config{Enabled: enabled, TTL: ttl}, src, logx.Nop())
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemberRoleCachesAdminSet(t *testing.T) {
	t.Parallel()

	src := &fakeSource{admins: []int64{10, 11}}
	c, _ := newTestCache(src, true, time.Minute)
	ctx := context.Background()

	role, err := c.MemberRole(ctx, 1, 10)
	if err != nil || !role.IsAdmin() {
		t.Fatalf("role = %v err = %v", role, err)
	}
	role, _ = c.MemberRole(ctx, 1, 99)
	if role.IsAdmin() {
		t.Fatal("non-admin reported as admin")
	}
	if src.listCalls != 1 {
		t.Fatalf("admin list fetched %d times, want 1", src.listCalls)
	}
	if src.roleCalls != 0 {
		t.Fatalf("direct role queried %d times, want 0", src.roleCalls)
	}
}

func TestMemberRoleRefreshesStaleEntry(t *testing.T) {
	t.Parallel()

	src := &fakeSource{admins: []int64{10}}
	c, now := newTestCache(src, true, time.Minute)
	ctx := context.Background()

	if _, err := c.MemberRole(ctx, 1, 10); err != nil {
		t.Fatal(err)
	}
	*now = now.Add(2 * time.Minute)
	src.admins = []int64{11}

	role, _ := c.MemberRole(ctx, 1, 10)
	if role.IsAdmin() {
		t.Fatal("demoted admin still cached past TTL")
	}
	if src.listCalls != 2 {
		t.Fatalf("admin list fetched %d times, want 2", src.listCalls)
	}
}

func TestMemberRoleFallsBackOnRefreshError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{adminsErr: errors.New("unavailable"), directRole: kit.RoleCreator}
	c, _ := newTestCache(src, true, time.Minute)

	role, err := c.MemberRole(context.Background(), 1, 10)
	if err != nil || role != kit.RoleCreator {
		t.Fatalf("role = %v err = %v", role, err)
	}
	if src.roleCalls != 1 {
		t.Fatalf("direct role queried %d times, want 1", src.roleCalls)
	}
}

func TestDisabledCacheIsPassThrough(t *testing.T) {
	t.Parallel()

	src := &fakeSource{directRole: kit.RoleAdministrator}
	c, _ := newTestCache(src, false, time.Minute)

	role, err := c.MemberRole(context.Background(), 1, 10)
	if err != nil || role != kit.RoleAdministrator {
		t.Fatalf("role = %v err = %v", role, err)
	}
	if src.listCalls != 0 {
		t.Fatal("disabled cache listed admins")
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("disabled Start: %v", err)
	}
	c.Stop()
}

func TestResyncAllRefreshesKnownChats(t *testing.T) {
	t.Parallel()

	src := &fakeSource{admins: []int64{10}}
	c, _ := newTestCache(src, true, time.Hour)
	ctx := context.Background()

	if _, err := c.MemberRole(ctx, 1, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := c.MemberRole(ctx, 2, 10); err != nil {
		t.Fatal(err)
	}

	src.admins = []int64{11}
	c.resyncAll(ctx)

	// Fresh set answers without further fetches.
	role, _ := c.MemberRole(ctx, 1, 10)
	if role.IsAdmin() {
		t.Fatal("resync did not replace the cached set")
	}
	if src.listCalls != 4 {
		t.Fatalf("admin list fetched %d times, want 4", src.listCalls)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	c := New(Config{Enabled: true, Spec: "not a spec"}, &fakeSource{}, logx.Nop())
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected spec parse error")
	}
}
