package teams

import (
	"context"
	"strings"
	"testing"

	"github.com/filippgl/tagall-bot/internal/storage"
	kit "github.com/filippgl/tagall-bot/internal/transport"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

// memStore is an in-memory Store; slugs hold stored casing.
type memStore struct {
	teams     map[string]map[int64]bool // slug -> member set
	roster    map[int64]bool
	adminOnly *bool
}

func newMemStore() *memStore {
	return &memStore{
		teams:  map[string]map[int64]bool{},
		roster: map[int64]bool{},
	}
}

func (s *memStore) resolve(token string) (string, bool) {
	for slug := range s.teams {
		if strings.EqualFold(slug, token) {
			return slug, true
		}
	}
	return "", false
}

func (s *memStore) CreateTeam(_ context.Context, _ int64, slug string) error {
	if _, ok := s.resolve(slug); ok {
		return storage.ErrTeamExists
	}
	s.teams[slug] = map[int64]bool{}
	return nil
}

func (s *memStore) RenameTeam(_ context.Context, _ int64, oldSlug, newSlug string) error {
	stored, ok := s.resolve(oldSlug)
	if !ok {
		return storage.ErrTeamNotFound
	}
	if other, ok := s.resolve(newSlug); ok && other != stored {
		return storage.ErrTeamExists
	}
	s.teams[newSlug] = s.teams[stored]
	if newSlug != stored {
		delete(s.teams, stored)
	}
	return nil
}

func (s *memStore) DeleteTeam(_ context.Context, _ int64, slug string) error {
	stored, ok := s.resolve(slug)
	if !ok {
		return storage.ErrTeamNotFound
	}
	delete(s.teams, stored)
	return nil
}

func (s *memStore) ListTeams(context.Context, int64) ([]storage.TeamInfo, error) {
	out := make([]storage.TeamInfo, 0, len(s.teams))
	for slug, members := range s.teams {
		out = append(out, storage.TeamInfo{Slug: slug, Members: len(members)})
	}
	return out, nil
}

func (s *memStore) AddTeamMember(_ context.Context, _ int64, slug string, userID int64) error {
	stored, ok := s.resolve(slug)
	if !ok {
		return storage.ErrTeamNotFound
	}
	if !s.roster[userID] {
		return storage.ErrNotOnRoster
	}
	s.teams[stored][userID] = true
	return nil
}

func (s *memStore) RemoveTeamMember(_ context.Context, _ int64, slug string, userID int64) error {
	stored, ok := s.resolve(slug)
	if !ok {
		return storage.ErrTeamNotFound
	}
	delete(s.teams[stored], userID)
	return nil
}

func (s *memStore) ResolveTeamSlug(_ context.Context, _ int64, token string) (string, bool, error) {
	stored, ok := s.resolve(token)
	return stored, ok, nil
}

func (s *memStore) FetchTeamCandidates(_ context.Context, _ int64, slug string, limit int) ([]storage.Member, error) {
	stored, ok := s.resolve(slug)
	if !ok {
		return nil, nil
	}
	var out []storage.Member
	for id := range s.roster {
		if !s.teams[stored][id] && len(out) < limit {
			out = append(out, storage.Member{UserID: id, FirstName: "someone"})
		}
	}
	return out, nil
}

func (s *memStore) SetAdminOnly(_ context.Context, _ int64, v bool) error {
	s.adminOnly = &v
	return nil
}

type fakeRoles struct {
	admins map[int64]bool
	err    error
}

func (f *fakeRoles) MemberRole(_ context.Context, _ int64, userID int64) (kit.Role, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.admins[userID] {
		return kit.RoleAdministrator, nil
	}
	return kit.RoleMember, nil
}

type replySink struct {
	texts []string
}

func (r *replySink) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.texts = append(r.texts, text)
	return kit.MessageRef{}, nil
}

const adminID = 10

func newTestService(store *memStore) (*Service, *replySink) {
	sink := &replySink{}
	roles := &fakeRoles{admins: map[int64]bool{adminID: true}}
	return New(store, roles, sink, "tagallbot", "tagall", logx.Nop()), sink
}

func adminMsg(text string) *kit.Message {
	return &kit.Message{
		ID:       100,
		ChatID:   42,
		ChatType: kit.ChatSuperGroup,
		From:     kit.User{ID: adminID},
		Text:     text,
	}
}

func lastReply(t *testing.T, sink *replySink) string {
	t.Helper()
	if len(sink.texts) == 0 {
		t.Fatal("no reply sent")
	}
	return sink.texts[len(sink.texts)-1]
}

func TestTeamLifecycleCommands(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.roster[7] = true
	svc, sink := newTestService(store)
	ctx := context.Background()

	if !svc.HandleMessage(ctx, adminMsg("/team_new Devs")) {
		t.Fatal("team_new not handled")
	}
	if _, ok := store.teams["Devs"]; !ok {
		t.Fatal("team not created")
	}

	// Case-insensitive duplicate.
	svc.HandleMessage(ctx, adminMsg("/team_new DEVS"))
	if !strings.Contains(lastReply(t, sink), "already exists") {
		t.Fatalf("duplicate reply = %q", lastReply(t, sink))
	}

	// Add by reply.
	add := adminMsg("/team_add devs")
	add.ReplyToID = 5
	add.ReplyFrom = &kit.User{ID: 7, FirstName: "Ann"}
	svc.HandleMessage(ctx, add)
	if !store.teams["Devs"][7] {
		t.Fatal("member not added")
	}
	if !strings.Contains(lastReply(t, sink), "Ann") {
		t.Fatalf("add reply = %q", lastReply(t, sink))
	}

	// Remove by reply.
	rm := adminMsg("/team_rm devs")
	rm.ReplyToID = 5
	rm.ReplyFrom = &kit.User{ID: 7, FirstName: "Ann"}
	svc.HandleMessage(ctx, rm)
	if store.teams["Devs"][7] {
		t.Fatal("member not removed")
	}

	svc.HandleMessage(ctx, adminMsg("/team_rename devs Ops"))
	if _, ok := store.teams["Ops"]; !ok {
		t.Fatal("rename did not land")
	}

	svc.HandleMessage(ctx, adminMsg("/team_del ops"))
	if len(store.teams) != 0 {
		t.Fatal("team not deleted")
	}
}

func TestTeamAddRequiresRosterPresence(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.teams["Devs"] = map[int64]bool{}
	svc, sink := newTestService(store)

	add := adminMsg("/team_add devs")
	add.ReplyToID = 5
	add.ReplyFrom = &kit.User{ID: 99, FirstName: "Stranger"}
	svc.HandleMessage(context.Background(), add)
	if !strings.Contains(lastReply(t, sink), "haven't seen") {
		t.Fatalf("reply = %q", lastReply(t, sink))
	}
}

func TestTeamAddWithoutReplyListsCandidates(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.teams["Devs"] = map[int64]bool{}
	store.roster[7] = true
	svc, sink := newTestService(store)

	svc.HandleMessage(context.Background(), adminMsg("/team_add devs"))
	if got := lastReply(t, sink); !strings.Contains(got, "Reply to a message") {
		t.Fatalf("reply = %q", got)
	}
}

func TestSlugValidation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc, sink := newTestService(store)
	ctx := context.Background()

	for _, bad := range []string{"/team_new bad-name", "/team_new tagall", "/team_new teams", "/team_new " + strings.Repeat("x", 33)} {
		svc.HandleMessage(ctx, adminMsg(bad))
		if len(store.teams) != 0 {
			t.Fatalf("%q created a team", bad)
		}
	}
	if len(sink.texts) != 4 {
		t.Fatalf("expected 4 refusals, got %d", len(sink.texts))
	}
}

func TestManagementRequiresAdmin(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.teams["Devs"] = map[int64]bool{}
	svc, sink := newTestService(store)

	msg := adminMsg("/team_new ops")
	msg.From = kit.User{ID: 99}
	if !svc.HandleMessage(context.Background(), msg) {
		t.Fatal("not handled")
	}
	if len(store.teams) != 1 {
		t.Fatal("non-admin created a team")
	}
	if !strings.Contains(lastReply(t, sink), "admin") {
		t.Fatalf("reply = %q", lastReply(t, sink))
	}

	// Read-only commands stay open to members.
	list := adminMsg("/teams")
	list.From = kit.User{ID: 99}
	svc.HandleMessage(context.Background(), list)
	if !strings.Contains(lastReply(t, sink), "/devs") {
		t.Fatalf("list reply = %q", lastReply(t, sink))
	}
}

func TestAdminsToggle(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc, sink := newTestService(store)
	ctx := context.Background()

	svc.HandleMessage(ctx, adminMsg("/tagall_admins off"))
	if store.adminOnly == nil || *store.adminOnly {
		t.Fatal("toggle off did not land")
	}
	svc.HandleMessage(ctx, adminMsg("/tagall_admins on"))
	if !*store.adminOnly {
		t.Fatal("toggle on did not land")
	}
	svc.HandleMessage(ctx, adminMsg("/tagall_admins maybe"))
	if !strings.Contains(lastReply(t, sink), "Usage") {
		t.Fatalf("reply = %q", lastReply(t, sink))
	}
}

func TestRoutingIgnoresOtherTraffic(t *testing.T) {
	t.Parallel()

	svc, sink := newTestService(newMemStore())
	ctx := context.Background()

	if svc.HandleMessage(ctx, adminMsg("hello /team_new devs")) {
		t.Fatal("mid-text command treated as team command")
	}
	if svc.HandleMessage(ctx, adminMsg("/tagall")) {
		t.Fatal("mention command treated as team command")
	}
	if svc.HandleMessage(ctx, adminMsg("/team_new@otherbot devs")) {
		t.Fatal("other bot's command handled")
	}
	if !svc.HandleMessage(ctx, adminMsg("/team_new@TagallBot devs")) {
		t.Fatal("suffixed command not handled")
	}
	if len(sink.texts) != 1 {
		t.Fatalf("sent %d replies, want 1", len(sink.texts))
	}
}
