package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTeamExists   = errors.New("team already exists")
	ErrTeamNotFound = errors.New("team not found")
	ErrNotOnRoster  = errors.New("user not on roster")
)

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Member is one observed (chat, user) pair.
//
// FirstSeen is set once on the first observation and never changes; it is the
// canonical roster ordering key. LastSeen advances on every observation.
type Member struct {
	UserID    int64
	FirstName string
	LastName  string
	Username  string
	IsBot     bool
	FirstSeen time.Time
	LastSeen  time.Time
}

// TeamInfo is a team summary row for listings.
type TeamInfo struct {
	Slug    string
	Members int
}

// Store is the persistence API consumed by the mention engine, the member
// observation hooks, and the team management commands.
//
// Ordering contract: FetchRoster and FetchTeamMembers return members ordered
// by first-seen ascending (user id as a tie-break), so repeated resolution
// with unchanged data yields identical lists.
type Store interface {
	// ObserveMember upserts a roster row: insert on first sight, otherwise
	// refresh names/is-bot and advance last-seen.
	ObserveMember(ctx context.Context, chatID int64, m Member, seenAt time.Time) error

	// FetchRoster returns the chat's non-bot members, capped at limit
	// (limit <= 0 means no cap).
	FetchRoster(ctx context.Context, chatID int64, limit int) ([]Member, error)
	// FetchTeamMembers returns the team's members joined against the roster.
	FetchTeamMembers(ctx context.Context, chatID int64, slug string) ([]Member, error)
	// FetchTeamCandidates returns roster members not yet on the team.
	FetchTeamCandidates(ctx context.Context, chatID int64, slug string, limit int) ([]Member, error)

	// ResolveTeamSlug looks up a team by token, case-insensitively, and
	// returns the stored casing.
	ResolveTeamSlug(ctx context.Context, chatID int64, token string) (slug string, ok bool, err error)

	// CreateTeam fails with ErrTeamExists when a team with the same slug
	// (compared case-insensitively) already exists in the chat.
	CreateTeam(ctx context.Context, chatID int64, slug string) error
	// RenameTeam updates the slug and cascades to membership rows.
	RenameTeam(ctx context.Context, chatID int64, oldSlug, newSlug string) error
	// DeleteTeam removes the team and its membership rows. Roster rows are
	// never touched.
	DeleteTeam(ctx context.Context, chatID int64, slug string) error
	ListTeams(ctx context.Context, chatID int64) ([]TeamInfo, error)

	// AddTeamMember requires the user to already be on the chat's roster.
	// Adding an existing member is a no-op.
	AddTeamMember(ctx context.Context, chatID int64, slug string, userID int64) error
	RemoveTeamMember(ctx context.Context, chatID int64, slug string, userID int64) error

	// AdminOnly reports the chat's "mentions restricted to admins" flag.
	// Absence of a settings row means true.
	AdminOnly(ctx context.Context, chatID int64) (bool, error)
	SetAdminOnly(ctx context.Context, chatID int64, v bool) error

	Close() error
}
