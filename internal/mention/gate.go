package mention

import (
	"context"
	"sync"
	"time"

	kit "github.com/filippgl/tagall-bot/internal/transport"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

// RoleSource answers chat-membership role queries.
type RoleSource interface {
	MemberRole(ctx context.Context, chatID, userID int64) (kit.Role, error)
}

// SettingsSource answers the per-chat "restricted to admins" flag.
type SettingsSource interface {
	AdminOnly(ctx context.Context, chatID int64) (bool, error)
}

// Gate admits or rejects a classified dispatch request: group-only, optional
// admin-only, and a per-chat cooldown between admitted dispatches.
//
// The cooldown map is process-local and ephemeral; it resets on restart.
// That is acceptable: the cooldown is an abuse-prevention courtesy, not a
// correctness guarantee.
type Gate struct {
	roles    RoleSource
	settings SettingsSource
	cooldown time.Duration
	log      logx.Logger

	now func() time.Time

	mu   sync.Mutex
	last map[int64]time.Time
}

func NewGate(roles RoleSource, settings SettingsSource, cooldown time.Duration, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{
		roles:    roles,
		settings: settings,
		cooldown: cooldown,
		log:      log,
		now:      time.Now,
		last:     make(map[int64]time.Time),
	}
}

// Admit checks the invocation in order: group context, admin restriction,
// cooldown. On admission it stamps the chat's cooldown immediately, before
// any sends begin, so a slow-sending dispatch can't let a second invocation
// slip through the window.
func (g *Gate) Admit(ctx context.Context, chatType kit.ChatType, chatID, userID int64) error {
	if !chatType.IsGroup() {
		return ErrGroupsOnly
	}

	restricted, err := g.settings.AdminOnly(ctx, chatID)
	if err != nil {
		// Fail closed: an unreadable setting keeps the restrictive default.
		g.log.Warn("admin-only lookup failed; assuming restricted", logx.Int64("chat_id", chatID), logx.Err(err))
		restricted = true
	}
	if restricted {
		role, err := g.roles.MemberRole(ctx, chatID, userID)
		if err != nil {
			// Fail closed: unknown role is not admin.
			g.log.Debug("role lookup failed; treating as non-admin", logx.Int64("chat_id", chatID), logx.Int64("user_id", userID), logx.Err(err))
			return ErrNotAdmin
		}
		if !role.IsAdmin() {
			return ErrNotAdmin
		}
	}

	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.last[chatID]; ok {
		if elapsed := now.Sub(last); elapsed < g.cooldown {
			return &CooldownError{Remaining: g.cooldown - elapsed}
		}
	}
	g.last[chatID] = now
	return nil
}
