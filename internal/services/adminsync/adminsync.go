// Package adminsync caches chat administrator sets so the per-invocation
// authorization check doesn't hit the platform every time. The cache is
// refreshed lazily on stale reads and eagerly on a cron schedule.
package adminsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	kit "github.com/filippgl/tagall-bot/internal/transport"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

// Source is the transport slice the cache reads through.
type Source interface {
	MemberRole(ctx context.Context, chatID, userID int64) (kit.Role, error)
	Administrators(ctx context.Context, chatID int64) ([]int64, error)
}

type Config struct {
	Enabled bool
	// Spec is a cron spec for the eager resync ("@every 15m" style works).
	Spec string
	// TTL bounds how long a cached admin set answers role queries.
	TTL      time.Duration
	Timezone string
}

func (c Config) withDefaults() Config {
	if c.Spec == "" {
		c.Spec = "@every 15m"
	}
	if c.TTL <= 0 {
		c.TTL = 15 * time.Minute
	}
	return c
}

type chatAdmins struct {
	ids     map[int64]bool
	fetched time.Time
}

// Cache answers MemberRole from cached administrator sets. Disabled, it is a
// transparent pass-through.
type Cache struct {
	src Source
	cfg Config
	log logx.Logger

	now func() time.Time

	mu    sync.Mutex
	chats map[int64]*chatAdmins
	cron  *cron.Cron
}

func New(cfg Config, src Source, log logx.Logger) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{
		src:   src,
		cfg:   cfg.withDefaults(),
		log:   log,
		now:   time.Now,
		chats: map[int64]*chatAdmins{},
	}
}

// MemberRole reports the user's role in the chat. A fresh cached admin set
// answers directly; otherwise the set is refreshed, falling back to a direct
// role query when the refresh fails.
func (c *Cache) MemberRole(ctx context.Context, chatID, userID int64) (kit.Role, error) {
	if !c.cfg.Enabled {
		return c.src.MemberRole(ctx, chatID, userID)
	}

	now := c.now()
	c.mu.Lock()
	entry, ok := c.chats[chatID]
	if ok && now.Sub(entry.fetched) < c.cfg.TTL {
		isAdmin := entry.ids[userID]
		c.mu.Unlock()
		return roleFor(isAdmin), nil
	}
	c.mu.Unlock()

	ids, err := c.refresh(ctx, chatID)
	if err != nil {
		c.log.Debug("admin set refresh failed; querying role directly",
			logx.Int64("chat_id", chatID), logx.Err(err))
		return c.src.MemberRole(ctx, chatID, userID)
	}
	return roleFor(ids[userID]), nil
}

func roleFor(isAdmin bool) kit.Role {
	if isAdmin {
		return kit.RoleAdministrator
	}
	return kit.RoleMember
}

func (c *Cache) refresh(ctx context.Context, chatID int64) (map[int64]bool, error) {
	admins, err := c.src.Administrators(ctx, chatID)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]bool, len(admins))
	for _, id := range admins {
		ids[id] = true
	}
	c.mu.Lock()
	c.chats[chatID] = &chatAdmins{ids: ids, fetched: c.now()}
	c.mu.Unlock()
	return ids, nil
}

// Start launches the cron resync. No-op when disabled.
func (c *Cache) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}
	loc := time.Local
	if c.cfg.Timezone != "" {
		l, err := time.LoadLocation(c.cfg.Timezone)
		if err != nil {
			return fmt.Errorf("adminsync timezone: %w", err)
		}
		loc = l
	}
	cr := cron.New(cron.WithLocation(loc))
	if _, err := cr.AddFunc(c.cfg.Spec, func() { c.resyncAll(ctx) }); err != nil {
		return fmt.Errorf("adminsync spec %q: %w", c.cfg.Spec, err)
	}
	c.mu.Lock()
	c.cron = cr
	c.mu.Unlock()
	cr.Start()
	c.log.Info("admin resync scheduled", logx.String("spec", c.cfg.Spec))
	return nil
}

// Stop halts the cron resync, waiting for a running resync to finish.
func (c *Cache) Stop() {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()
	if cr != nil {
		<-cr.Stop().Done()
	}
}

// resyncAll refreshes every chat the cache has seen.
func (c *Cache) resyncAll(ctx context.Context) {
	c.mu.Lock()
	ids := make([]int64, 0, len(c.chats))
	for id := range c.chats {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, chatID := range ids {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := c.refresh(callCtx, chatID)
		cancel()
		if err != nil {
			c.log.Warn("admin resync failed", logx.Int64("chat_id", chatID), logx.Err(err))
		}
	}
}
