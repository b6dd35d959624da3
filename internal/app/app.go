// Package app assembles the bot: configuration with hot reload, logging,
// the SQLite roster store, the Telegram adapter, and the services that
// consume the update stream.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/filippgl/tagall-bot/internal/config"
	"github.com/filippgl/tagall-bot/internal/mention"
	"github.com/filippgl/tagall-bot/internal/roster"
	"github.com/filippgl/tagall-bot/internal/runtime/supervisor"
	"github.com/filippgl/tagall-bot/internal/services/adminsync"
	"github.com/filippgl/tagall-bot/internal/storage"
	"github.com/filippgl/tagall-bot/internal/teams"
	kit "github.com/filippgl/tagall-bot/internal/transport"
	telegram "github.com/filippgl/tagall-bot/internal/transport/telegram/adapter"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	adapter kit.Adapter

	observer *roster.Observer
	admins   *adminsync.Cache
	mentions *mention.Service
	teams    *teams.Service

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with Telegram forwarding disabled, set the target, then
	// Apply() the real config, so the first Apply() can't warn about a
	// missing target chat.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	log = log.With(logx.String("comp", "app"))
	applyLogTarget(logSvc, cfg)
	logSvc.Apply(logCfg)

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	asCfg, err := mapAdminSyncConfig(cfg)
	if err != nil {
		return nil, err
	}
	admins := adminsync.New(asCfg, ad, log.With(logx.String("comp", "adminsync")))

	mcfg, err := mapMentionConfig(cfg)
	if err != nil {
		return nil, err
	}
	mentions := mention.New(mcfg, store, admins, ad, ad.BotUsername(), log.With(logx.String("comp", "mention")))
	teamSvc := teams.New(store, admins, ad, ad.BotUsername(), mentions.Command(), log.With(logx.String("comp", "teams")))

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		adapter:  ad,
		observer: roster.NewObserver(store, log.With(logx.String("comp", "roster"))),
		admins:   admins,
		mentions: mentions,
		teams:    teamSvc,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required")
		}
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapMentionConfig(cfg); err != nil {
			return err
		}
		if _, err := mapAdminSyncConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.admins.Start(a.sup.Context()); err != nil {
		return err
	}
	a.publishCommandMenu(a.sup.Context())

	a.sup.Go("updates.dispatch", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return c.Err()
			case up, ok := <-a.updates:
				if !ok {
					return nil
				}
				a.route(c, up)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("bot", a.adapter.BotUsername()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.admins.Stop()
	_ = a.adapter.Stop(ctx)
	err := a.sup.Stop(ctx)
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			a.log.Warn("store close failed", logx.Err(cerr))
		}
	}
	_ = a.logs.Close()
	return err
}

// route fans one update out to the consumers. Observation always runs first
// so an invocation's own author lands on the roster before resolution.
func (a *App) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return
		}
		a.observer.ObserveMessage(ctx, up.Message)
		if a.teams.HandleMessage(ctx, up.Message) {
			return
		}
		a.mentions.HandleMessage(ctx, up.Message)
	case kit.UpdateJoin:
		if up.Join != nil {
			a.observer.ObserveJoin(ctx, up.Join)
		}
	case kit.UpdateCallback:
		// No callback UI; clear the client spinner and move on.
		if up.Callback != nil {
			_ = a.adapter.AnswerCallback(ctx, up.Callback.ID, "")
		}
	}
}

func (a *App) applyReload(old, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(old, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	applyLogTarget(a.logs, cfg)
	a.logs.Apply(mapLoggingConfig(cfg))

	if mcfg, err := mapMentionConfig(cfg); err != nil {
		a.log.Warn("invalid mention config; keeping previous", logx.Err(err))
	} else {
		a.mentions.Apply(mcfg)
	}

	for _, s := range sections {
		if s == "storage" || s == "admin_sync" || s == "telegram" {
			a.log.Warn("config section requires restart to take effect", logx.String("section", s))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func applyLogTarget(logs *logx.Service, cfg *config.Config) {
	if raw := strings.TrimSpace(cfg.Telegram.GroupLog); raw != "" {
		if chatID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
			return
		}
	}
	logs.SetTelegramTarget(0, 0)
}

// publishCommandMenu registers the command list with the platform menu.
// Team slugs are chat-local and can't go in the global menu.
func (a *App) publishCommandMenu(ctx context.Context) {
	mu, ok := a.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	cmds := []kit.BotCommand{
		{Command: strings.ToLower(a.mentions.Command()), Description: "mention everyone on the roster"},
		{Command: "teams", Description: "list this chat's teams"},
		{Command: "team_new", Description: "create a team (admin)"},
		{Command: "team_rename", Description: "rename a team (admin)"},
		{Command: "team_del", Description: "delete a team (admin)"},
		{Command: "team_add", Description: "add the replied-to user to a team (admin)"},
		{Command: "team_rm", Description: "remove the replied-to user from a team (admin)"},
		{Command: "tagall_admins", Description: "restrict mentions to admins: on|off (admin)"},
		{Command: "tagall_help", Description: "how the mention bot works"},
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mu.UpdateMenuCommands(callCtx, cmds); err != nil {
		a.log.Warn("command menu update failed", logx.Err(err))
	}
}
