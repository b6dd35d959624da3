package mention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kit "github.com/filippgl/tagall-bot/internal/transport"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

// StoreAPI is the slice of the store the engine consumes.
type StoreAPI interface {
	TeamIndex
	SettingsSource
	RosterSource
}

// Service is the command-handling boundary of the dispatch engine. Every
// failure of an invocation is converted into a chat-visible message here;
// nothing propagates as a process-level crash.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	parser *Parser
	gate   *Gate
	res    *Resolver
	disp   *Dispatcher

	store  StoreAPI
	roles  RoleSource
	sender Sender
	bot    string
	log    logx.Logger
}

func New(cfg Config, store StoreAPI, roles RoleSource, sender Sender, botUsername string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store:  store,
		roles:  roles,
		sender: sender,
		bot:    botUsername,
		log:    log,
	}
	s.apply(cfg.withDefaults(), nil)
	return s
}

// Apply swaps engine knobs at runtime (config hot reload). The cooldown map
// survives the swap so a reload can't be used to skip a pending cooldown.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(cfg.withDefaults(), s.gate)
}

func (s *Service) apply(cfg Config, prev *Gate) {
	s.cfg = cfg
	s.parser = NewParser(cfg.Command, s.bot, s.store)
	gate := NewGate(s.roles, s.store, cfg.Cooldown, s.log)
	if prev != nil {
		prev.mu.Lock()
		last := make(map[int64]time.Time, len(prev.last))
		for chatID, at := range prev.last {
			last[chatID] = at
		}
		prev.mu.Unlock()
		gate.last = last
	}
	s.gate = gate
	s.res = NewResolver(s.store, cfg.MaxRecipients)
	s.disp = NewDispatcher(s.sender, NewRenderer(cfg.Separator), cfg.BatchSize, cfg.BatchDelay, s.log)
}

// Command returns the active full-roster command name.
func (s *Service) Command() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Command
}

// HandleMessage runs the full dispatch flow for one inbound message.
// It reports whether the message invoked dispatch (handled), so the caller
// can stop routing it elsewhere.
func (s *Service) HandleMessage(ctx context.Context, msg *kit.Message) bool {
	s.mu.Lock()
	parser, gate, res, disp := s.parser, s.gate, s.res, s.disp
	command := s.cfg.Command
	s.mu.Unlock()

	inv, err := parser.Classify(ctx, msg)
	if err != nil {
		if errors.Is(err, ErrNoTarget) {
			s.reply(ctx, msg, fmt.Sprintf("Reply to a message with /%s, or add text/media to the command itself.", invokedAs(inv, command)))
			return true
		}
		s.log.Error("command classification failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		return false
	}
	if inv.Kind == KindNone {
		return false
	}
	label := invokedAs(inv, command)
	log := s.log.With(logx.Int64("chat_id", msg.ChatID), logx.String("command", label))

	if err := gate.Admit(ctx, msg.ChatType, msg.ChatID, msg.From.ID); err != nil {
		var cooldown *CooldownError
		switch {
		case errors.Is(err, ErrGroupsOnly):
			s.reply(ctx, msg, "Mentions work in group chats only.")
		case errors.Is(err, ErrNotAdmin):
			s.reply(ctx, msg, "Only chat admins can use mentions here.")
		case errors.As(err, &cooldown):
			s.reply(ctx, msg, fmt.Sprintf("Please wait %ds before the next mention.", cooldown.RemainingSeconds()))
		default:
			log.Error("authorization failed", logx.Err(err))
			s.reply(ctx, msg, "Something went wrong. Please try again later.")
		}
		return true
	}

	members, err := res.Resolve(ctx, msg.ChatID, inv)
	if err != nil {
		var empty *EmptyTeamError
		switch {
		case errors.Is(err, ErrEmptyRoster):
			s.reply(ctx, msg, "I haven't seen anyone in this chat yet. I learn members as they write messages.")
		case errors.As(err, &empty):
			s.reply(ctx, msg, fmt.Sprintf("Team %s is empty. Add members with /team_add %s (as a reply).", empty.Slug, empty.Slug))
		default:
			log.Error("recipient resolution failed", logx.Err(err))
			s.reply(ctx, msg, "Something went wrong. Please try again later.")
		}
		return true
	}

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if err := disp.Dispatch(ctx, chat, inv.TargetID, members, inv.Slug); err != nil {
		// Already-sent batches stand; report a generic failure.
		log.Error("dispatch aborted", logx.Int("recipients", len(members)), logx.Err(err))
		s.reply(ctx, msg, "Couldn't finish sending mentions. Please try again later.")
		return true
	}
	log.Info("dispatch complete", logx.Int("recipients", len(members)))
	return true
}

func invokedAs(inv Invocation, command string) string {
	if inv.Kind == KindTeam {
		return inv.Slug
	}
	return command
}

func (s *Service) reply(ctx context.Context, msg *kit.Message, text string) {
	to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	_, err := s.sender.SendText(ctx, to, text, &kit.SendOptions{
		ReplyTo:           msg.ID,
		AllowMissingReply: true,
	})
	if err != nil {
		s.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}
