// Package teams implements the team management command surface: named
// sub-rosters created, renamed, filled and deleted by chat admins, plus the
// per-chat admin-only toggle and the help text.
package teams

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/filippgl/tagall-bot/internal/mention"
	"github.com/filippgl/tagall-bot/internal/storage"
	kit "github.com/filippgl/tagall-bot/internal/transport"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

// Store is the slice of the store the command handlers use.
type Store interface {
	CreateTeam(ctx context.Context, chatID int64, slug string) error
	RenameTeam(ctx context.Context, chatID int64, oldSlug, newSlug string) error
	DeleteTeam(ctx context.Context, chatID int64, slug string) error
	ListTeams(ctx context.Context, chatID int64) ([]storage.TeamInfo, error)
	AddTeamMember(ctx context.Context, chatID int64, slug string, userID int64) error
	RemoveTeamMember(ctx context.Context, chatID int64, slug string, userID int64) error
	ResolveTeamSlug(ctx context.Context, chatID int64, token string) (string, bool, error)
	FetchTeamCandidates(ctx context.Context, chatID int64, slug string, limit int) ([]storage.Member, error)
	SetAdminOnly(ctx context.Context, chatID int64, v bool) error
}

// RoleSource answers chat-membership role queries.
type RoleSource interface {
	MemberRole(ctx context.Context, chatID, userID int64) (kit.Role, error)
}

// Sender delivers command replies.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// slugPattern keeps slugs invokable as /commands.
var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

const candidateHintLimit = 10

// Service routes and executes the team management commands.
type Service struct {
	store   Store
	roles   RoleSource
	sender  Sender
	botName string
	command string
	log     logx.Logger

	// reserved holds command words a team slug may not shadow, lowercased.
	reserved map[string]struct{}
}

func New(store Store, roles RoleSource, sender Sender, botUsername, rosterCommand string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	reserved := map[string]struct{}{
		strings.ToLower(rosterCommand): {},
		"start":                        {},
		"help":                         {},
	}
	for name := range handlers {
		reserved[name] = struct{}{}
	}
	return &Service{
		store:    store,
		roles:    roles,
		sender:   sender,
		botName:  botUsername,
		command:  rosterCommand,
		log:      log,
		reserved: reserved,
	}
}

type handler func(s *Service, ctx context.Context, msg *kit.Message, args []string) string

// handlers maps command word to implementation; adminOnly is enforced in
// HandleMessage for every entry except the read-only ones.
var handlers = map[string]handler{
	"team_new":      (*Service).teamNew,
	"team_rename":   (*Service).teamRename,
	"team_del":      (*Service).teamDel,
	"team_add":      (*Service).teamAdd,
	"team_rm":       (*Service).teamRm,
	"teams":         (*Service).teamList,
	"tagall_admins": (*Service).adminsToggle,
	"tagall_help":   (*Service).help,
}

var readOnly = map[string]bool{
	"teams":       true,
	"tagall_help": true,
}

// HandleMessage executes the message's team command, if it carries one, and
// reports whether it did.
func (s *Service) HandleMessage(ctx context.Context, msg *kit.Message) bool {
	cmd, args, ok := s.parseCommand(msg.Text)
	if !ok {
		return false
	}
	h, ok := handlers[cmd]
	if !ok {
		return false
	}

	if !msg.ChatType.IsGroup() {
		s.reply(ctx, msg, "Team commands work in group chats only.")
		return true
	}
	if !readOnly[cmd] {
		role, err := s.roles.MemberRole(ctx, msg.ChatID, msg.From.ID)
		if err != nil || !role.IsAdmin() {
			if err != nil {
				s.log.Debug("role lookup failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
			}
			s.reply(ctx, msg, "Only chat admins can manage teams.")
			return true
		}
	}

	s.reply(ctx, msg, h(s, ctx, msg, args))
	return true
}

// parseCommand expects the command at the start of the message, the usual
// bot-command shape. An @suffix addressed to another bot is not ours.
func (s *Service) parseCommand(text string) (cmd string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	word := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(word, '@'); at >= 0 {
		if !strings.EqualFold(word[at+1:], s.botName) {
			return "", nil, false
		}
		word = word[:at]
	}
	return strings.ToLower(word), fields[1:], true
}

func (s *Service) teamNew(ctx context.Context, msg *kit.Message, args []string) string {
	if len(args) != 1 {
		return "Usage: /team_new <name>"
	}
	slug := args[0]
	if bad := s.checkSlug(slug); bad != "" {
		return bad
	}
	err := s.store.CreateTeam(ctx, msg.ChatID, slug)
	switch {
	case errors.Is(err, storage.ErrTeamExists):
		return fmt.Sprintf("A team named %s already exists (names are case-insensitive).", slug)
	case err != nil:
		return s.internalError(ctx, msg, "team create failed", err)
	}
	return fmt.Sprintf("Team %s created. Mention it with /%s, fill it with /team_add %s (as a reply).", slug, strings.ToLower(slug), slug)
}

func (s *Service) teamRename(ctx context.Context, msg *kit.Message, args []string) string {
	if len(args) != 2 {
		return "Usage: /team_rename <old> <new>"
	}
	oldSlug, newSlug := args[0], args[1]
	if bad := s.checkSlug(newSlug); bad != "" {
		return bad
	}
	err := s.store.RenameTeam(ctx, msg.ChatID, oldSlug, newSlug)
	switch {
	case errors.Is(err, storage.ErrTeamNotFound):
		return fmt.Sprintf("No team named %s here.", oldSlug)
	case errors.Is(err, storage.ErrTeamExists):
		return fmt.Sprintf("A team named %s already exists (names are case-insensitive).", newSlug)
	case err != nil:
		return s.internalError(ctx, msg, "team rename failed", err)
	}
	return fmt.Sprintf("Team %s is now %s.", oldSlug, newSlug)
}

func (s *Service) teamDel(ctx context.Context, msg *kit.Message, args []string) string {
	if len(args) != 1 {
		return "Usage: /team_del <name>"
	}
	err := s.store.DeleteTeam(ctx, msg.ChatID, args[0])
	switch {
	case errors.Is(err, storage.ErrTeamNotFound):
		return fmt.Sprintf("No team named %s here.", args[0])
	case err != nil:
		return s.internalError(ctx, msg, "team delete failed", err)
	}
	return fmt.Sprintf("Team %s deleted.", args[0])
}

func (s *Service) teamAdd(ctx context.Context, msg *kit.Message, args []string) string {
	if len(args) != 1 {
		return "Usage: reply to someone's message with /team_add <name>"
	}
	slug := args[0]
	if msg.ReplyFrom == nil {
		return s.candidateHint(ctx, msg.ChatID, slug)
	}
	if msg.ReplyFrom.IsBot {
		return "Bots don't get mentioned; pick a person."
	}
	err := s.store.AddTeamMember(ctx, msg.ChatID, slug, msg.ReplyFrom.ID)
	switch {
	case errors.Is(err, storage.ErrTeamNotFound):
		return fmt.Sprintf("No team named %s here. Create it with /team_new %s.", slug, slug)
	case errors.Is(err, storage.ErrNotOnRoster):
		return fmt.Sprintf("I haven't seen %s write here yet, so I can't add them.", replyName(msg))
	case err != nil:
		return s.internalError(ctx, msg, "team add failed", err)
	}
	return fmt.Sprintf("Added %s to %s.", replyName(msg), slug)
}

func (s *Service) teamRm(ctx context.Context, msg *kit.Message, args []string) string {
	if len(args) != 1 || msg.ReplyFrom == nil {
		return "Usage: reply to someone's message with /team_rm <name>"
	}
	slug := args[0]
	err := s.store.RemoveTeamMember(ctx, msg.ChatID, slug, msg.ReplyFrom.ID)
	switch {
	case errors.Is(err, storage.ErrTeamNotFound):
		return fmt.Sprintf("No team named %s here.", slug)
	case err != nil:
		return s.internalError(ctx, msg, "team remove failed", err)
	}
	return fmt.Sprintf("Removed %s from %s.", replyName(msg), slug)
}

func (s *Service) teamList(ctx context.Context, msg *kit.Message, _ []string) string {
	teams, err := s.store.ListTeams(ctx, msg.ChatID)
	if err != nil {
		return s.internalError(ctx, msg, "team list failed", err)
	}
	if len(teams) == 0 {
		return "No teams yet. Admins can create one with /team_new <name>."
	}
	lines := make([]string, 0, len(teams)+1)
	lines = append(lines, "Teams in this chat:")
	for _, t := range teams {
		lines = append(lines, fmt.Sprintf("• /%s — %d member(s)", strings.ToLower(t.Slug), t.Members))
	}
	return strings.Join(lines, "\n")
}

func (s *Service) adminsToggle(ctx context.Context, msg *kit.Message, args []string) string {
	if len(args) != 1 {
		return "Usage: /tagall_admins on|off"
	}
	var v bool
	switch strings.ToLower(args[0]) {
	case "on":
		v = true
	case "off":
		v = false
	default:
		return "Usage: /tagall_admins on|off"
	}
	if err := s.store.SetAdminOnly(ctx, msg.ChatID, v); err != nil {
		return s.internalError(ctx, msg, "setting update failed", err)
	}
	if v {
		return "Mentions are now restricted to admins."
	}
	return "Mentions are now open to all members."
}

func (s *Service) help(_ context.Context, _ *kit.Message, _ []string) string {
	return strings.Join([]string{
		fmt.Sprintf("Mention everyone I've seen in this chat by replying to a message with /%s,", s.command),
		"or by attaching text or media to the command itself.",
		"",
		"Teams (admin-managed sub-rosters, mentioned via /<name>):",
		"/team_new <name> — create a team",
		"/team_rename <old> <new> — rename a team",
		"/team_del <name> — delete a team",
		"/team_add <name> — add the replied-to user",
		"/team_rm <name> — remove the replied-to user",
		"/teams — list teams",
		"",
		"/tagall_admins on|off — restrict mentions to admins (default on)",
	}, "\n")
}

// candidateHint answers a target-less /team_add with who could be added.
func (s *Service) candidateHint(ctx context.Context, chatID int64, slug string) string {
	stored, ok, err := s.store.ResolveTeamSlug(ctx, chatID, slug)
	if err != nil || !ok {
		return "Reply to someone's message with /team_add <name> to add them."
	}
	members, err := s.store.FetchTeamCandidates(ctx, chatID, stored, candidateHintLimit)
	if err != nil || len(members) == 0 {
		return "Reply to someone's message with /team_add <name> to add them."
	}
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, mention.DisplayName(m))
	}
	return fmt.Sprintf("Reply to a message from the person to add. Not yet on %s: %s.", stored, strings.Join(names, ", "))
}

func (s *Service) checkSlug(slug string) string {
	if !slugPattern.MatchString(slug) {
		return "Team names are 1-32 letters, digits or underscores."
	}
	if _, ok := s.reserved[strings.ToLower(slug)]; ok {
		return fmt.Sprintf("%s is a reserved command name; pick another.", slug)
	}
	return ""
}

func (s *Service) internalError(_ context.Context, msg *kit.Message, what string, err error) string {
	s.log.Error(what, logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	return "Something went wrong. Please try again later."
}

func (s *Service) reply(ctx context.Context, msg *kit.Message, text string) {
	to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	_, err := s.sender.SendText(ctx, to, text, &kit.SendOptions{
		ReplyTo:           msg.ID,
		AllowMissingReply: true,
		DisablePreview:    true,
	})
	if err != nil {
		s.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}

func replyName(msg *kit.Message) string {
	u := msg.ReplyFrom
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("id:%d", u.ID)
}

