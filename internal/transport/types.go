package transport

import (
	"context"
	"fmt"
	"time"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateJoin     UpdateKind = "join"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Join     *Join
	Callback *Callback
}

// Message is an adapter-neutral view of an inbound chat message.
// Text carries the caption for media messages.
type Message struct {
	ID        int
	ChatID    int64
	ChatType  ChatType
	ThreadID  int // telegram forum topic thread id (0 if none)
	From      User
	Text      string
	HasMedia  bool  // photo/video/document/audio/voice/video note/sticker
	ReplyToID int   // id of the replied-to message (0 if not a reply)
	ReplyFrom *User // author of the replied-to message (nil if not a reply)
}

// Join reports users added to a chat (including the join service message).
type Join struct {
	ChatID   int64
	ChatType ChatType
	Users    []User
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

// User is the sender identity attached to updates.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	IsBot     bool
}

type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSuperGroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// IsGroup reports whether the chat is a multi-user group variant.
func (t ChatType) IsGroup() bool {
	return t == ChatGroup || t == ChatSuperGroup
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// ParseModeHTML asks the platform to interpret inline HTML-like markup
// (anchor mentions). Any user-controlled text must be escaped first.
const ParseModeHTML = "HTML"

type SendOptions struct {
	ParseMode      string
	DisablePreview bool

	// ReplyTo anchors the message as a reply. Zero means no anchor.
	ReplyTo int
	// AllowMissingReply sends the message anyway when the reply target
	// no longer exists (deleted message).
	AllowMissingReply bool
}

// Role is the chat-membership role of a user as reported by the platform.
type Role string

const (
	RoleCreator       Role = "creator"
	RoleAdministrator Role = "administrator"
	RoleMember        Role = "member"
	RoleRestricted    Role = "restricted"
	RoleLeft          Role = "left"
	RoleKicked        Role = "kicked"
)

// IsAdmin reports whether the role can run admin-restricted commands.
func (r Role) IsAdmin() bool {
	return r == RoleCreator || r == RoleAdministrator
}

// ThrottledError is returned by SendText when the platform asks the caller
// to back off. RetryAfter is the wait the platform advertised.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("transport throttled: retry after %s", e.RetryAfter)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// SendText delivers text to a chat. A rate-limit response is surfaced
	// as *ThrottledError; any other failure is a generic transport error.
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	// MemberRole queries the chat-membership role of a single user.
	MemberRole(ctx context.Context, chatID, userID int64) (Role, error)
	// Administrators lists the user ids of the chat's administrators
	// (owner included).
	Administrators(ctx context.Context, chatID int64) ([]int64, error)
	// ChatTitle resolves the display title of a chat.
	ChatTitle(ctx context.Context, chatID int64) (string, error)

	// BotUsername returns the bot's own @username (without the @).
	BotUsername() string
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
