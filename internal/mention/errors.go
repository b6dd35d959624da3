package mention

import (
	"errors"
	"fmt"
	"time"
)

// Usage and permission conditions surfaced to the invoking chat.
var (
	// ErrNoTarget: the invocation is neither a reply nor carries content of
	// its own, so there is no message to anchor mentions to.
	ErrNoTarget = errors.New("no target message to anchor mentions")
	// ErrGroupsOnly: invoked outside a multi-user group chat.
	ErrGroupsOnly = errors.New("mentions work in group chats only")
	// ErrNotAdmin: chat restricts mentions to admins and the invoker isn't one.
	ErrNotAdmin = errors.New("mentions are restricted to admins in this chat")
	// ErrEmptyRoster: no members observed in this chat yet.
	ErrEmptyRoster = errors.New("no members collected yet")
)

// EmptyTeamError: the named team has no members.
type EmptyTeamError struct {
	Slug string
}

func (e *EmptyTeamError) Error() string {
	return fmt.Sprintf("team %q is empty", e.Slug)
}

// CooldownError rejects an invocation inside the cooldown window.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active: %ds remaining", e.RemainingSeconds())
}

// RemainingSeconds reports the remaining wait in whole seconds (ceiling).
func (e *CooldownError) RemainingSeconds() int {
	return int((e.Remaining + time.Second - 1) / time.Second)
}
