// Package roster passively builds the per-chat member roster from inbound
// traffic. Every group message and every join event stamps the author into
// the store; there is no active member enumeration (the platform does not
// offer one for ordinary members).
package roster

import (
	"context"
	"time"

	"github.com/filippgl/tagall-bot/internal/storage"
	kit "github.com/filippgl/tagall-bot/internal/transport"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

// Recorder is the slice of the store the observer writes through.
type Recorder interface {
	ObserveMember(ctx context.Context, chatID int64, m storage.Member, seenAt time.Time) error
}

type Observer struct {
	store Recorder
	log   logx.Logger

	now func() time.Time
}

func NewObserver(store Recorder, log logx.Logger) *Observer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Observer{store: store, log: log, now: time.Now}
}

// ObserveMessage records the author of a group message. Failures are logged
// and swallowed; observation must never disturb message handling.
func (o *Observer) ObserveMessage(ctx context.Context, msg *kit.Message) {
	if !msg.ChatType.IsGroup() || msg.From.ID == 0 {
		return
	}
	o.record(ctx, msg.ChatID, msg.From)
}

// ObserveJoin records every user of a join event.
func (o *Observer) ObserveJoin(ctx context.Context, join *kit.Join) {
	if !join.ChatType.IsGroup() {
		return
	}
	for _, u := range join.Users {
		if u.ID == 0 {
			continue
		}
		o.record(ctx, join.ChatID, u)
	}
}

func (o *Observer) record(ctx context.Context, chatID int64, u kit.User) {
	m := storage.Member{
		UserID:    u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		IsBot:     u.IsBot,
	}
	if err := o.store.ObserveMember(ctx, chatID, m, o.now()); err != nil {
		o.log.Warn("member observation failed",
			logx.Int64("chat_id", chatID),
			logx.Int64("user_id", u.ID),
			logx.Err(err),
		)
	}
}
