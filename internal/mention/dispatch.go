package mention

import (
	"context"
	"errors"
	"time"

	"github.com/filippgl/tagall-bot/internal/storage"
	kit "github.com/filippgl/tagall-bot/internal/transport"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

// Sender is the slice of the transport the dispatcher needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Dispatcher delivers a resolved recipient list as a bounded sequence of
// reply messages: fixed-size batches, sent strictly in order, with
// sleep-and-retry on throttle and fixed pacing between batches.
type Dispatcher struct {
	sender     Sender
	render     Renderer
	batchSize  int
	batchDelay time.Duration
	log        logx.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(sender Sender, render Renderer, batchSize int, batchDelay time.Duration, log logx.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 20
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		sender:     sender,
		render:     render,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		log:        log,
		sleep:      sleepCtx,
	}
}

// Dispatch sends members as reply batches anchored to targetID. teamSlug is
// empty for full-roster dispatches.
//
// A throttle response sleeps for the advertised wait plus a one second margin
// and retries the SAME batch; nothing is skipped or duplicated. Any other
// send error aborts the remaining dispatch; already-sent batches stand.
func (d *Dispatcher) Dispatch(ctx context.Context, chat kit.ChatTarget, targetID int, members []storage.Member, teamSlug string) error {
	batches := partition(members, d.batchSize)
	if len(batches) == 0 {
		return nil
	}

	opt := &kit.SendOptions{
		ParseMode:         kit.ParseModeHTML,
		DisablePreview:    true,
		ReplyTo:           targetID,
		AllowMissingReply: true,
	}

	for i, batch := range batches {
		text := d.render.BatchText(batch, teamSlug)
		if err := d.sendBatch(ctx, chat, text, opt, i); err != nil {
			return err
		}
		// Pacing between batches; none after the last.
		if i < len(batches)-1 && d.batchDelay > 0 {
			if err := d.sleep(ctx, d.batchDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// sendBatch attempts one batch, sleeping and retrying in place for as long as
// the transport keeps answering with a throttle.
func (d *Dispatcher) sendBatch(ctx context.Context, chat kit.ChatTarget, text string, opt *kit.SendOptions, idx int) error {
	for {
		_, err := d.sender.SendText(ctx, chat, text, opt)
		if err == nil {
			return nil
		}
		var throttled *kit.ThrottledError
		if !errors.As(err, &throttled) {
			return err
		}
		wait := throttled.RetryAfter + time.Second
		d.log.Warn("send throttled; backing off",
			logx.Int64("chat_id", chat.ChatID),
			logx.Int("batch", idx+1),
			logx.Duration("wait", wait),
		)
		if err := d.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// partition splits members into consecutive groups of size; the last group
// may be smaller. Concatenating the groups in order reproduces the input.
func partition(members []storage.Member, size int) [][]storage.Member {
	if len(members) == 0 || size <= 0 {
		return nil
	}
	out := make([][]storage.Member, 0, (len(members)+size-1)/size)
	for start := 0; start < len(members); start += size {
		end := start + size
		if end > len(members) {
			end = len(members)
		}
		out = append(out, members[start:end])
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
