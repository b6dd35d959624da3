package mention

import (
	"context"
	"fmt"

	"github.com/filippgl/tagall-bot/internal/storage"
)

// RosterSource is the slice of the store the resolver needs.
type RosterSource interface {
	FetchRoster(ctx context.Context, chatID int64, limit int) ([]storage.Member, error)
	FetchTeamMembers(ctx context.Context, chatID int64, slug string) ([]storage.Member, error)
}

// Resolver produces the ordered recipient list for a classified request.
// Ordering is the store's arrival order (first-seen ascending); repeated
// resolution with unchanged data yields identical lists, which batch retries
// rely on.
type Resolver struct {
	store         RosterSource
	maxRecipients int
}

func NewResolver(store RosterSource, maxRecipients int) *Resolver {
	return &Resolver{store: store, maxRecipients: maxRecipients}
}

func (r *Resolver) Resolve(ctx context.Context, chatID int64, inv Invocation) ([]storage.Member, error) {
	switch inv.Kind {
	case KindRoster:
		members, err := r.store.FetchRoster(ctx, chatID, r.maxRecipients)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			return nil, ErrEmptyRoster
		}
		return members, nil
	case KindTeam:
		members, err := r.store.FetchTeamMembers(ctx, chatID, inv.Slug)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			return nil, &EmptyTeamError{Slug: inv.Slug}
		}
		return members, nil
	default:
		return nil, fmt.Errorf("unresolvable invocation kind %d", inv.Kind)
	}
}
