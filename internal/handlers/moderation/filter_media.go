package moderation

import (
	"context"

	"github.com/iamwavecut/ngguard/internal/db"
)

const FilterMedia = "media"

type mediaLockStore interface {
	GetMediaLock(ctx context.Context, chatID int64, mediaType db.MediaType) (*db.MediaLock, error)
}

// MediaFilter applies per-chat locks on message kinds, including links.
type MediaFilter struct {
	store mediaLockStore
}

func NewMediaFilter(store mediaLockStore) *MediaFilter {
	return &MediaFilter{store: store}
}

func (f *MediaFilter) Name() string { return FilterMedia }

func (f *MediaFilter) Check(ctx context.Context, p Payload) (*Verdict, error) {
	kinds := make([]db.MediaType, 0, 2)
	if p.Media != "" {
		kinds = append(kinds, p.Media)
	}
	if ContainsURL(p.Text) {
		kinds = append(kinds, db.MediaURL)
	}
	for _, kind := range kinds {
		lock, err := f.store.GetMediaLock(ctx, p.ChatID, kind)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			return &Verdict{Filter: FilterMedia, Rule: string(kind), Action: lock.Action}, nil
		}
	}
	return nil, nil
}
