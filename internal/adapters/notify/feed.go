package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

const defaultFeedSize = 100

// Feed keeps the latest notifications in a ring buffer and logs each one.
type Feed struct {
	mu    sync.Mutex
	items []domain.Notification
	next  int
	full  bool
	log   zerolog.Logger
}

func NewFeed(size int, log zerolog.Logger) *Feed {
	if size <= 0 {
		size = defaultFeedSize
	}
	return &Feed{items: make([]domain.Notification, size), log: log}
}

func (f *Feed) Notify(_ context.Context, n domain.Notification) {
	f.mu.Lock()
	f.items[f.next] = n
	f.next = (f.next + 1) % len(f.items)
	if f.next == 0 {
		f.full = true
	}
	f.mu.Unlock()

	event := f.log.Info()
	switch n.Level {
	case domain.NotifyError, domain.NotifyWarning:
		event = f.log.Warn()
	}
	event.Str("level_name", string(n.Level)).Str("title", n.Title).Msg(n.Message)
}

// Recent returns up to limit notifications, newest first. A non-positive
// limit returns everything retained.
func (f *Feed) Recent(limit int) []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := f.next
	if f.full {
		count = len(f.items)
	}
	if limit <= 0 || limit > count {
		limit = count
	}
	out := make([]domain.Notification, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (f.next - i + len(f.items)) % len(f.items)
		out = append(out, f.items[idx])
	}
	return out
}
