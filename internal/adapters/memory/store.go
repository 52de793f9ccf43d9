// Package memory holds the default repositories. Contents reset on restart.
package memory

import (
	"fmt"
	"sync"

	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
)

// versionedList is a most-recent-first list of entities with version
// compare-and-swap on update.
type versionedList[T any] struct {
	mu    sync.RWMutex
	items []T

	kind       string
	id         func(T) string
	version    func(T) int64
	setVersion func(*T, int64)
	clone      func(T) T
}

func (l *versionedList[T]) list() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]T, 0, len(l.items))
	for _, item := range l.items {
		out = append(out, l.clone(item))
	}
	return out
}

func (l *versionedList[T]) find(match func(T) bool) (T, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, item := range l.items {
		if match(item) {
			return l.clone(item), nil
		}
	}
	var zero T
	return zero, domain.ErrNotFound
}

func (l *versionedList[T]) get(id string) (T, error) {
	item, err := l.find(func(item T) bool { return l.id(item) == id })
	if err != nil {
		return item, fmt.Errorf("%s %s: %w", l.kind, id, err)
	}
	return item, nil
}

func (l *versionedList[T]) create(item T) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.items {
		if l.id(existing) == l.id(item) {
			var zero T
			return zero, fmt.Errorf("%s %s: %w", l.kind, l.id(item), domain.ErrAlreadyExists)
		}
	}
	stored := l.clone(item)
	l.setVersion(&stored, 1)
	l.items = append([]T{stored}, l.items...)
	return l.clone(stored), nil
}

func (l *versionedList[T]) update(item T) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.items {
		if l.id(existing) != l.id(item) {
			continue
		}
		if l.version(existing) != l.version(item) {
			var zero T
			return zero, fmt.Errorf("%s %s: %w", l.kind, l.id(item), domain.ErrVersionConflict)
		}
		stored := l.clone(item)
		l.setVersion(&stored, l.version(existing)+1)
		l.items[i] = stored
		return l.clone(stored), nil
	}
	var zero T
	return zero, fmt.Errorf("%s %s: %w", l.kind, l.id(item), domain.ErrNotFound)
}

// delete filters the id out; a missing id leaves the list unchanged.
func (l *versionedList[T]) delete(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.items[:0:0]
	for _, item := range l.items {
		if l.id(item) != id {
			kept = append(kept, item)
		}
	}
	deleted := len(kept) != len(l.items)
	l.items = kept
	return deleted
}
