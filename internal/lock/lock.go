// Package lock serialises stock mutations per item and per workflow entity.
//
// Callers pass every key they need in one Lock call. Keys are de-duplicated
// and acquired in sorted order so two callers can never hold halves of each
// other's key sets.
package lock

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Locker acquires a set of keys. The returned unlock releases all of them
// and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// ItemKey is the lock key guarding an item's ledger.
func ItemKey(itemID int64) string {
	return fmt.Sprintf("item:%d", itemID)
}

// EntityKey is the lock key guarding a workflow entity.
func EntityKey(entity string, id int64) string {
	return fmt.Sprintf("%s:%d", entity, id)
}

// normalise returns the keys sorted with duplicates removed.
func normalise(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// Local is an in-process Locker for single-instance deployments. A key's
// slot is dropped once nobody holds or waits for it.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Lock blocks until every key is held or ctx is done.
func (l *Local) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalise(keys)
	held := make([]string, 0, len(keys))
	slots := make([]*slot, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-slots[i].ch
			l.unref(held[i], slots[i])
		}
		held, slots = nil, nil
	}

	for _, key := range keys {
		s := l.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, key)
			slots = append(slots, s)
		case <-ctx.Done():
			l.unref(key, s)
			release()
			return nil, fmt.Errorf("acquiring lock %s: %w", key, ctx.Err())
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// size reports how many keys currently have a slot.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
