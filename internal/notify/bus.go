package notify

import "sync"

// Entity names a record type whose rows changed.
type Entity string

const (
	EntityTransactions Entity = "transactions"
	EntityRecurring    Entity = "recurring"
	EntityBudgets      Entity = "budgets"
	EntitySettings     Entity = "settings"
)

// Change describes one committed batch write.
type Change struct {
	Entity Entity
	IDs    []string
}

// Bus is an injected change-notification hub. Services publish after each
// committed batch; presentation code subscribes and re-queries. Subscribers are
// invoked synchronously on the publisher's goroutine, so handlers should be
// cheap (typically just flagging a view dirty).
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Change)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Change))}
}

// Subscribe registers fn and returns its unsubscribe function. Teardown is
// explicit; there is no package-level listener list.
func (b *Bus) Subscribe(fn func(Change)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish fans c out to current subscribers. A nil *Bus is a no-op so services
// can run without one wired (tests, one-shot CLI paths).
func (b *Bus) Publish(c Change) {
	if b == nil {
		return
	}
	b.mu.Lock()
	fns := make([]func(Change), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
