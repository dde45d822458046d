// Per-table write broadcast.
// See docs/ARCHITECTURE.md § Change Notifier & Subscriptions.
package sqlite

import "sync"

// notifier maintains one broadcast stream per table, created lazily.
// Signal channels are buffered with capacity one and sends never block:
// back-to-back writes coalesce into a single pending signal, which is all a
// subscriber needs to know to re-fetch.
type notifier struct {
	mu      sync.Mutex
	streams map[string]map[uint64]chan struct{}
	nextID  uint64
}

func newNotifier() *notifier {
	return &notifier{streams: make(map[string]map[uint64]chan struct{})}
}

// subscribe registers a listener for a table and returns its signal channel
// plus an unsubscribe function. The channel is live from the moment subscribe
// returns: any notify after that point is observable, which is what makes the
// subscribe-before-fetch setup rule race-free.
func (n *notifier) subscribe(table string) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	stream, ok := n.streams[table]
	if !ok {
		stream = make(map[uint64]chan struct{})
		n.streams[table] = stream
	}

	id := n.nextID
	n.nextID++
	ch := make(chan struct{}, 1)
	stream[id] = ch

	unsubscribe := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.streams[table], id)
	}
	return ch, unsubscribe
}

// notify fans a write signal out to every current subscriber of the table.
func (n *notifier) notify(table string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.streams[table] {
		select {
		case ch <- struct{}{}:
		default: // a signal is already pending; coalesce
		}
	}
}
