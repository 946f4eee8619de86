package production

import "sync"

// Broadcaster fans out change signals to N listeners. Signals coalesce: a
// listener that has not drained its channel yet misses nothing, because the
// next read of the store returns the latest state anyway.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives a value on C after every change.
type Listener struct {
	C chan struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[*Listener]struct{})}
}

func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{C: make(chan struct{}, 1)}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
}

func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish never blocks.
func (b *Broadcaster) Publish() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- struct{}{}:
		default:
		}
	}
}
