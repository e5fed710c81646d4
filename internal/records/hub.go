package records

import "sync"

// Hub fans newly stored entries out to subscribers. A subscriber that falls
// behind by more than its buffer loses entries rather than blocking Append.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Entry]struct{}
	buf  int
}

func NewHub(buf int) *Hub {
	if buf <= 0 {
		buf = 16
	}
	return &Hub{subs: map[chan Entry]struct{}{}, buf: buf}
}

// Subscribe returns a channel of new entries and a func that ends the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, h.buf)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
