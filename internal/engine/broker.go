package engine

import "sync"

// subscriberBufferSize is the channel buffer for each subscriber.
// Messages are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// DefaultRetention is how many finished topics a Broker remembers.
const DefaultRetention = 1024

// Broker fans out messages published on a topic to its subscribers.
// It is safe for concurrent use.
//
// A closed topic is remembered so that a subscriber arriving after the close
// gets a closed channel. Only the most recent retain closed topics are kept;
// the oldest marker is evicted first. Callers that may subscribe later than
// that must check for completion elsewhere, as the SSE handler does with the
// stored load status.
type Broker[T any] struct {
	mu     sync.Mutex
	topics map[string]*topic[T]
	retain int
	closed []string // closed topic ids, oldest first
}

type topic[T any] struct {
	subs   map[int]chan T
	nextID int
	closed bool
}

// NewBroker creates an empty broker that remembers up to retain closed
// topics. retain <= 0 selects DefaultRetention.
func NewBroker[T any](retain int) *Broker[T] {
	if retain <= 0 {
		retain = DefaultRetention
	}
	return &Broker[T]{
		topics: make(map[string]*topic[T]),
		retain: retain,
	}
}

// Topics reports how many topics, open or closed, the broker tracks.
func (b *Broker[T]) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

// Subscribe returns a channel that receives messages for the topic and an
// unsubscribe function. If the topic is already closed the returned channel
// is closed too.
func (b *Broker[T]) Subscribe(id string) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, subscriberBufferSize)
	t, ok := b.topics[id]
	if ok && t.closed {
		close(ch)
		return ch, func() {}
	}
	if !ok {
		t = &topic[T]{subs: make(map[int]chan T)}
		b.topics[id] = t
	}

	subID := t.nextID
	t.nextID++
	t.subs[subID] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, subID)
		// Nothing was ever published or closed for an open topic with no
		// subscribers left, so forget it.
		if !t.closed && len(t.subs) == 0 && b.topics[id] == t {
			delete(b.topics, id)
		}
	}
}

// Publish sends msg to every subscriber of the topic. Messages are dropped
// for subscribers whose buffers are full or when nobody is subscribed.
func (b *Broker[T]) Publish(id string, msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[id]
	if !ok || t.closed {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Close signals that nothing more will be published on the topic. Closing a
// topic twice is a no-op.
func (b *Broker[T]) Close(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[id]
	if ok && t.closed {
		return
	}
	if !ok {
		t = &topic[T]{}
		b.topics[id] = t
	}

	t.closed = true
	for subID, ch := range t.subs {
		close(ch)
		delete(t.subs, subID)
	}
	t.subs = nil

	b.closed = append(b.closed, id)
	for len(b.closed) > b.retain {
		delete(b.topics, b.closed[0])
		b.closed = b.closed[1:]
	}
}
