// Package broadcaster fans change and status events out to live subscribers,
// each with its own bounded queue and optional watcher filter.
package broadcaster

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/filesentry/filesentry/pkg/logger"
	"github.com/filesentry/filesentry/pkg/types"
)

// DefaultQueueSize bounds a subscriber's outbound queue when the server
// configuration does not override it
const DefaultQueueSize = 100

// Subscriber is one live consumer of broadcast events. The transport drains
// Messages and calls Close when its connection goes away.
type Subscriber struct {
	id       string
	filter   map[string]struct{}
	created  time.Time
	messages chan types.Message
	quit     chan struct{}
	quitOnce sync.Once

	dropped      atomic.Uint64
	lastDelivery atomic.Int64
}

// ID returns the subscriber's client identifier
func (s *Subscriber) ID() string { return s.id }

// CreatedAt returns when the subscription was registered
func (s *Subscriber) CreatedAt() time.Time { return s.created }

// Messages returns the subscriber's delivery channel. Closed on unsubscribe.
func (s *Subscriber) Messages() <-chan types.Message { return s.messages }

// Dropped returns how many messages were discarded due to queue overflow
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// LastDelivery returns the time of the last successful enqueue, or the zero
// time when nothing has been delivered yet
func (s *Subscriber) LastDelivery() time.Time {
	ns := s.lastDelivery.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Close marks the subscriber abandoned by its transport. The next heartbeat
// reaps it. Safe to call multiple times.
func (s *Subscriber) Close() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Subscriber) abandoned() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// wants reports whether the subscriber's filter snapshot covers a watcher.
// An empty filter covers every watcher, including ones created later.
func (s *Subscriber) wants(watcherID string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[watcherID]
	return ok
}

// Broadcaster owns the subscriber set and delivers events to it. A slow or
// broken subscriber never blocks delivery to the others.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[string]*Subscriber
	queueSize int
	closed    bool
	logger    logger.Logger
}

// New creates a broadcaster with the given per-subscriber queue bound
func New(queueSize int, log logger.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		subs:      make(map[string]*Subscriber),
		queueSize: queueSize,
		logger:    log,
	}
}

// Subscribe registers a new subscriber, optionally filtered to a snapshot of
// watcher identifiers. A generated client id is assigned when none is given.
// Subscribing a client id that is already registered replaces the previous
// subscription.
func (b *Broadcaster) Subscribe(clientID string, watcherIDs []string) *Subscriber {
	if clientID == "" {
		clientID = uuid.New().String()
	}

	sub := &Subscriber{
		id:       clientID,
		created:  time.Now(),
		messages: make(chan types.Message, b.queueSize),
		quit:     make(chan struct{}),
	}
	if len(watcherIDs) > 0 {
		sub.filter = make(map[string]struct{}, len(watcherIDs))
		for _, id := range watcherIDs {
			sub.filter[id] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.messages)
		return sub
	}
	if prev, ok := b.subs[clientID]; ok {
		prev.Close()
		close(prev.messages)
	}
	b.subs[clientID] = sub
	b.mu.Unlock()

	b.logger.Info("Subscriber added",
		logger.WithField("client_id", clientID),
		logger.WithField("watchers", watcherIDs))
	return sub
}

// Unsubscribe removes a subscriber and closes its delivery channel.
// Idempotent.
func (b *Broadcaster) Unsubscribe(clientID string) {
	b.mu.Lock()
	sub, ok := b.subs[clientID]
	if ok {
		delete(b.subs, clientID)
		sub.Close()
		close(sub.messages)
	}
	b.mu.Unlock()

	if ok {
		b.logger.Info("Subscriber removed", logger.WithField("client_id", clientID))
	}
}

// PublishChange delivers a file change event to every matching subscriber
func (b *Broadcaster) PublishChange(ev types.ChangeEvent) {
	b.publish(types.NewFileChangeMessage(ev), ev.WatcherID)
}

// PublishStatus delivers a watcher lifecycle event to every matching
// subscriber
func (b *Broadcaster) PublishStatus(ev types.StatusEvent) {
	b.publish(types.NewStatusMessage(ev), ev.WatcherID)
}

// Heartbeat sends a keep-alive to every subscriber regardless of filter and
// reaps subscribers abandoned by their transport.
func (b *Broadcaster) Heartbeat() {
	msg := types.NewHeartbeatMessage(time.Now())

	var dead []string
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for id, sub := range b.subs {
		if sub.abandoned() {
			dead = append(dead, id)
			continue
		}
		b.offer(sub, msg)
	}
	b.mu.RUnlock()

	for _, id := range dead {
		b.logger.Debug("Reaping dead subscriber", logger.WithField("client_id", id))
		b.Unsubscribe(id)
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the broadcaster down and closes every subscriber channel
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		sub.Close()
		close(sub.messages)
	}
	b.subs = make(map[string]*Subscriber)
}

// publish is fire-and-forget per subscriber: delivery to one subscriber
// never waits on another.
func (b *Broadcaster) publish(msg types.Message, watcherID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.abandoned() || !sub.wants(watcherID) {
			continue
		}
		b.offer(sub, msg)
	}
}

// offer enqueues without blocking. On overflow the oldest queued message is
// discarded in favor of the new one and the drop counter is incremented.
// Callers hold at least a read lock, so the channel cannot be closed under us.
func (b *Broadcaster) offer(sub *Subscriber, msg types.Message) {
	select {
	case sub.messages <- msg:
		sub.lastDelivery.Store(msg.Timestamp.UnixNano())
		return
	default:
	}

	// Queue full: drop the oldest and retry once
	select {
	case <-sub.messages:
		sub.dropped.Add(1)
	default:
	}

	select {
	case sub.messages <- msg:
		sub.lastDelivery.Store(msg.Timestamp.UnixNano())
	default:
		sub.dropped.Add(1)
		b.logger.Warn("Subscriber queue full, message dropped",
			logger.WithField("client_id", sub.id),
			logger.WithField("dropped", sub.Dropped()))
	}
}
