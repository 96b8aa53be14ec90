// Package events fans job lifecycle events out to per-job subscribers.
// Sends never block: progress and chunk events are dropped when a
// subscriber falls behind, and a subscriber whose buffer is full at
// terminal time is evicted by closing its channel.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"artificer/internal/logging"
	"artificer/internal/types"
)

const (
	defaultSubscriberBuffer = 64
	defaultHistoryLimit     = 256

	// terminalGrace is how long a full subscriber has to drain before a
	// terminal event gives up on it.
	terminalGrace = 250 * time.Millisecond
)

type Options struct {
	SubscriberBuffer int // per-subscriber channel capacity, default 64
	HistoryLimit     int // replayable events kept per job, default 256
}

// topic holds one job's subscribers plus its replayable history. Chunk
// events are delivered live but never recorded; a token stream would
// swamp the history.
type topic struct {
	subs     []chan *types.Event
	history  []*types.Event
	terminal bool
}

// Bus is safe for concurrent use. All channel operations happen under
// the bus lock; sends are non-blocking, so holding it is cheap.
type Bus struct {
	subBuffer    int
	historyLimit int

	mu     sync.Mutex
	topics map[string]*topic
	closed bool

	published int64
	dropped   int64
	evicted   int64
}

func NewBus(opts Options) *Bus {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	return &Bus{
		subBuffer:    opts.SubscriberBuffer,
		historyLimit: opts.HistoryLimit,
		topics:       make(map[string]*topic),
	}
}

// =============================================================================
// PUBLISH
// =============================================================================

// Publish delivers the event to current subscribers of its job. The
// first terminal event seals the topic; anything published after it is
// discarded.
func (b *Bus) Publish(ev *types.Event) {
	if ev == nil || ev.JobID == "" {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	tp := b.topicLocked(ev.JobID)
	if tp.terminal {
		if ev.Kind.Terminal() {
			logging.Events("duplicate terminal event for job %s discarded (kind=%s)", ev.JobID, ev.Kind)
		}
		return
	}

	atomic.AddInt64(&b.published, 1)

	if ev.Kind != types.EventChunk {
		tp.history = append(tp.history, ev)
		if len(tp.history) > b.historyLimit {
			tp.history = tp.history[len(tp.history)-b.historyLimit:]
		}
	}

	terminal := ev.Kind.Terminal()
	for _, ch := range tp.subs {
		select {
		case ch <- ev:
			if terminal {
				close(ch)
			}
		default:
			if terminal {
				// Terminals are never dropped outright: the subscriber
				// gets a grace window to drain before eviction. The
				// channel is ours alone once subs is cleared below.
				go b.deliverTerminal(ev.JobID, ch, ev)
			} else {
				atomic.AddInt64(&b.dropped, 1)
			}
		}
	}
	if terminal {
		tp.terminal = true
		tp.subs = nil
		logging.EventsDebug("topic %s sealed with %s", ev.JobID, ev.Kind)
	}
}

// =============================================================================
// SUBSCRIBE
// =============================================================================

// Subscribe attaches to a job's stream. Recorded history is replayed
// into the returned channel first; if the job already finished, the
// channel is closed right after the replay. The cancel func is safe to
// call more than once.
//
// Subscribing to a job id with no published events creates the topic,
// which lives until ReleaseTopic or Close; that lets a subscriber
// attach before the worker emits its first event. Callers must resolve
// the id against the job table first so unknown ids never reach the
// bus.
func (b *Bus) Subscribe(jobID string) (<-chan *types.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *types.Event, b.subBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	tp := b.topicLocked(jobID)

	replay := tp.history
	if len(replay) > b.subBuffer {
		replay = replay[len(replay)-b.subBuffer:]
	}
	for _, ev := range replay {
		ch <- ev
	}

	if tp.terminal {
		close(ch)
		return ch, func() {}
	}

	tp.subs = append(tp.subs, ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.unsubscribe(jobID, ch) })
	}
	return ch, cancel
}

func (b *Bus) unsubscribe(jobID string, ch chan *types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp, ok := b.topics[jobID]
	if !ok {
		return
	}
	for i, sub := range tp.subs {
		if sub == ch {
			tp.subs = append(tp.subs[:i], tp.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// ReleaseTopic drops a job's history and closes any remaining
// subscribers. Called when the job leaves the job table.
func (b *Bus) ReleaseTopic(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp, ok := b.topics[jobID]
	if !ok {
		return
	}
	for _, ch := range tp.subs {
		close(ch)
	}
	delete(b.topics, jobID)
	logging.EventsDebug("released topic %s", jobID)
}

// Close seals the bus and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, tp := range b.topics {
		for _, ch := range tp.subs {
			close(ch)
		}
		delete(b.topics, id)
	}
}

// deliverTerminal retries a terminal send against a full subscriber for
// a short window, then gives up and closes the channel either way.
func (b *Bus) deliverTerminal(jobID string, ch chan *types.Event, ev *types.Event) {
	timer := time.NewTimer(terminalGrace)
	defer timer.Stop()
	select {
	case ch <- ev:
	case <-timer.C:
		atomic.AddInt64(&b.evicted, 1)
		logging.Events("evicting slow subscriber of job %s at terminal event", jobID)
	}
	close(ch)
}

func (b *Bus) topicLocked(jobID string) *topic {
	tp, ok := b.topics[jobID]
	if !ok {
		tp = &topic{}
		b.topics[jobID] = tp
	}
	return tp
}

// =============================================================================
// STATS
// =============================================================================

type Stats struct {
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
	Evicted     int64 `json:"evicted"`
	Topics      int   `json:"topics"`
	Subscribers int   `json:"subscribers"`
}

func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := 0
	for _, tp := range b.topics {
		subs += len(tp.subs)
	}
	return Stats{
		Published:   atomic.LoadInt64(&b.published),
		Dropped:     atomic.LoadInt64(&b.dropped),
		Evicted:     atomic.LoadInt64(&b.evicted),
		Topics:      len(b.topics),
		Subscribers: subs,
	}
}
