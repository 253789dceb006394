package eventbridge

import (
	"fmt"
	"strings"
	"sync"

	"github.com/KaioH3/negotiation-agent/internal/negotiation"
)

const (
	defaultSubscriberCapacity = 100
	defaultBacklogLimit       = 200
	defaultDedupeWindow       = 1024
	defaultMaxRuns            = 32
)

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router delivers run events to run-specific subscribers with buffering,
// deduplication, and bounded channel semantics. Events published before
// anyone subscribes to a run are kept in a bounded backlog so late watchers
// still see the run from the start.
type Router struct {
	mu           sync.RWMutex
	subscribers  map[string]map[*subscriber]struct{}
	backlog      map[string][]negotiation.Event
	backlogOrder []string
	recentIDs    map[string]struct{}
	recentOrder  []string
	channelSize  int
	backlogLimit int
	dedupeWindow int
	maxRuns      int
	logger       Logger
}

// Subscription represents an active run subscription.
type Subscription struct {
	Events <-chan negotiation.Event
	cancel func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router with sane defaults.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subscribers:  map[string]map[*subscriber]struct{}{},
		backlog:      map[string][]negotiation.Event{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
		maxRuns:      defaultMaxRuns,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouterWithLogger injects a logger for drop/diagnostic messages.
func RouterWithLogger(logger Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// RouterWithSubscriberCapacity overrides the buffered channel size per subscriber.
func RouterWithSubscriberCapacity(cap int) RouterOption {
	return func(r *Router) {
		if cap > 0 {
			r.channelSize = cap
		}
	}
}

// RouterWithBacklogLimit overrides the per-run backlog size for pre-subscription buffering.
func RouterWithBacklogLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// RouterWithMaxRuns bounds how many runs keep a backlog at once.
func RouterWithMaxRuns(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.maxRuns = n
		}
	}
}

// Subscribe registers for the events of one run.
func (r *Router) Subscribe(runID string) Subscription {
	run := normalizeRun(runID)
	sub := newSubscriber(r.channelSize, r.logger)
	var backlog []negotiation.Event
	r.mu.Lock()
	if r.subscribers[run] == nil {
		r.subscribers[run] = map[*subscriber]struct{}{}
	}
	r.subscribers[run][sub] = struct{}{}
	if existing := r.backlog[run]; len(existing) > 0 {
		backlog = append(backlog, existing...)
		r.dropBacklog(run)
	}
	r.mu.Unlock()
	for _, event := range backlog {
		sub.deliver(event)
	}
	return Subscription{
		Events: sub.channel(),
		cancel: func() {
			r.removeSubscriber(run, sub)
		},
	}
}

// Emit satisfies negotiation.Emitter.
func (r *Router) Emit(event negotiation.Event) {
	r.Route(event)
}

// Route delivers the event to subscribers or buffers it when no subscriber exists.
func (r *Router) Route(event negotiation.Event) {
	run := normalizeRun(event.RunID)
	if run == "" {
		return
	}
	if r.isDuplicate(fmt.Sprintf("%s/%d", run, event.Seq)) {
		return
	}
	r.mu.RLock()
	subs := r.snapshotSubscribers(run)
	r.mu.RUnlock()
	if len(subs) == 0 {
		r.bufferEvent(run, event)
		return
	}
	for _, sub := range subs {
		sub.deliver(event)
	}
}

func (r *Router) snapshotSubscribers(run string) []*subscriber {
	live := r.subscribers[run]
	if len(live) == 0 {
		return nil
	}
	items := make([]*subscriber, 0, len(live))
	for sub := range live {
		items = append(items, sub)
	}
	return items
}

func (r *Router) removeSubscriber(run string, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs := r.subscribers[run]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.subscribers, run)
		}
	}
	sub.close()
}

func (r *Router) bufferEvent(run string, event negotiation.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue, known := r.backlog[run]
	if !known {
		if len(r.backlogOrder) >= r.maxRuns {
			oldest := r.backlogOrder[0]
			r.dropBacklog(oldest)
			if r.logger != nil {
				r.logger.Printf("eventbridge: evicted backlog for run %s (limit %d runs)", oldest, r.maxRuns)
			}
		}
		r.backlogOrder = append(r.backlogOrder, run)
	}
	if len(queue) >= r.backlogLimit {
		queue = queue[1:]
		if r.logger != nil {
			r.logger.Printf("eventbridge: backlog drop for %s (limit %d)", run, r.backlogLimit)
		}
	}
	r.backlog[run] = append(queue, event)
}

// dropBacklog must be called with r.mu held.
func (r *Router) dropBacklog(run string) {
	delete(r.backlog, run)
	for i, id := range r.backlogOrder {
		if id == run {
			r.backlogOrder = append(r.backlogOrder[:i], r.backlogOrder[i+1:]...)
			break
		}
	}
}

func (r *Router) isDuplicate(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recentIDs[key]; ok {
		return true
	}
	r.recentIDs[key] = struct{}{}
	r.recentOrder = append(r.recentOrder, key)
	if len(r.recentOrder) > r.dedupeWindow {
		oldest := r.recentOrder[0]
		r.recentOrder = r.recentOrder[1:]
		delete(r.recentIDs, oldest)
	}
	return false
}

func normalizeRun(runID string) string {
	return strings.TrimSpace(runID)
}

type subscriber struct {
	ch       chan negotiation.Event
	done     chan struct{}
	doneOnce sync.Once
	blocking bool
	logger   Logger
	closed   bool
	closeMu  sync.Mutex
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{
		ch:     make(chan negotiation.Event, capacity),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// newBlockingSubscriber never drops: deliver waits for the reader until the
// subscriber is closed.
func newBlockingSubscriber(capacity int, logger Logger) *subscriber {
	sub := newSubscriber(capacity, logger)
	sub.blocking = true
	return sub
}

func (s *subscriber) channel() <-chan negotiation.Event {
	return s.ch
}

// deliver keeps queued events in emission order. A lossy subscriber that is
// full drops the incoming event unless it is critical; a critical event
// instead evicts one queued non-critical event.
func (s *subscriber) deliver(event negotiation.Event) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	if s.blocking {
		select {
		case s.ch <- event:
		case <-s.done:
			s.logDrop(event, "subscriber closed")
		}
		return
	}
	select {
	case s.ch <- event:
		return
	default:
	}
	if !isCriticalEvent(event.Type) {
		s.logDrop(event, "queue overflow:incoming")
		return
	}
	queued := s.drain()
	if len(queued) == cap(s.ch) {
		victim := evictionIndex(queued)
		s.logDrop(queued[victim], "queue overflow")
		queued = append(queued[:victim], queued[victim+1:]...)
	}
	for _, ev := range queued {
		s.ch <- ev
	}
	s.ch <- event
}

// drain must be called with closeMu held. The reader may still consume
// concurrently, so the result can be shorter than the capacity.
func (s *subscriber) drain() []negotiation.Event {
	queued := make([]negotiation.Event, 0, cap(s.ch))
	for {
		select {
		case ev := <-s.ch:
			queued = append(queued, ev)
		default:
			return queued
		}
	}
}

func (s *subscriber) logDrop(event negotiation.Event, reason string) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("eventbridge: dropped %s (%s)", event.Type, reason)
}

func (s *subscriber) close() {
	s.doneOnce.Do(func() { close(s.done) })
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// evictionIndex picks the queued event to give up for a critical one: the
// oldest quote_parsed, else the oldest non-critical, else the oldest.
func evictionIndex(queued []negotiation.Event) int {
	for i, ev := range queued {
		if isPreferredDrop(ev.Type) {
			return i
		}
	}
	for i, ev := range queued {
		if !isCriticalEvent(ev.Type) {
			return i
		}
	}
	return 0
}

// isCriticalEvent marks the events an observer cannot do without: the
// terminal markers and the decision.
func isCriticalEvent(kind negotiation.EventType) bool {
	switch kind {
	case negotiation.EventDone, negotiation.EventError, negotiation.EventDecision, negotiation.EventScores:
		return true
	}
	return false
}

// isPreferredDrop marks chatty events whose content is repeated elsewhere.
func isPreferredDrop(kind negotiation.EventType) bool {
	return kind == negotiation.EventQuoteParsed
}
