package negotiation

import (
	"sync"
	"time"

	"github.com/KaioH3/negotiation-agent/internal/metrics"
	"github.com/KaioH3/negotiation-agent/internal/quote"
)

// EventType names one kind of progress notification.
type EventType string

const (
	EventRFQReady       EventType = "rfq_ready"
	EventMessage        EventType = "message"
	EventQuoteParsed    EventType = "quote_parsed"
	EventReflection     EventType = "reflection"
	EventScores         EventType = "scores"
	EventDecision       EventType = "decision"
	EventAudit          EventType = "audit"
	EventSupplierFailed EventType = "supplier_failed"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Terminal reports whether no further events follow this one.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// Event is one self-contained notification. Only the fields relevant to Type
// are populated.
type Event struct {
	Type       EventType        `json:"type"`
	RunID      string           `json:"runId"`
	Seq        int64            `json:"seq"`
	Time       time.Time        `json:"time"`
	SupplierID string           `json:"supplierId,omitempty"`
	RFQ        *RFQ             `json:"rfq,omitempty"`
	Message    *Message         `json:"message,omitempty"`
	Quote      *quote.Quote     `json:"quote,omitempty"`
	Round      int              `json:"round,omitempty"`
	Final      bool             `json:"final,omitempty"`
	Content    string           `json:"content,omitempty"`
	Scores     map[string]Score `json:"scores,omitempty"`
	Winner     string           `json:"winner,omitempty"`
	Reasoning  string           `json:"reasoning,omitempty"`
	Audit      *Audit           `json:"audit,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Emitter receives the events of a run in order.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function into an Emitter.
type EmitterFunc func(Event)

// Emit executes f(ev).
func (f EmitterFunc) Emit(ev Event) {
	if f != nil {
		f(ev)
	}
}

// Recorder collects events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends ev.
func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// emitter serializes concurrent supplier tasks onto the sink and stamps each
// event with the run id, a gap-free sequence number and the time.
type emitter struct {
	mu      sync.Mutex
	runID   string
	seq     int64
	clock   func() time.Time
	sink    Emitter
	metrics *metrics.Collectors
}

func newEmitter(runID string, sink Emitter, clock func() time.Time, m *metrics.Collectors) *emitter {
	return &emitter{runID: runID, sink: sink, clock: clock, metrics: m}
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	ev.RunID = e.runID
	ev.Seq = e.seq
	ev.Time = e.clock().UTC()
	e.metrics.ObserveEvent(string(ev.Type))
	if e.sink != nil {
		e.sink.Emit(ev)
	}
}
