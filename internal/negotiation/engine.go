package negotiation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/metrics"
	"github.com/KaioH3/negotiation-agent/internal/responder"
)

// Responders hands out the responders a run talks to. *responder.Factory
// satisfies it.
type Responders interface {
	Supplier(profile catalog.SupplierProfile) (responder.Responder, error)
	Buyer() (responder.Responder, error)
	Auditor() (responder.Responder, error)
}

// Logger is the minimal logging surface the engine writes transitions to.
type Logger interface {
	Printf(format string, args ...any)
}

// StateHook observes every state a run enters.
type StateHook func(runID string, state State)

// Engine sequences negotiation runs. It is safe to start several runs
// concurrently.
type Engine struct {
	catalog     *catalog.Catalog
	responders  Responders
	variant     Variant
	policy      FailurePolicy
	maxParallel int
	audit       bool
	logger      Logger
	metrics     *metrics.Collectors
	stateHook   StateHook
	clock       func() time.Time
	newRunID    func() string
	newID       func() string
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithVariant selects the protocol variant.
func WithVariant(v Variant) Option {
	return func(e *Engine) {
		if v != "" {
			e.variant = v
		}
	}
}

// WithFailurePolicy selects how supplier failures affect the run.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(e *Engine) {
		if p != "" {
			e.policy = p
		}
	}
}

// WithMaxParallel bounds concurrent supplier tasks per round. Zero means
// unbounded.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxParallel = n
		}
	}
}

// WithAudit enables the decision audit step.
func WithAudit(enabled bool) Option {
	return func(e *Engine) {
		e.audit = enabled
	}
}

// WithLogger routes state transitions and failures to logger.
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records run outcomes, events and quote extraction.
func WithMetrics(m *metrics.Collectors) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStateHook observes state transitions.
func WithStateHook(hook StateHook) Option {
	return func(e *Engine) {
		e.stateHook = hook
	}
}

// WithIDs overrides run and message id generation.
func WithIDs(runID, messageID func() string) Option {
	return func(e *Engine) {
		if runID != nil {
			e.newRunID = runID
		}
		if messageID != nil {
			e.newID = messageID
		}
	}
}

// New wires an engine to the catalog and responder source.
func New(cat *catalog.Catalog, responders Responders, opts ...Option) (*Engine, error) {
	if cat == nil {
		return nil, fmt.Errorf("negotiation: catalog is required")
	}
	if responders == nil {
		return nil, fmt.Errorf("negotiation: responders are required")
	}
	e := &Engine{
		catalog:    cat,
		responders: responders,
		variant:    VariantRich,
		policy:     FailRun,
		clock:      time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.newRunID == nil {
		clock := e.clock
		e.newRunID = func() string {
			return ulid.MustNew(ulid.Timestamp(clock()), rand.Reader).String()
		}
	}
	switch e.variant {
	case VariantRich, VariantLegacy:
	default:
		return nil, fmt.Errorf("negotiation: unknown protocol variant %q", e.variant)
	}
	switch e.policy {
	case FailRun, Degrade:
	default:
		return nil, fmt.Errorf("negotiation: unknown failure policy %q", e.policy)
	}
	if len(cat.Suppliers()) == 0 {
		return nil, fmt.Errorf("negotiation: catalog has no suppliers")
	}
	return e, nil
}

// Run executes one full negotiation, streaming events to sink (which may be
// nil). It returns the result on success; on failure it emits a single error
// event and returns the error without a partial result.
func (e *Engine) Run(ctx context.Context, req Request, sink Emitter) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &run{
		engine: e,
		id:     e.newRunID(),
		state:  StateInitiated,
	}
	r.events = newEmitter(r.id, sink, e.clock, e.metrics)
	e.notify(r.id, StateInitiated)

	result, err := r.execute(ctx, req)
	if err != nil {
		r.fail(err)
		e.metrics.ObserveRun(string(EventError))
		return nil, err
	}
	e.metrics.ObserveRun(string(EventDone))
	return result, nil
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

func (e *Engine) notify(runID string, s State) {
	if e.stateHook != nil {
		e.stateHook(runID, s)
	}
}

// run carries the state of one Engine.Run call.
type run struct {
	engine *Engine
	id     string
	state  State
	events *emitter
	result *Result
}

func (r *run) emit(ev Event) {
	r.events.emit(ev)
}

func (r *run) transition(next State) error {
	if err := r.state.validate(next); err != nil {
		return err
	}
	r.engine.logf("negotiation %s: %s -> %s", r.id, r.state, next)
	r.state = next
	r.engine.notify(r.id, next)
	return nil
}

func (r *run) fail(err error) {
	if r.state.CanTransition(StateFailed) {
		_ = r.transition(StateFailed)
	}
	r.engine.logf("negotiation %s: failed: %v", r.id, err)
	r.emit(Event{Type: EventError, Error: err.Error()})
}

func (r *run) execute(ctx context.Context, req Request) (*Result, error) {
	e := r.engine
	rfq := ResolveRFQ(e.catalog, req)
	r.result = &Result{
		RunID:     r.id,
		RFQ:       rfq,
		Suppliers: make(map[string]*SupplierNegotiation),
		Failures:  make(map[string]string),
	}
	if err := r.transition(StateRFQEmitted); err != nil {
		return nil, err
	}
	r.emit(Event{Type: EventRFQReady, RFQ: &rfq})

	sessions, err := r.openSessions(rfq)
	if err != nil {
		return nil, err
	}
	buyer, err := e.responders.Buyer()
	if err != nil {
		return nil, fmt.Errorf("negotiation: buyer responder: %w", err)
	}

	if err := r.transition(StateRound1InFlight); err != nil {
		return nil, err
	}
	errs := fanOut(ctx, e.maxParallel, sessions, func(ctx context.Context, s *supplierSession) error {
		return s.round1(ctx)
	})
	if sessions, err = r.settle(ctx, sessions, errs); err != nil {
		return nil, err
	}
	if err := r.transition(StateRound1Complete); err != nil {
		return nil, err
	}

	memo := ""
	if e.variant == VariantRich {
		if err := r.transition(StateReflecting); err != nil {
			return nil, err
		}
		if memo, err = r.reflect(ctx, buyer, rfq, sessions); err != nil {
			return nil, err
		}
	}

	if err := r.transition(StateRound2InFlight); err != nil {
		return nil, err
	}
	errs = fanOut(ctx, e.maxParallel, sessions, func(ctx context.Context, s *supplierSession) error {
		return s.round2(ctx, memo)
	})
	if sessions, err = r.settle(ctx, sessions, errs); err != nil {
		return nil, err
	}
	if err := r.transition(StateRound2Complete); err != nil {
		return nil, err
	}

	scored := make(map[string]*SupplierNegotiation, len(sessions))
	for _, s := range sessions {
		scored[s.profile.ID] = s.negotiation
	}
	scores := ScoreSuppliers(scored)
	r.result.Scores = scores
	if err := r.transition(StateScored); err != nil {
		return nil, err
	}
	r.emit(Event{Type: EventScores, Scores: scores})

	winner := Winner(scores, scored)
	reasoning, err := buyer.Generate(ctx, responder.Prompt(BuildDecisionPrompt(scored, scores, winner)))
	if err != nil {
		return nil, fmt.Errorf("negotiation: decision: %w", err)
	}
	r.result.Winner = winner
	r.result.Reasoning = reasoning
	if err := r.transition(StateDecided); err != nil {
		return nil, err
	}
	r.emit(Event{Type: EventDecision, Winner: winner, Reasoning: reasoning})

	if e.audit {
		r.result.Audit = r.auditDecision(ctx, scored, scores, winner, reasoning)
	}

	if err := r.transition(StateDone); err != nil {
		return nil, err
	}
	if len(r.result.Failures) == 0 {
		r.result.Failures = nil
	}
	r.emit(Event{Type: EventDone, Winner: winner})
	return r.result, nil
}

func (r *run) openSessions(rfq RFQ) ([]*supplierSession, error) {
	e := r.engine
	profiles := e.catalog.Suppliers()
	sessions := make([]*supplierSession, 0, len(profiles))
	for _, profile := range profiles {
		resp, err := e.responders.Supplier(profile)
		if err != nil {
			return nil, fmt.Errorf("negotiation: supplier %s responder: %w", profile.ID, err)
		}
		neg := &SupplierNegotiation{Profile: profile}
		r.result.Suppliers[profile.ID] = neg
		sessions = append(sessions, &supplierSession{
			profile:     profile,
			responder:   resp,
			rfq:         rfq,
			catalog:     e.catalog,
			variant:     e.variant,
			emit:        r.emit,
			newID:       e.newID,
			clock:       e.clock,
			metrics:     e.metrics,
			negotiation: neg,
		})
	}
	return sessions, nil
}

// settle applies the failure policy once a round's barrier has been reached
// and returns the sessions that continue.
func (r *run) settle(ctx context.Context, sessions []*supplierSession, errs []error) ([]*supplierSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("negotiation: %w", err)
	}
	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) == 0 {
		return sessions, nil
	}
	if r.engine.policy == FailRun {
		return nil, errors.Join(failures...)
	}

	alive := sessions[:0:0]
	for i, s := range sessions {
		if errs[i] == nil {
			alive = append(alive, s)
			continue
		}
		s.negotiation.Err = errs[i].Error()
		r.result.Failures[s.profile.ID] = errs[i].Error()
		r.engine.logf("negotiation %s: dropping supplier %s: %v", r.id, s.profile.ID, errs[i])
		var supplierErr *SupplierError
		round := 0
		if errors.As(errs[i], &supplierErr) {
			round = supplierErr.Round
		}
		r.emit(Event{Type: EventSupplierFailed, SupplierID: s.profile.ID, Round: round, Error: errs[i].Error()})
	}
	if len(alive) == 0 {
		return nil, fmt.Errorf("negotiation: every supplier failed: %w", errors.Join(failures...))
	}
	return alive, nil
}

func (r *run) reflect(ctx context.Context, buyer responder.Responder, rfq RFQ, sessions []*supplierSession) (string, error) {
	results := make([]RoundOne, 0, len(sessions))
	for _, s := range sessions {
		results = append(results, RoundOne{SupplierName: s.profile.Name, Reply: s.round1Reply, Quote: s.round1Quote})
	}
	memo, err := buyer.Generate(ctx, responder.Prompt(BuildReflectionPrompt(rfq, results)))
	if err != nil {
		return "", fmt.Errorf("negotiation: reflection: %w", err)
	}
	r.result.Reflection = memo
	r.emit(Event{Type: EventReflection, Content: memo})
	return memo, nil
}

// auditDecision is advisory: a failing or unreadable audit is logged and the
// run still completes.
func (r *run) auditDecision(ctx context.Context, negotiations map[string]*SupplierNegotiation, scores map[string]Score, winner, reasoning string) *Audit {
	auditor, err := r.engine.responders.Auditor()
	if err != nil {
		r.engine.logf("negotiation %s: audit skipped: %v", r.id, err)
		return nil
	}
	reply, err := auditor.Generate(ctx, responder.Prompt(BuildAuditPrompt(negotiations, scores, winner, reasoning)))
	if err != nil {
		r.engine.logf("negotiation %s: audit skipped: %v", r.id, err)
		return nil
	}
	audit := ParseAudit(reply)
	if audit.Verdict == "" {
		r.engine.logf("negotiation %s: audit reply has no verdict: %q", r.id, strings.TrimSpace(reply))
	}
	r.emit(Event{Type: EventAudit, Audit: audit})
	return audit
}
