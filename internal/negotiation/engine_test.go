package negotiation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KaioH3/negotiation-agent/internal/logging"
	"github.com/KaioH3/negotiation-agent/internal/metrics"
	"github.com/KaioH3/negotiation-agent/internal/responder"
)

func newTestEngine(t *testing.T, responders Responders, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithClock(fixedClock),
		WithIDs(func() string { return "run-1" }, counterIDs()),
	}
	engine, err := New(defaultCatalog(t), responders, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

func TestNewValidatesInputs(t *testing.T) {
	cat := defaultCatalog(t)
	if _, err := New(nil, simulated(t, cat, nil)); err == nil {
		t.Fatalf("expected error without catalog")
	}
	if _, err := New(cat, nil); err == nil {
		t.Fatalf("expected error without responders")
	}
	if _, err := New(cat, simulated(t, cat, nil), WithVariant("fancy")); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
	if _, err := New(cat, simulated(t, cat, nil), WithFailurePolicy("ignore")); err == nil {
		t.Fatalf("expected error for unknown failure policy")
	}
}

func TestRunWithDefaultQuantitiesReachesDone(t *testing.T) {
	cat := defaultCatalog(t)
	var states []State
	engine := newTestEngine(t, simulated(t, cat, nil), WithStateHook(func(_ string, s State) {
		states = append(states, s)
	}))
	rec := &Recorder{}
	result, err := engine.Run(context.Background(), Request{}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := rec.Events()
	if last := events[len(events)-1]; last.Type != EventDone {
		t.Fatalf("last event = %s, want done", last.Type)
	}
	if len(result.Scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(result.Scores))
	}
	best := ""
	for id, s := range result.Scores {
		if best == "" || s.Total > result.Scores[best].Total {
			best = id
		}
	}
	if result.Scores[result.Winner].Total != result.Scores[best].Total {
		t.Fatalf("winner %s total %.1f is not the highest (%s %.1f)", result.Winner, result.Scores[result.Winner].Total, best, result.Scores[best].Total)
	}
	if result.Winner != "supplier1" {
		t.Fatalf("expected the lowest-cost supplier to win with simulated replies, got %s", result.Winner)
	}
	if result.RunID != "run-1" || result.Reflection == "" || result.Reasoning == "" {
		t.Fatalf("incomplete result: %+v", result)
	}
	if result.Failures != nil {
		t.Fatalf("expected no failures, got %v", result.Failures)
	}
	for id, neg := range result.Suppliers {
		if len(neg.Messages) != 4 {
			t.Fatalf("%s: expected 4 messages, got %d", id, len(neg.Messages))
		}
		if neg.FinalQuote == nil {
			t.Fatalf("%s: expected a final quote", id)
		}
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) || ev.RunID != "run-1" || !ev.Time.Equal(fixedClock()) {
			t.Fatalf("event %d not stamped: %+v", i, ev)
		}
	}
	wantStates := []State{StateInitiated, StateRFQEmitted, StateRound1InFlight, StateRound1Complete, StateReflecting,
		StateRound2InFlight, StateRound2Complete, StateScored, StateDecided, StateDone}
	if len(states) != len(wantStates) {
		t.Fatalf("states = %v", states)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Fatalf("states = %v, want %v", states, wantStates)
		}
	}
}

func TestRunEmitsRFQReadyFirst(t *testing.T) {
	cat := defaultCatalog(t)
	engine := newTestEngine(t, simulated(t, cat, nil))
	rec := &Recorder{}
	if _, err := engine.Run(context.Background(), Request{Quantities: map[string]int{"FSH013": 200, "ZZZ999": 5}, Note: "eco materials"}, rec); err != nil {
		t.Fatalf("Run: %v", err)
	}
	first := rec.Events()[0]
	if first.Type != EventRFQReady || first.RFQ == nil {
		t.Fatalf("first event = %+v", first)
	}
	if first.RFQ.Note != "eco materials" || first.RFQ.Quantities()["FSH013"] != 200 {
		t.Fatalf("unexpected rfq %+v", first.RFQ)
	}
	if _, ok := first.RFQ.Quantities()["ZZZ999"]; ok {
		t.Fatalf("unknown code must be ignored")
	}
}

func TestRunReflectionSitsBetweenRounds(t *testing.T) {
	cat := defaultCatalog(t)
	engine := newTestEngine(t, simulated(t, cat, nil))
	rec := &Recorder{}
	if _, err := engine.Run(context.Background(), Request{}, rec); err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := rec.Events()
	reflection := -1
	for i, ev := range events {
		if ev.Type == EventReflection {
			if reflection >= 0 {
				t.Fatalf("reflection emitted twice")
			}
			reflection = i
		}
	}
	if reflection < 0 {
		t.Fatalf("no reflection event in %s", eventTypes(events))
	}
	round1 := 0
	for i, ev := range events {
		isRound1 := (ev.Type == EventMessage && ev.Message.Round == 1) || (ev.Type == EventQuoteParsed && !ev.Final)
		isRound2 := (ev.Type == EventMessage && ev.Message.Round == 2) || (ev.Type == EventQuoteParsed && ev.Final)
		if isRound1 {
			round1++
			if i > reflection {
				t.Fatalf("round 1 event %d emitted after reflection", i)
			}
		}
		if isRound2 && i < reflection {
			t.Fatalf("round 2 event %d emitted before reflection", i)
		}
	}
	// RFQ, reply and a parsed quote per supplier.
	if round1 != 9 {
		t.Fatalf("expected 9 round 1 events, got %d", round1)
	}
}

func TestRunCountersCarryMemoSections(t *testing.T) {
	cat := defaultCatalog(t)
	rec := &Recorder{}
	engine := newTestEngine(t, simulated(t, cat, nil))
	result, err := engine.Run(context.Background(), Request{}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for id, neg := range result.Suppliers {
		counter := neg.Messages[2]
		if counter.From != responder.RoleBuyer || counter.Round != 2 {
			t.Fatalf("%s: unexpected third message %+v", id, counter)
		}
		if !strings.Contains(counter.Content, "Based on our analysis:") {
			t.Fatalf("%s: counter lacks memo section:\n%s", id, counter.Content)
		}
	}
}

func TestRunLegacyVariantSkipsReflection(t *testing.T) {
	cat := defaultCatalog(t)
	var states []State
	engine := newTestEngine(t, simulated(t, cat, nil), WithVariant(VariantLegacy), WithStateHook(func(_ string, s State) {
		states = append(states, s)
	}))
	rec := &Recorder{}
	result, err := engine.Run(context.Background(), Request{}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(eventTypes(rec.Events()), string(EventReflection)) {
		t.Fatalf("legacy run emitted a reflection")
	}
	for _, s := range states {
		if s == StateReflecting {
			t.Fatalf("legacy run entered %s", s)
		}
	}
	if result.Reflection != "" {
		t.Fatalf("expected empty reflection")
	}
	for id, neg := range result.Suppliers {
		if strings.Contains(neg.Messages[0].Content, "BILL OF MATERIALS") {
			t.Fatalf("%s: legacy RFQ carries a bill of materials", id)
		}
	}
}

func TestRunSupplierWithoutQuoteBlock(t *testing.T) {
	cat := defaultCatalog(t)
	engine := newTestEngine(t, simulated(t, cat, map[string]responder.Responder{
		"supplier1": fixedReply("We would love to work with you, details to follow."),
	}))
	rec := &Recorder{}
	result, err := engine.Run(context.Background(), Request{}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	neg := result.Suppliers["supplier1"]
	if neg.FinalQuote != nil {
		t.Fatalf("expected nil final quote, got %+v", neg.FinalQuote)
	}
	s := result.Scores["supplier1"]
	if s.Price != worstScore || s.LeadTime != worstScore {
		t.Fatalf("expected worst price and lead time scores, got %+v", s)
	}
	if result.Winner == "supplier1" {
		t.Fatalf("a supplier without a quote must not win")
	}
	for _, ev := range rec.Events() {
		if ev.Type == EventQuoteParsed && ev.SupplierID == "supplier1" {
			t.Fatalf("quote_parsed emitted for a reply without a quote")
		}
	}
}

func TestRunFailRunPolicy(t *testing.T) {
	cat := defaultCatalog(t)
	boom := errors.New("rate limited")
	var states []State
	engine := newTestEngine(t, simulated(t, cat, map[string]responder.Responder{
		"supplier2": failingIn(1, boom, ""),
	}), WithStateHook(func(_ string, s State) { states = append(states, s) }))
	rec := &Recorder{}
	result, err := engine.Run(context.Background(), Request{}, rec)
	if err == nil || result != nil {
		t.Fatalf("expected failure without result, got %v / %+v", err, result)
	}
	var supplierErr *SupplierError
	if !errors.As(err, &supplierErr) || supplierErr.SupplierID != "supplier2" || supplierErr.Round != 1 {
		t.Fatalf("expected SupplierError for supplier2 round 1, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause")
	}
	events := rec.Events()
	errorsSeen := 0
	repliesFromOthers := 0
	for _, ev := range events {
		switch {
		case ev.Type == EventError:
			errorsSeen++
		case ev.Type == EventDone:
			t.Fatalf("done emitted on a failed run")
		case ev.Type == EventMessage && ev.Message.From == responder.RoleSupplier:
			repliesFromOthers++
		}
	}
	if errorsSeen != 1 || events[len(events)-1].Type != EventError {
		t.Fatalf("expected a single terminal error event, got %s", eventTypes(events))
	}
	if repliesFromOthers != 2 {
		t.Fatalf("expected the other suppliers to settle round 1, got %d replies", repliesFromOthers)
	}
	if states[len(states)-1] != StateFailed {
		t.Fatalf("final state = %s", states[len(states)-1])
	}
}

func TestRunDegradePolicyDropsFailedSupplier(t *testing.T) {
	cat := defaultCatalog(t)
	reply := quoteReply("100000", 20, map[string]string{"FSH013": "10.00"})
	engine := newTestEngine(t, simulated(t, cat, map[string]responder.Responder{
		"supplier3": failingIn(2, errors.New("connection reset"), reply),
	}), WithFailurePolicy(Degrade))
	rec := &Recorder{}
	result, err := engine.Run(context.Background(), Request{}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := result.Scores["supplier3"]; ok {
		t.Fatalf("failed supplier must be excluded from scoring")
	}
	if len(result.Scores) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(result.Scores))
	}
	if !strings.Contains(result.Failures["supplier3"], "connection reset") {
		t.Fatalf("expected failure recorded, got %v", result.Failures)
	}
	if result.Suppliers["supplier3"].Err == "" {
		t.Fatalf("expected negotiation error to be recorded")
	}
	var failed []Event
	for _, ev := range rec.Events() {
		if ev.Type == EventSupplierFailed {
			failed = append(failed, ev)
		}
	}
	if len(failed) != 1 || failed[0].SupplierID != "supplier3" || failed[0].Round != 2 {
		t.Fatalf("unexpected supplier_failed events %+v", failed)
	}
}

func TestRunDegradeSkipsFailedSupplierInRoundTwo(t *testing.T) {
	cat := defaultCatalog(t)
	var calls atomic.Int32
	flaky := responder.Func(func(context.Context, []responder.Turn) (string, error) {
		calls.Add(1)
		return "", errors.New("quota exceeded")
	})
	engine := newTestEngine(t, simulated(t, cat, map[string]responder.Responder{"supplier1": flaky}), WithFailurePolicy(Degrade))
	result, err := engine.Run(context.Background(), Request{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("failed supplier was called %d times, want 1", calls.Load())
	}
	if result.Winner == "supplier1" {
		t.Fatalf("dropped supplier cannot win")
	}
	if got := len(result.Suppliers["supplier1"].Messages); got != 1 {
		t.Fatalf("expected only the RFQ recorded for the dropped supplier, got %d messages", got)
	}
}

func TestRunDegradeFailsWhenEverySupplierFails(t *testing.T) {
	cat := defaultCatalog(t)
	down := failingIn(1, errors.New("down"), "")
	engine := newTestEngine(t, simulated(t, cat, map[string]responder.Responder{
		"supplier1": down, "supplier2": down, "supplier3": down,
	}), WithFailurePolicy(Degrade))
	rec := &Recorder{}
	if _, err := engine.Run(context.Background(), Request{}, rec); err == nil || !strings.Contains(err.Error(), "every supplier failed") {
		t.Fatalf("expected every-supplier failure, got %v", err)
	}
	events := rec.Events()
	if events[len(events)-1].Type != EventError {
		t.Fatalf("expected terminal error, got %s", eventTypes(events))
	}
}

func TestRunReflectionFailureFailsRun(t *testing.T) {
	cat := defaultCatalog(t)
	responders := simulated(t, cat, nil).(*overrideResponders)
	responders.buyer = responder.Func(func(context.Context, []responder.Turn) (string, error) {
		return "", errors.New("buyer offline")
	})
	engine := newTestEngine(t, responders)
	if _, err := engine.Run(context.Background(), Request{}, nil); err == nil || !strings.Contains(err.Error(), "reflection") {
		t.Fatalf("expected reflection error, got %v", err)
	}
}

func TestRunWithAuditEmitsVerdictBeforeDone(t *testing.T) {
	cat := defaultCatalog(t)
	engine := newTestEngine(t, simulated(t, cat, nil), WithAudit(true))
	rec := &Recorder{}
	result, err := engine.Run(context.Background(), Request{}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Audit.Approved() || result.Audit.Confidence != 80 {
		t.Fatalf("unexpected audit %+v", result.Audit)
	}
	types := eventTypes(rec.Events())
	if !strings.HasSuffix(types, "decision,audit,done") {
		t.Fatalf("unexpected tail of event stream: %s", types)
	}
}

func TestRunAuditFailureIsAdvisory(t *testing.T) {
	cat := defaultCatalog(t)
	responders := simulated(t, cat, nil).(*overrideResponders)
	responders.auditor = responder.Func(func(context.Context, []responder.Turn) (string, error) {
		return "", errors.New("auditor offline")
	})
	var logs strings.Builder
	engine := newTestEngine(t, responders, WithAudit(true), WithLogger(logging.NewWriter(&logs)))
	result, err := engine.Run(context.Background(), Request{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Audit != nil {
		t.Fatalf("expected no audit")
	}
	if !strings.Contains(logs.String(), "audit skipped") {
		t.Fatalf("expected audit failure to be logged:\n%s", logs.String())
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	cat := defaultCatalog(t)
	ctx, cancel := context.WithCancel(context.Background())
	blocking := responder.Func(func(ctx context.Context, _ []responder.Turn) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	engine := newTestEngine(t, simulated(t, cat, map[string]responder.Responder{"supplier2": blocking}), WithFailurePolicy(Degrade))
	_, err := engine.Run(ctx, Request{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunRespectsMaxParallel(t *testing.T) {
	cat := defaultCatalog(t)
	var mu sync.Mutex
	inFlight, peak := 0, 0
	slow := func(reply string) responder.Responder {
		return responder.Func(func(context.Context, []responder.Turn) (string, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return reply, nil
		})
	}
	reply := quoteReply("50000", 30, map[string]string{"FSH013": "5.00"})
	engine := newTestEngine(t, simulated(t, cat, map[string]responder.Responder{
		"supplier1": slow(reply), "supplier2": slow(reply), "supplier3": slow(reply),
	}), WithMaxParallel(1))
	if _, err := engine.Run(context.Background(), Request{}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak != 1 {
		t.Fatalf("peak concurrency = %d, want 1", peak)
	}
}

func TestRunRecordsMetricsAndLogs(t *testing.T) {
	cat := defaultCatalog(t)
	m := metrics.New()
	var logs strings.Builder
	engine := newTestEngine(t, simulated(t, cat, nil), WithMetrics(m), WithLogger(logging.NewWriter(&logs)))
	if _, err := engine.Run(context.Background(), Request{}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{"negotiator_runs_total", "negotiator_events_total", "negotiator_quote_extractions_total"} {
		if !found[name] {
			t.Fatalf("metric %s not recorded", name)
		}
	}
	if !strings.Contains(logs.String(), "round2_complete -> scored") {
		t.Fatalf("expected transitions in log:\n%s", logs.String())
	}
}
