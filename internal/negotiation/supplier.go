package negotiation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/metrics"
	"github.com/KaioH3/negotiation-agent/internal/quote"
	"github.com/KaioH3/negotiation-agent/internal/responder"
)

// SupplierError reports a responder failure inside one supplier's task. It
// is distinct from an extraction miss, which is only a nil quote.
type SupplierError struct {
	SupplierID string
	Round      int
	Err        error
}

func (e *SupplierError) Error() string {
	return fmt.Sprintf("supplier %s: round %d: %v", e.SupplierID, e.Round, e.Err)
}

func (e *SupplierError) Unwrap() error {
	return e.Err
}

// supplierSession drives one supplier through both rounds. It owns its
// SupplierNegotiation until the barrier that follows each round.
type supplierSession struct {
	profile     catalog.SupplierProfile
	responder   responder.Responder
	rfq         RFQ
	catalog     *catalog.Catalog
	variant     Variant
	emit        func(Event)
	newID       func() string
	clock       func() time.Time
	metrics     *metrics.Collectors
	negotiation *SupplierNegotiation

	round1Reply string
	round1Quote *quote.Quote
}

// round1 sends the RFQ and records the supplier's first offer.
func (s *supplierSession) round1(ctx context.Context) error {
	request := BuildRFQ(s.rfq, s.catalog, s.profile.Name, s.variant)
	s.record(responder.RoleBuyer, request, 1)

	reply, err := s.responder.Generate(ctx, []responder.Turn{{Role: responder.RoleBuyer, Content: request}})
	if err != nil {
		return &SupplierError{SupplierID: s.profile.ID, Round: 1, Err: err}
	}
	s.record(responder.RoleSupplier, reply, 1)
	s.round1Reply = reply
	s.round1Quote = s.extract(reply)
	if s.round1Quote != nil {
		s.emit(Event{Type: EventQuoteParsed, SupplierID: s.profile.ID, Quote: s.round1Quote, Round: 1})
	}
	return nil
}

// round2 sends the counter with the full history and resolves the final
// quote: round two's when it parsed, else round one's.
func (s *supplierSession) round2(ctx context.Context, memo string) error {
	counter := BuildCounter(s.profile.Name, s.round1Reply, memo, s.variant)
	s.record(responder.RoleBuyer, counter, 2)

	history := make([]responder.Turn, 0, len(s.negotiation.Messages))
	for _, msg := range s.negotiation.Messages {
		history = append(history, responder.Turn{Role: msg.From, Content: msg.Content})
	}
	reply, err := s.responder.Generate(ctx, history)
	if err != nil {
		return &SupplierError{SupplierID: s.profile.ID, Round: 2, Err: err}
	}
	s.record(responder.RoleSupplier, reply, 2)

	final, round := s.extract(reply), 2
	if final == nil {
		final, round = s.round1Quote, 1
	}
	s.negotiation.FinalQuote = final
	if final != nil {
		s.emit(Event{Type: EventQuoteParsed, SupplierID: s.profile.ID, Quote: final, Round: round, Final: true})
	}
	return nil
}

func (s *supplierSession) record(from responder.Role, content string, round int) {
	msg := Message{
		ID:        s.newID(),
		From:      from,
		Content:   content,
		Round:     round,
		Timestamp: s.clock().UTC(),
	}
	s.negotiation.Messages = append(s.negotiation.Messages, msg)
	s.emit(Event{Type: EventMessage, SupplierID: s.profile.ID, Message: &msg})
}

// extract parses a reply. A quote without TOTAL_VALUE gets its total derived
// from the unit prices and the requested quantities.
func (s *supplierSession) extract(reply string) *quote.Quote {
	q, ok := quote.Parse(reply)
	s.metrics.ObserveQuote(ok)
	if !ok {
		return nil
	}
	if !q.TotalStated {
		q.TotalValue = derivedTotal(q, s.rfq)
	}
	return q
}

func derivedTotal(q *quote.Quote, rfq RFQ) decimal.Decimal {
	total := decimal.Zero
	for _, line := range rfq.Products {
		if price, ok := q.UnitPrices[line.Code]; ok {
			total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
	}
	return total
}
