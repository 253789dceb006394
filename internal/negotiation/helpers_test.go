package negotiation

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/quote"
	"github.com/KaioH3/negotiation-agent/internal/responder"
)

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	return cat
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func counterIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%03d", n.Add(1))
	}
}

// simulated returns the offline factory with selected suppliers replaced.
func simulated(t *testing.T, cat *catalog.Catalog, overrides map[string]responder.Responder) Responders {
	t.Helper()
	factory, err := responder.NewFactory(responder.NewSimulatedBackend(cat), cat)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	return &overrideResponders{Responders: factory, suppliers: overrides}
}

type overrideResponders struct {
	Responders
	suppliers map[string]responder.Responder
	buyer     responder.Responder
	auditor   responder.Responder
}

func (o *overrideResponders) Supplier(profile catalog.SupplierProfile) (responder.Responder, error) {
	if r, ok := o.suppliers[profile.ID]; ok {
		return r, nil
	}
	return o.Responders.Supplier(profile)
}

func (o *overrideResponders) Buyer() (responder.Responder, error) {
	if o.buyer != nil {
		return o.buyer, nil
	}
	return o.Responders.Buyer()
}

func (o *overrideResponders) Auditor() (responder.Responder, error) {
	if o.auditor != nil {
		return o.auditor, nil
	}
	return o.Responders.Auditor()
}

// fixedReply answers every round with the same text.
func fixedReply(text string) responder.Responder {
	return responder.Func(func(context.Context, []responder.Turn) (string, error) {
		return text, nil
	})
}

// failingIn fails in the given round and quotes normally otherwise.
func failingIn(round int, err error, reply string) responder.Responder {
	return responder.Func(func(_ context.Context, turns []responder.Turn) (string, error) {
		current := 1
		if len(turns) > 1 {
			current = 2
		}
		if current == round {
			return "", err
		}
		return reply, nil
	})
}

func quoteReply(total string, lead int, prices map[string]string) string {
	q := quote.Quote{
		UnitPrices:   map[string]decimal.Decimal{},
		LeadTimeDays: lead,
		PaymentTerms: "30% deposit / 70% before shipping",
		TotalValue:   decimal.RequireFromString(total),
	}
	for code, price := range prices {
		q.UnitPrices[code] = decimal.RequireFromString(price)
	}
	return "Thank you for the request.\n\n" + quote.Format(q, nil)
}

func eventTypes(events []Event) string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = string(ev.Type)
	}
	return strings.Join(types, ",")
}
