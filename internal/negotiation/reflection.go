package negotiation

import (
	"fmt"
	"strings"

	"github.com/KaioH3/negotiation-agent/internal/quote"
)

// RoundOne is a supplier's round-one outcome as seen by the reflector.
type RoundOne struct {
	SupplierName string
	Reply        string
	Quote        *quote.Quote
}

// BuildReflectionPrompt asks the buyer for a strategic memo with one
// MemoHeading section per supplier.
func BuildReflectionPrompt(rfq RFQ, results []RoundOne) string {
	summaries := make([]string, 0, len(results))
	for _, r := range results {
		var b strings.Builder
		b.WriteString(MemoHeading(r.SupplierName))
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(quote.Strip(r.Reply)))
		b.WriteString("\n\nExtracted quote data:\n")
		b.WriteString(describeQuote(r.Quote))
		summaries = append(summaries, b.String())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the brand sourcing manager. You have just received Round 1 proposals from %d suppliers.\n\n", len(results))
	fmt.Fprintf(&b, "RFQ total estimated value at target FOB: %s\n\n", quote.WholeDollars(rfq.EstimatedValue))
	b.WriteString(strings.Join(summaries, "\n\n"))
	b.WriteString(`

---

Generate a STRATEGIC MEMO for Round 2. For each supplier, output in this exact structure:

=== [Supplier Name] ===
Round 1 summary: [1-2 sentences on their offer and key highlights]
Material alternatives offered: [specific component names they proposed to substitute, or "None proposed"]
Negotiation leverage: [what advantage you can use against them in round 2]
Round 2 strategy: [exactly what to push for; be specific, not generic]

Be analytical, reference actual numbers and component names from the proposals.`)
	return b.String()
}

func describeQuote(q *quote.Quote) string {
	if q == nil {
		return "Quote format not parsed, see full response."
	}
	prices := make([]string, 0, len(q.UnitPrices))
	for _, code := range q.Codes() {
		prices = append(prices, code+"="+quote.Dollars(q.UnitPrices[code]))
	}
	return fmt.Sprintf("Total quoted: %s\n  Lead time: %d days\n  Payment: %s\n  Unit prices: %s",
		quote.WholeDollars(q.TotalValue), q.LeadTimeDays, q.PaymentTerms, strings.Join(prices, ", "))
}
