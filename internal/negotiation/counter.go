package negotiation

import (
	"fmt"
	"strings"

	"github.com/KaioH3/negotiation-agent/internal/quote"
)

const memoHeadingPrefix = "=== "

// MemoHeading returns the heading that opens a supplier's memo section.
func MemoHeading(supplierName string) string {
	return memoHeadingPrefix + supplierName + " ==="
}

// MemoSection returns the body of the supplier's section of a reflection
// memo: everything after its heading up to the next heading or the end. It
// returns "" when the memo has no such section.
func MemoSection(memo, supplierName string) string {
	heading := MemoHeading(supplierName)
	idx := strings.Index(memo, heading)
	if idx < 0 {
		return ""
	}
	body := memo[idx+len(heading):]
	if next := strings.Index(body, memoHeadingPrefix); next >= 0 {
		body = body[:next]
	}
	return strings.TrimSpace(body)
}

// BuildCounter renders the round-two counter. The rich variant splices in the
// supplier's memo section when there is one; the legacy variant ignores the
// memo.
func BuildCounter(supplierName, round1Reply, memo string, variant Variant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s team,\n\n", supplierName)
	b.WriteString("Thank you for your initial proposal. We have reviewed it alongside our other supplier evaluations.\n\n")
	if q, ok := quote.Parse(round1Reply); ok {
		fmt.Fprintf(&b, "For reference, your round 1 offer totals %s with a %d-day lead time.\n\n",
			quote.WholeDollars(q.TotalValue), q.LeadTimeDays)
	}
	if variant != VariantLegacy {
		if insight := MemoSection(memo, supplierName); insight != "" {
			fmt.Fprintf(&b, "Based on our analysis:\n%s\n\n", insight)
		}
	}
	b.WriteString(`We need you to address the following for your final offer:

1. Pricing: can you sharpen your unit costs? Even a 3-5% improvement would be decisive.
2. Payment terms: any flexibility here to ease our cash flow?
3. Lead time: please reconfirm your committed timeline.

This is your best and final offer opportunity. We are making our selection decision shortly.

`)
	fmt.Fprintf(&b, "Best regards,\n%s", BuyerSignature)
	return b.String()
}
