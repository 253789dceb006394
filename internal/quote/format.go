package quote

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Format renders q as a quote block. Codes listed in order come first, any
// remaining codes follow in ascending order.
func Format(q Quote, order []string) string {
	var b strings.Builder
	b.WriteString(BlockStart)
	b.WriteString("\n")
	seen := make(map[string]struct{}, len(q.UnitPrices))
	writePrice := func(code string) {
		price, ok := q.UnitPrices[code]
		if !ok {
			return
		}
		if _, dup := seen[code]; dup {
			return
		}
		seen[code] = struct{}{}
		fmt.Fprintf(&b, "%s: $%s/unit\n", code, price.StringFixed(2))
	}
	for _, code := range order {
		writePrice(code)
	}
	for _, code := range q.Codes() {
		writePrice(code)
	}
	fmt.Fprintf(&b, "LEAD_TIME: %d days\n", q.LeadTimeDays)
	fmt.Fprintf(&b, "PAYMENT: %s\n", strings.TrimSpace(q.PaymentTerms))
	fmt.Fprintf(&b, "TOTAL_VALUE: %s\n", WholeDollars(q.TotalValue))
	b.WriteString(BlockEnd)
	return b.String()
}

// Template renders the placeholder block personas are instructed to fill in.
func Template(codes []string) string {
	var b strings.Builder
	b.WriteString(BlockStart)
	b.WriteString("\n")
	for _, code := range codes {
		fmt.Fprintf(&b, "%s: $X.XX/unit\n", code)
	}
	b.WriteString("LEAD_TIME: XX days\n")
	b.WriteString("PAYMENT: [your terms]\n")
	b.WriteString("TOTAL_VALUE: $X,XXX,XXX\n")
	b.WriteString(BlockEnd)
	return b.String()
}

// WholeDollars formats an amount as "$1,234,567", rounded to whole dollars.
func WholeDollars(amount decimal.Decimal) string {
	return "$" + groupThousands(amount.Round(0).String())
}

// Dollars formats an amount as "$1,234.50".
func Dollars(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return "$" + groupThousands(whole) + "." + frac
}

// Units formats a quantity as "10,000".
func Units(n int) string {
	return groupThousands(strconv.Itoa(n))
}

func groupThousands(digits string) string {
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return sign + b.String()
}
