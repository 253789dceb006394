package quote

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// GrammarVersion identifies the block grammar understood by Parse.
	GrammarVersion = 1
	// BlockStart opens a quote block.
	BlockStart = "===QUOTE==="
	// BlockEnd closes a quote block.
	BlockEnd = "===END_QUOTE==="
	// DefaultLeadTimeDays applies when the LEAD_TIME line is missing or unreadable.
	DefaultLeadTimeDays = 30
)

var (
	blockPattern    = regexp.MustCompile(`(?s)===QUOTE===(.*?)===END_QUOTE===`)
	pricePattern    = regexp.MustCompile(`([A-Z]{3}\d{3}):\s*\$([0-9.]+)`)
	leadTimePattern = regexp.MustCompile(`LEAD_TIME:\s*(\d+)`)
	paymentPattern  = regexp.MustCompile(`PAYMENT:\s*([^\n]+)`)
	totalPattern    = regexp.MustCompile(`TOTAL_VALUE:\s*\$([0-9,]+)`)
	codePattern     = regexp.MustCompile(`^[A-Z]{3}\d{3}$`)
)

// Quote holds the commercial terms extracted from one supplier reply.
type Quote struct {
	UnitPrices   map[string]decimal.Decimal `json:"unitPrices"`
	LeadTimeDays int                        `json:"leadTimeDays"`
	PaymentTerms string                     `json:"paymentTerms"`
	TotalValue   decimal.Decimal            `json:"totalValue"`
	// TotalStated is false when the block had no readable TOTAL_VALUE line.
	TotalStated bool `json:"-"`
}

// Parse extracts the first quote block from text. It reports false when no
// block is present or the block carries no readable unit price; every other
// field falls back to its default instead of failing.
func Parse(text string) (*Quote, bool) {
	match := blockPattern.FindStringSubmatch(text)
	if match == nil {
		return nil, false
	}
	raw := match[1]

	prices := map[string]decimal.Decimal{}
	for _, m := range pricePattern.FindAllStringSubmatch(raw, -1) {
		amount, ok := parseAmount(m[2])
		if !ok {
			continue
		}
		prices[m[1]] = amount
	}
	if len(prices) == 0 {
		return nil, false
	}

	q := &Quote{
		UnitPrices:   prices,
		LeadTimeDays: DefaultLeadTimeDays,
		TotalValue:   decimal.Zero,
	}
	if m := leadTimePattern.FindStringSubmatch(raw); m != nil {
		if days, err := strconv.Atoi(m[1]); err == nil {
			q.LeadTimeDays = days
		}
	}
	if m := paymentPattern.FindStringSubmatch(raw); m != nil {
		q.PaymentTerms = strings.TrimSpace(m[1])
	}
	if m := totalPattern.FindStringSubmatch(raw); m != nil {
		digits := strings.ReplaceAll(m[1], ",", "")
		if total, err := decimal.NewFromString(digits); err == nil {
			q.TotalValue = total
			q.TotalStated = true
		}
	}
	return q, true
}

// ValidCode reports whether code can appear as a price entry in a block.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Strip removes every quote block from text.
func Strip(text string) string {
	return strings.TrimSpace(blockPattern.ReplaceAllString(text, ""))
}

// Codes returns the quoted product codes in ascending order.
func (q *Quote) Codes() []string {
	if q == nil {
		return nil
	}
	codes := make([]string, 0, len(q.UnitPrices))
	for code := range q.UnitPrices {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// parseAmount reads the leading decimal of a `[0-9.]+` capture the way a
// lenient float parser would: "12.50." and "12.5.1" both read as 12.5.
func parseAmount(raw string) (decimal.Decimal, bool) {
	if first := strings.IndexByte(raw, '.'); first >= 0 {
		if second := strings.IndexByte(raw[first+1:], '.'); second >= 0 {
			raw = raw[:first+1+second]
		}
	}
	raw = strings.TrimSuffix(raw, ".")
	if raw == "" {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return amount, true
}
