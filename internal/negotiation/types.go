package negotiation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/quote"
	"github.com/KaioH3/negotiation-agent/internal/responder"
)

// Variant selects the buyer-side protocol.
type Variant string

const (
	// VariantRich sends the bill of materials, writes a reflection memo after
	// round one and tailors each counter from it.
	VariantRich Variant = "rich"
	// VariantLegacy sends a plain RFQ and a fixed counter template.
	VariantLegacy Variant = "legacy"
)

// FailurePolicy decides what a supplier responder failure does to the run.
type FailurePolicy string

const (
	// FailRun fails the whole run once the barrier settles.
	FailRun FailurePolicy = "fail_run"
	// Degrade drops the failing supplier and continues with the rest.
	Degrade FailurePolicy = "degrade"
)

// Request carries the external run parameters.
type Request struct {
	// Quantities maps product code to requested units. Unknown codes are
	// ignored; missing or non-positive entries use the product default.
	Quantities map[string]int `json:"quantities,omitempty"`
	Note       string         `json:"note,omitempty"`
}

// Message is one immutable turn of a supplier conversation.
type Message struct {
	ID        string         `json:"id"`
	From      responder.Role `json:"from"`
	Content   string         `json:"content"`
	Round     int            `json:"round"`
	Timestamp time.Time      `json:"timestamp"`
}

// SupplierNegotiation aggregates one supplier's conversation.
type SupplierNegotiation struct {
	Profile    catalog.SupplierProfile `json:"profile"`
	Messages   []Message               `json:"messages"`
	FinalQuote *quote.Quote            `json:"finalQuote"`
	// Err is set when the supplier was dropped under the degrade policy.
	Err string `json:"error,omitempty"`
}

// RFQLine is one requested product with its resolved quantity.
type RFQLine struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	TargetPrice decimal.Decimal `json:"targetPrice"`
}

// RFQ is the resolved request sent to every supplier.
type RFQ struct {
	Products       []RFQLine       `json:"products"`
	Note           string          `json:"note"`
	EstimatedValue decimal.Decimal `json:"estimatedValue"`
}

// Quantities returns the resolved quantity per product code.
func (r RFQ) Quantities() map[string]int {
	out := make(map[string]int, len(r.Products))
	for _, line := range r.Products {
		out[line.Code] = line.Quantity
	}
	return out
}

// Audit is the parsed verdict of the decision auditor.
type Audit struct {
	Verdict    string   `json:"verdict"`
	Confidence int      `json:"confidence"`
	Summary    string   `json:"summary"`
	RiskFlags  []string `json:"riskFlags"`
	Raw        string   `json:"raw"`
}

// Approved reports whether the auditor signed off on the decision.
func (a *Audit) Approved() bool {
	return a != nil && a.Verdict == VerdictApproved
}

// Result is the terminal artifact of a successful run.
type Result struct {
	RunID      string                          `json:"runId"`
	RFQ        RFQ                             `json:"rfq"`
	Suppliers  map[string]*SupplierNegotiation `json:"suppliers"`
	Reflection string                          `json:"reflection"`
	Scores     map[string]Score                `json:"scores"`
	Winner     string                          `json:"winner"`
	Reasoning  string                          `json:"reasoning"`
	Audit      *Audit                          `json:"audit,omitempty"`
	Failures   map[string]string               `json:"failures,omitempty"`
}
