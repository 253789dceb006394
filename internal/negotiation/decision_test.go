package negotiation

import (
	"strings"
	"testing"

	"github.com/KaioH3/negotiation-agent/internal/quote"
)

func TestParseAudit(t *testing.T) {
	a := ParseAudit(`VERDICT: flagged
CONFIDENCE: 62%
AUDIT: The winner leads on price but the lead time is 50 days.
The margin over the runner-up is 0.4 points.
RISK_FLAGS:
- Slow lead time
* Thin margin`)
	if a.Verdict != VerdictFlagged || a.Approved() {
		t.Fatalf("verdict = %q", a.Verdict)
	}
	if a.Confidence != 62 {
		t.Fatalf("confidence = %d", a.Confidence)
	}
	if a.Summary != "The winner leads on price but the lead time is 50 days. The margin over the runner-up is 0.4 points." {
		t.Fatalf("summary = %q", a.Summary)
	}
	if len(a.RiskFlags) != 2 || a.RiskFlags[0] != "Slow lead time" || a.RiskFlags[1] != "Thin margin" {
		t.Fatalf("risk flags = %q", a.RiskFlags)
	}
}

func TestParseAuditToleratesFreeText(t *testing.T) {
	a := ParseAudit("Looks fine to me.")
	if a.Verdict != "" || a.Confidence != -1 || a.Raw != "Looks fine to me." {
		t.Fatalf("unexpected audit %+v", a)
	}
	var nilAudit *Audit
	if nilAudit.Approved() {
		t.Fatalf("nil audit cannot be approved")
	}
}

func TestBuildDecisionPromptNamesWinner(t *testing.T) {
	negotiations := map[string]*SupplierNegotiation{
		"supplier1": negotiationFor("supplier1", 4.0, 9, "110000", 50),
		"supplier2": negotiationFor("supplier2", 4.7, 6, "", 0),
	}
	negotiations["supplier1"].Profile.Name = "EastCraft Manufacturing"
	scores := ScoreSuppliers(negotiations)
	prompt := BuildDecisionPrompt(negotiations, scores, "supplier1")
	for _, want := range []string{
		"SELECTED SUPPLIER: EastCraft Manufacturing (Overall score:",
		"Total $110,000",
		"supplier2: Quality 4.7/5.0 | Lead time ? days | Total N/A",
		"Why EastCraft Manufacturing was selected",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("decision prompt missing %q:\n%s", want, prompt)
		}
	}
	audit := BuildAuditPrompt(negotiations, scores, "supplier1", "Cheapest by far.")
	if !strings.Contains(audit, "Cheapest by far.") || !strings.Contains(audit, "VERDICT") {
		t.Fatalf("audit prompt incomplete:\n%s", audit)
	}
}

func TestBuildReflectionPrompt(t *testing.T) {
	rfq := ResolveRFQ(defaultCatalog(t), Request{})
	reply := quoteReply("120000", 45, map[string]string{"FSH013": "12.00"})
	q, _ := quote.Parse(reply)
	prompt := BuildReflectionPrompt(rfq, []RoundOne{
		{SupplierName: "EastCraft Manufacturing", Reply: reply, Quote: q},
		{SupplierName: "SwiftMake Footwear Co.", Reply: "We will revert shortly."},
	})
	for _, want := range []string{
		"Round 1 proposals from 2 suppliers",
		"=== EastCraft Manufacturing ===\nThank you for the request.",
		"=== SwiftMake Footwear Co. ===\nWe will revert shortly.",
		"Extracted quote data:\nTotal quoted: $120,000\n  Lead time: 45 days",
		"Unit prices: FSH013=$12.00",
		"Quote format not parsed",
		"STRATEGIC MEMO",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("reflection prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "===QUOTE===") {
		t.Fatalf("quote blocks must be stripped from replies")
	}
}
