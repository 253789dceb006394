package negotiation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/KaioH3/negotiation-agent/internal/quote"
)

// Auditor verdicts.
const (
	VerdictApproved = "APPROVED"
	VerdictFlagged  = "FLAGGED"
)

var (
	verdictPattern    = regexp.MustCompile(`(?i)^VERDICT:\s*(APPROVED|FLAGGED)\b`)
	confidencePattern = regexp.MustCompile(`(?i)^CONFIDENCE:\s*(\d{1,3})`)
	auditPattern      = regexp.MustCompile(`(?i)^AUDIT:\s*(.*)$`)
	riskPattern       = regexp.MustCompile(`(?i)^RISK_FLAGS:\s*(.*)$`)
)

// BuildDecisionPrompt asks the buyer to narrate why winner was selected.
func BuildDecisionPrompt(negotiations map[string]*SupplierNegotiation, scores map[string]Score, winner string) string {
	var b strings.Builder
	b.WriteString("You are the sourcing manager writing the final supplier selection report.\n\n")
	b.WriteString(scoreSummary(negotiations, scores))
	winnerName := supplierName(negotiations, winner)
	fmt.Fprintf(&b, "\n\nSELECTED SUPPLIER: %s (Overall score: %.1f/10)\n\n", winnerName, scores[winner].Total)
	fmt.Fprintf(&b, `Write a concise 3-paragraph rationale:
Paragraph 1: Why %s was selected, naming their strongest differentiator.
Paragraph 2: Trade-offs acknowledged vs the other suppliers.
Paragraph 3: Recommended next steps for the partnership.

Be direct. Reference actual scores and numbers.`, winnerName)
	return b.String()
}

// BuildAuditPrompt asks the auditor to challenge a decision.
func BuildAuditPrompt(negotiations map[string]*SupplierNegotiation, scores map[string]Score, winner, reasoning string) string {
	var b strings.Builder
	b.WriteString("Audit the following supplier selection.\n\n")
	b.WriteString(scoreSummary(negotiations, scores))
	fmt.Fprintf(&b, "\n\nSELECTED SUPPLIER: %s (Overall score: %.1f/10)\n\n", supplierName(negotiations, winner), scores[winner].Total)
	b.WriteString("Decision rationale:\n")
	b.WriteString(strings.TrimSpace(reasoning))
	b.WriteString("\n\nRespond in the mandated VERDICT / CONFIDENCE / AUDIT / RISK_FLAGS format.")
	return b.String()
}

// ParseAudit reads an auditor reply. Missing fields stay empty; Confidence
// is -1 when absent.
func ParseAudit(text string) *Audit {
	a := &Audit{Confidence: -1, Raw: strings.TrimSpace(text)}
	inRisks := false
	var summary []string
	inSummary := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case verdictPattern.MatchString(line):
			a.Verdict = strings.ToUpper(verdictPattern.FindStringSubmatch(line)[1])
			inRisks, inSummary = false, false
		case confidencePattern.MatchString(line):
			if n, err := strconv.Atoi(confidencePattern.FindStringSubmatch(line)[1]); err == nil && n <= 100 {
				a.Confidence = n
			}
			inRisks, inSummary = false, false
		case auditPattern.MatchString(line):
			if first := strings.TrimSpace(auditPattern.FindStringSubmatch(line)[1]); first != "" {
				summary = append(summary, first)
			}
			inRisks, inSummary = false, true
		case riskPattern.MatchString(line):
			if first := strings.TrimSpace(riskPattern.FindStringSubmatch(line)[1]); first != "" {
				a.RiskFlags = append(a.RiskFlags, strings.TrimSpace(strings.TrimLeft(first, "-*")))
			}
			inRisks, inSummary = true, false
		case line == "":
			inSummary = false
		case inRisks:
			if flag := strings.TrimSpace(strings.TrimLeft(line, "-*")); flag != "" {
				a.RiskFlags = append(a.RiskFlags, flag)
			}
		case inSummary:
			summary = append(summary, line)
		}
	}
	a.Summary = strings.Join(summary, " ")
	return a
}

func scoreSummary(negotiations map[string]*SupplierNegotiation, scores map[string]Score) string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		n, ok := negotiations[id]
		if !ok {
			continue
		}
		s := scores[id]
		total, lead := "N/A", "?"
		if q := n.FinalQuote; q != nil {
			total = quote.WholeDollars(q.TotalValue)
			lead = strconv.Itoa(q.LeadTimeDays)
		}
		lines = append(lines, fmt.Sprintf("%s: Quality %.1f/5.0 | Lead time %s days | Total %s\n  Scores: Price %.1f | Quality %.1f | Lead time %.1f | Payment %.1f | Overall %.1f/10",
			n.Profile.Name, n.Profile.Quality, lead, total, s.Price, s.Quality, s.LeadTime, s.Payment, s.Total))
	}
	return strings.Join(lines, "\n\n")
}

func supplierName(negotiations map[string]*SupplierNegotiation, id string) string {
	if n, ok := negotiations[id]; ok && n.Profile.Name != "" {
		return n.Profile.Name
	}
	return id
}
