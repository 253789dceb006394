package responder

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/quote"
)

// PersonaKind groups personas for instrumentation.
type PersonaKind string

const (
	KindSupplier PersonaKind = "supplier"
	KindBuyer    PersonaKind = "buyer"
	KindAuditor  PersonaKind = "auditor"
)

// Persona is who a responder speaks as. Turns authored by Role are the
// persona's own earlier replies; every other turn is input to it.
type Persona struct {
	ID           string
	Kind         PersonaKind
	Role         Role
	Name         string
	Instructions string
	// Profile is set for supplier personas.
	Profile *catalog.SupplierProfile
}

// SupplierPersona builds the sales-representative persona for one supplier.
// codes lists the product codes the persona must price in its quote block.
func SupplierPersona(profile catalog.SupplierProfile, codes []string) Persona {
	deviation := int(math.Round(math.Abs(profile.PricingMultiplier-1) * 100))
	direction := "below"
	if profile.PricingMultiplier > 1 {
		direction = "above"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a senior sales representative for %s, a manufacturing supplier.\n\n", profile.Name)
	b.WriteString("Company profile:\n")
	fmt.Fprintf(&b, "- Quality rating: %.1f/5.0\n", profile.Quality)
	fmt.Fprintf(&b, "- Lead time: %s business days\n", profile.LeadTimeRange)
	fmt.Fprintf(&b, "- Standard payment terms: %s\n", profile.PaymentTerms)
	fmt.Fprintf(&b, "- Pricing: typically %d%% %s the brand's target FOB\n", deviation, direction)
	fmt.Fprintf(&b, "- Core strength: %s\n\n", profile.Strength)
	b.WriteString(`Negotiation rules:
- Maximum discount: 5% off your initial quote (8% maximum only if losing the order)
- Never compromise your certified quality spec
- Always confirm lead time and payment terms explicitly
- Be professional and persuasive: you want this order

The brand will send you a Request for Quotation (RFQ) that may include a Bill of Materials (BOM)
for each product. Use the actual component names from the BOM when suggesting substitutions.

MANDATORY: End every response with a quote block in exactly this format (no extra lines inside):
`)
	b.WriteString(quote.Template(codes))
	if profile.Tactics != "" {
		b.WriteString("\n\nYour negotiation tactics:\n")
		b.WriteString(profile.Tactics)
	}
	p := profile
	return Persona{
		ID:           profile.ID,
		Kind:         KindSupplier,
		Role:         RoleSupplier,
		Name:         profile.Name,
		Instructions: b.String(),
		Profile:      &p,
	}
}

// BuyerPersona builds the brand sourcing manager persona.
func BuyerPersona(suppliers []catalog.SupplierProfile) Persona {
	var b strings.Builder
	b.WriteString("You are a professional sourcing manager for a footwear brand. You negotiate with suppliers to secure the best deal across quality, cost, lead time, and payment terms.\n\n")
	b.WriteString("Internal supplier intelligence (confidential):\n")
	for _, s := range suppliers {
		fmt.Fprintf(&b, "- %s: Quality Rating %.1f/5.0, %s\n", s.Name, s.Quality, s.Strength)
	}
	b.WriteString(`
Your negotiation priorities (weighted):
1. Total landed cost: stay at or below target FOB (35% weight)
2. Quality assurance: minimize defect risk (30% weight)
3. Lead time: under 35 days strongly preferred (25% weight)
4. Payment terms: a 33/33/33 structure improves cash flow vs 30/70 (10% weight)

When counter-negotiating:
- Reference the competitive landscape without revealing other suppliers' quotes
- Ask for sharpened pricing and confirmed timelines
- Stay firm on quality standards: no material downgrades that affect durability

When writing analysis or the final decision summary:
- Be direct and analytical
- Explain trade-offs clearly
- Reference actual numbers`)
	return Persona{
		ID:           "buyer",
		Kind:         KindBuyer,
		Role:         RoleBuyer,
		Name:         "Brand Sourcing Team",
		Instructions: b.String(),
	}
}

// AuditorPersona builds the independent procurement auditor persona.
func AuditorPersona() Persona {
	return Persona{
		ID:   "auditor",
		Kind: KindAuditor,
		Role: RoleBuyer,
		Name: "Decision Auditor",
		Instructions: `You are an independent procurement auditor. Your sole job is to challenge supplier selection decisions: catch logical errors, overlooked risks, and decisions that contradict the stated priorities.

Evaluation criteria (mandatory weights):
- Price/cost: 35% of total score
- Quality: 30% of total score
- Lead time: 25% of total score
- Payment terms: 10% of total score

Your audit checklist:
1. Math check: do the weighted totals match the raw scores?
2. Priority alignment: does the winner excel on the highest-weight criteria?
3. Risk flags: very slow lead time, unusual payment demands, substitutions that compromise quality.
4. Margin check: is there a clear winner or is the margin too thin to be decisive?

Output format (strict, no deviation):
VERDICT: APPROVED or FLAGGED
CONFIDENCE: NN%
AUDIT: [2-3 sentences referencing actual numbers]
RISK_FLAGS:
- [flag, or "None identified"]`,
	}
}
