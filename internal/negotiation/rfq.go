package negotiation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/quote"
)

// BuyerSignature closes every buyer-authored message.
const BuyerSignature = "Brand Sourcing Team"

// ResolveRFQ applies the request quantities to the catalog. Every catalog
// product is requested; codes the catalog does not know are ignored.
func ResolveRFQ(cat *catalog.Catalog, req Request) RFQ {
	rfq := RFQ{Note: strings.TrimSpace(req.Note), EstimatedValue: decimal.Zero}
	for _, p := range cat.Products() {
		qty := p.DefaultQuantity
		if requested, ok := req.Quantities[p.Code]; ok && requested > 0 {
			qty = requested
		}
		rfq.Products = append(rfq.Products, RFQLine{
			Code:        p.Code,
			Name:        p.Name,
			Quantity:    qty,
			TargetPrice: p.TargetPrice,
		})
		rfq.EstimatedValue = rfq.EstimatedValue.Add(p.TargetPrice.Mul(decimal.NewFromInt(int64(qty))))
	}
	return rfq
}

// BuildRFQ renders the round-one request for one supplier.
func BuildRFQ(rfq RFQ, cat *catalog.Catalog, supplierName string, variant Variant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s team,\n\n", supplierName)
	b.WriteString("We are requesting a formal quotation for the following footwear products:\n\n")
	b.WriteString("QUANTITIES REQUIRED:\n")
	for _, line := range rfq.Products {
		fmt.Fprintf(&b, "  - %s (%s): %s units at target FOB %s/unit\n",
			line.Name, line.Code, quote.Units(line.Quantity), quote.Dollars(line.TargetPrice))
	}
	fmt.Fprintf(&b, "\nTotal estimated value at target FOB: %s\n", quote.WholeDollars(rfq.EstimatedValue))
	if rfq.Note != "" {
		fmt.Fprintf(&b, "\nSourcing note: %s\n", rfq.Note)
	}
	if variant != VariantLegacy {
		b.WriteString("\nBILL OF MATERIALS (per SKU):\n")
		b.WriteString(billOfMaterials(rfq, cat))
	}
	b.WriteString(`
Please provide:
1. Unit pricing per SKU
2. Total order value
3. Lead time (calendar days from PO confirmation to ex-factory)
4. Payment terms
5. Any material substitution proposals`)
	if variant != VariantLegacy {
		b.WriteString(", referencing the exact component names above")
	}
	b.WriteString("\n\nWe are evaluating multiple suppliers simultaneously.\n\n")
	fmt.Fprintf(&b, "Best regards,\n%s", BuyerSignature)
	return b.String()
}

func billOfMaterials(rfq RFQ, cat *catalog.Catalog) string {
	var sections []string
	for _, line := range rfq.Products {
		p, ok := cat.Product(line.Code)
		if !ok {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "  %s (%s), target FOB %s/unit\n", p.Name, p.Code, quote.Dollars(p.TargetPrice))
		b.WriteString("    Materials:\n")
		for _, c := range p.Materials() {
			fmt.Fprintf(&b, "      * %s\n", describeComponent(c.Name, c.Composition, c.Note))
		}
		b.WriteString("    Components/Trims:\n")
		for _, c := range p.Trims() {
			fmt.Fprintf(&b, "      * %s\n", describeComponent(c.Name, "", c.Note))
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n")
}

func describeComponent(name, composition, note string) string {
	var details []string
	if composition != "" {
		details = append(details, composition)
	}
	if note != "" {
		details = append(details, note)
	}
	if len(details) == 0 {
		return name
	}
	return name + " (" + strings.Join(details, "; ") + ")"
}
