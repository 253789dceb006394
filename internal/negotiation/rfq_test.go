package negotiation

import (
	"strings"
	"testing"
)

func TestResolveRFQAppliesQuantities(t *testing.T) {
	cat := defaultCatalog(t)
	rfq := ResolveRFQ(cat, Request{
		Quantities: map[string]int{"FSH013": 2000, "FSH014": 0, "FSH016": -5, "XYZ123": 100},
		Note:       "  recycled packaging  ",
	})
	if len(rfq.Products) != len(cat.Products()) {
		t.Fatalf("expected every catalog product, got %d lines", len(rfq.Products))
	}
	qty := rfq.Quantities()
	if qty["FSH013"] != 2000 {
		t.Fatalf("FSH013 = %d, want 2000", qty["FSH013"])
	}
	for _, code := range []string{"FSH014", "FSH016"} {
		p, _ := cat.Product(code)
		if qty[code] != p.DefaultQuantity {
			t.Fatalf("%s = %d, want default %d", code, qty[code], p.DefaultQuantity)
		}
	}
	if _, ok := qty["XYZ123"]; ok {
		t.Fatalf("unknown code must be ignored")
	}
	if rfq.Note != "recycled packaging" {
		t.Fatalf("note = %q", rfq.Note)
	}
	var want float64
	for _, line := range rfq.Products {
		want += line.TargetPrice.InexactFloat64() * float64(line.Quantity)
	}
	if got := rfq.EstimatedValue.InexactFloat64(); got < want-0.01 || got > want+0.01 {
		t.Fatalf("estimated value = %.2f, want %.2f", got, want)
	}
}

func TestBuildRFQRichIncludesBillOfMaterials(t *testing.T) {
	cat := defaultCatalog(t)
	rfq := ResolveRFQ(cat, Request{Note: "Prefer vegan leather"})
	text := BuildRFQ(rfq, cat, "EastCraft Manufacturing", VariantRich)
	for _, want := range []string{
		"Dear EastCraft Manufacturing team,",
		"Pulse Pro High-Top (FSH013): 10,000 units at target FOB $14.49/unit",
		"Total estimated value at target FOB: $",
		"Sourcing note: Prefer vegan leather",
		"BILL OF MATERIALS (per SKU):",
		"Premium Microfiber PU Leather (1.4mm microfiber base, PU top coat)",
		"Aluminum Gunmetal Eyelets (10 per pair)",
		"5. Any material substitution proposals, referencing the exact component names above",
		"Best regards,\n" + BuyerSignature,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("RFQ missing %q:\n%s", want, text)
		}
	}
}

func TestBuildRFQLegacyOmitsBillOfMaterials(t *testing.T) {
	cat := defaultCatalog(t)
	text := BuildRFQ(ResolveRFQ(cat, Request{}), cat, "SwiftMake Footwear Co.", VariantLegacy)
	if strings.Contains(text, "BILL OF MATERIALS") || strings.Contains(text, "Sourcing note") {
		t.Fatalf("legacy RFQ carries rich sections:\n%s", text)
	}
	for _, field := range []string{"1. Unit pricing", "2. Total order value", "3. Lead time", "4. Payment terms", "5. Any material substitution proposals"} {
		if !strings.Contains(text, field) {
			t.Fatalf("legacy RFQ missing %q", field)
		}
	}
}

const sampleMemo = `=== EastCraft Manufacturing ===
Round 1 summary: cheapest offer.
Round 2 strategy: push lead time below 45 days.

=== PremiumStep Industries ===
Round 1 summary: premium pricing.
Round 2 strategy: ask for 5% off.`

func TestMemoSection(t *testing.T) {
	got := MemoSection(sampleMemo, "EastCraft Manufacturing")
	if !strings.HasPrefix(got, "Round 1 summary: cheapest offer.") || strings.Contains(got, "PremiumStep") {
		t.Fatalf("unexpected section %q", got)
	}
	if last := MemoSection(sampleMemo, "PremiumStep Industries"); !strings.HasSuffix(last, "ask for 5% off.") {
		t.Fatalf("last section should run to the end, got %q", last)
	}
	if MemoSection(sampleMemo, "SwiftMake Footwear Co.") != "" {
		t.Fatalf("missing section must be empty")
	}
}

func TestBuildCounterVariants(t *testing.T) {
	round1 := quoteReply("120000", 45, map[string]string{"FSH013": "12.00"})
	rich := BuildCounter("EastCraft Manufacturing", round1, sampleMemo, VariantRich)
	for _, want := range []string{
		"Based on our analysis:\nRound 1 summary: cheapest offer.",
		"your round 1 offer totals $120,000 with a 45-day lead time",
		"sharpen your unit costs",
		"reconfirm your committed timeline",
		"flexibility",
	} {
		if !strings.Contains(rich, want) {
			t.Fatalf("rich counter missing %q:\n%s", want, rich)
		}
	}
	if strings.Contains(rich, "PremiumStep") {
		t.Fatalf("rich counter leaked another supplier's section")
	}

	noSection := BuildCounter("SwiftMake Footwear Co.", "no quote here", sampleMemo, VariantRich)
	if strings.Contains(noSection, "Based on our analysis") || strings.Contains(noSection, "your round 1 offer") {
		t.Fatalf("counter without memo section or quote should omit both:\n%s", noSection)
	}

	legacy := BuildCounter("EastCraft Manufacturing", round1, sampleMemo, VariantLegacy)
	if strings.Contains(legacy, "cheapest offer") {
		t.Fatalf("legacy counter must not quote the memo")
	}
}
