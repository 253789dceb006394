package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultCatalog(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if got := len(cat.Products()); got != 5 {
		t.Fatalf("expected 5 products, got %d", got)
	}
	if got := len(cat.Suppliers()); got != 3 {
		t.Fatalf("expected 3 suppliers, got %d", got)
	}
	p, ok := cat.Product("FSH019")
	if !ok {
		t.Fatalf("expected FSH019 in catalog")
	}
	if !p.TargetPrice.Equal(decimal.RequireFromString("51.69")) {
		t.Fatalf("unexpected target price %s", p.TargetPrice)
	}
	if len(p.Materials()) == 0 || len(p.Trims()) == 0 {
		t.Fatalf("expected FSH019 to carry materials and trims, got %+v", p.Components)
	}
	s, ok := cat.Supplier("supplier1")
	if !ok || s.PaymentScore != 9 {
		t.Fatalf("expected supplier1 payment score 9, got %+v", s)
	}
	if strings.TrimSpace(s.Tactics) == "" {
		t.Fatalf("expected supplier tactics to load")
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	products := cat.Products()
	products[0].Name = "mutated"
	products[0].Components[0].Name = "mutated"
	suppliers := cat.Suppliers()
	suppliers[0].Quality = 0
	again, _ := cat.Product(products[0].Code)
	if again.Name == "mutated" || again.Components[0].Name == "mutated" {
		t.Fatalf("catalog product was mutated through a returned copy")
	}
	if s, _ := cat.Supplier(suppliers[0].ID); s.Quality == 0 {
		t.Fatalf("catalog supplier was mutated through a returned copy")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `products:
  - code: ABC100
    name: Widget
    target_price: "2.50"
    default_quantity: 100
suppliers:
  - id: acme
    name: Acme
    quality: 3.5
    pricing_multiplier: 1.1
    lead_time_min: 20
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cat, err := Load(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if codes := cat.Codes(); len(codes) != 1 || codes[0] != "ABC100" {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestCatalogValidation(t *testing.T) {
	good := Product{Code: "ABC100", Name: "Widget", TargetPrice: decimal.NewFromInt(2), DefaultQuantity: 10}
	supplier := SupplierProfile{ID: "acme", Name: "Acme", Quality: 4, PricingMultiplier: 1}
	cases := []struct {
		name      string
		products  []Product
		suppliers []SupplierProfile
		want      string
	}{
		{"no products", nil, []SupplierProfile{supplier}, "at least one product"},
		{"no suppliers", []Product{good}, nil, "at least one supplier"},
		{"bad code", []Product{{Code: "widget", Name: "W", TargetPrice: decimal.NewFromInt(1), DefaultQuantity: 1}}, []SupplierProfile{supplier}, "must look like"},
		{"duplicate code", []Product{good, good}, []SupplierProfile{supplier}, "duplicate product"},
		{"duplicate supplier", []Product{good}, []SupplierProfile{supplier, supplier}, "duplicate supplier"},
		{"quality range", []Product{good}, []SupplierProfile{{ID: "x", Name: "X", Quality: 7, PricingMultiplier: 1}}, "quality"},
		{"zero price", []Product{{Code: "ABC101", Name: "W", DefaultQuantity: 1}}, []SupplierProfile{supplier}, "target_price"},
	}
	for _, tc := range cases {
		_, err := New(tc.products, tc.suppliers)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}
