// Package catalog models the read-only sourcing catalog: the products a buyer
// can request and the supplier profiles it negotiates with. A Catalog is built
// once, validated, and then handed to the negotiation engine by value of a
// pointer that nothing mutates.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/KaioH3/negotiation-agent/internal/quote"
)

// ComponentKindMaterial marks bill-of-materials entries that are raw materials.
const ComponentKindMaterial = "material"

//go:embed default.yaml
var defaultCatalogYAML []byte

// Component is one bill-of-materials line.
type Component struct {
	Name        string `yaml:"name" json:"name"`
	Kind        string `yaml:"kind" json:"kind"`
	Composition string `yaml:"composition,omitempty" json:"composition,omitempty"`
	Note        string `yaml:"note,omitempty" json:"note,omitempty"`
}

// Product is a requestable SKU.
type Product struct {
	Code            string          `yaml:"code" json:"code"`
	Name            string          `yaml:"name" json:"name"`
	TargetPrice     decimal.Decimal `yaml:"target_price" json:"targetPrice"`
	DefaultQuantity int             `yaml:"default_quantity" json:"defaultQuantity"`
	Components      []Component     `yaml:"components,omitempty" json:"components,omitempty"`
}

// Materials returns the BOM entries of kind material.
func (p Product) Materials() []Component {
	var out []Component
	for _, c := range p.Components {
		if c.Kind == ComponentKindMaterial {
			out = append(out, c)
		}
	}
	return out
}

// Trims returns every BOM entry that is not a material.
func (p Product) Trims() []Component {
	var out []Component
	for _, c := range p.Components {
		if c.Kind != ComponentKindMaterial {
			out = append(out, c)
		}
	}
	return out
}

// SupplierProfile describes one supplier the buyer negotiates with.
type SupplierProfile struct {
	ID                string  `yaml:"id" json:"id"`
	Name              string  `yaml:"name" json:"name"`
	Quality           float64 `yaml:"quality" json:"quality"`
	PricingMultiplier float64 `yaml:"pricing_multiplier" json:"pricingMultiplier"`
	LeadTimeRange     string  `yaml:"lead_time_range" json:"leadTimeRange"`
	LeadTimeMin       int     `yaml:"lead_time_min" json:"leadTimeMin"`
	PaymentTerms      string  `yaml:"payment_terms" json:"paymentTerms"`
	Strength          string  `yaml:"strength" json:"strength"`
	// PaymentScore is the fixed 0-10 payment rating used by scoring. Zero
	// means "not rated" and scoring substitutes its default.
	PaymentScore float64 `yaml:"payment_score,omitempty" json:"paymentScore,omitempty"`
	Tactics      string  `yaml:"tactics,omitempty" json:"-"`
}

type catalogFile struct {
	Products  []Product         `yaml:"products"`
	Suppliers []SupplierProfile `yaml:"suppliers"`
}

// Catalog is an immutable, validated set of products and suppliers.
type Catalog struct {
	products  []Product
	suppliers []SupplierProfile
	byCode    map[string]int
	byID      map[string]int
}

// New validates the inputs and returns a catalog holding private copies.
func New(products []Product, suppliers []SupplierProfile) (*Catalog, error) {
	c := &Catalog{
		products:  make([]Product, 0, len(products)),
		suppliers: make([]SupplierProfile, 0, len(suppliers)),
		byCode:    make(map[string]int, len(products)),
		byID:      make(map[string]int, len(suppliers)),
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("catalog: at least one product is required")
	}
	if len(suppliers) == 0 {
		return nil, fmt.Errorf("catalog: at least one supplier is required")
	}
	for i, p := range products {
		p = p.normalized()
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("catalog: products[%d]: %w", i, err)
		}
		if _, dup := c.byCode[p.Code]; dup {
			return nil, fmt.Errorf("catalog: duplicate product code %s", p.Code)
		}
		c.byCode[p.Code] = len(c.products)
		c.products = append(c.products, p)
	}
	for i, s := range suppliers {
		s = s.normalized()
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("catalog: suppliers[%d]: %w", i, err)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate supplier id %s", s.ID)
		}
		c.byID[s.ID] = len(c.suppliers)
		c.suppliers = append(c.suppliers, s)
	}
	return c, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	return New(file.Products, file.Suppliers)
}

// Load reads and parses the YAML catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in footwear catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalogYAML)
}

// Products returns the products in catalog order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	for i, p := range c.products {
		out[i] = p.clone()
	}
	return out
}

// Suppliers returns the supplier profiles in catalog order.
func (c *Catalog) Suppliers() []SupplierProfile {
	out := make([]SupplierProfile, len(c.suppliers))
	copy(out, c.suppliers)
	return out
}

// Product looks up a product by code.
func (c *Catalog) Product(code string) (Product, bool) {
	idx, ok := c.byCode[strings.TrimSpace(code)]
	if !ok {
		return Product{}, false
	}
	return c.products[idx].clone(), true
}

// Supplier looks up a supplier profile by id.
func (c *Catalog) Supplier(id string) (SupplierProfile, bool) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return SupplierProfile{}, false
	}
	return c.suppliers[idx], true
}

// Codes returns the product codes in catalog order.
func (c *Catalog) Codes() []string {
	codes := make([]string, len(c.products))
	for i, p := range c.products {
		codes[i] = p.Code
	}
	return codes
}

func (p Product) normalized() Product {
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	p = p.clone()
	for i := range p.Components {
		p.Components[i].Name = strings.TrimSpace(p.Components[i].Name)
		p.Components[i].Kind = strings.ToLower(strings.TrimSpace(p.Components[i].Kind))
	}
	return p
}

func (p Product) clone() Product {
	if p.Components != nil {
		comps := make([]Component, len(p.Components))
		copy(comps, p.Components)
		p.Components = comps
	}
	return p
}

func (p Product) validate() error {
	if !quote.ValidCode(p.Code) {
		return fmt.Errorf("code %q must look like ABC123", p.Code)
	}
	if p.Name == "" {
		return fmt.Errorf("%s: name is required", p.Code)
	}
	if !p.TargetPrice.IsPositive() {
		return fmt.Errorf("%s: target_price must be positive", p.Code)
	}
	if p.DefaultQuantity <= 0 {
		return fmt.Errorf("%s: default_quantity must be positive", p.Code)
	}
	for i, comp := range p.Components {
		if comp.Name == "" {
			return fmt.Errorf("%s: components[%d]: name is required", p.Code, i)
		}
	}
	return nil
}

func (s SupplierProfile) normalized() SupplierProfile {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.PaymentTerms = strings.TrimSpace(s.PaymentTerms)
	s.Strength = strings.TrimSpace(s.Strength)
	s.Tactics = strings.TrimSpace(s.Tactics)
	return s
}

func (s SupplierProfile) validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("%s: name is required", s.ID)
	}
	if s.Quality < 0 || s.Quality > 5 {
		return fmt.Errorf("%s: quality must be within 0-5", s.ID)
	}
	if s.PricingMultiplier <= 0 {
		return fmt.Errorf("%s: pricing_multiplier must be positive", s.ID)
	}
	if s.LeadTimeMin < 0 {
		return fmt.Errorf("%s: lead_time_min must not be negative", s.ID)
	}
	if s.PaymentScore < 0 || s.PaymentScore > 10 {
		return fmt.Errorf("%s: payment_score must be within 0-10", s.ID)
	}
	return nil
}
