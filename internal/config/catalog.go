package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// minPrice is the smallest order Razorpay accepts.
var minPrice = decimal.NewFromInt(1)

// Product is a sellable tempeh pack.
type Product struct {
	SKU         string `yaml:"sku"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Weight      string `yaml:"weight"`
	ImageURL    string `yaml:"image_url"`
	PriceRupees string `yaml:"price"`
	MaxQuantity int    `yaml:"max_quantity"`

	Price decimal.Decimal `yaml:"-"`
}

// Catalog is the product list served by the storefront.
type Catalog struct {
	Brand    string     `yaml:"brand"`
	Currency string     `yaml:"currency"`
	Products []*Product `yaml:"products"`
}

// LoadCatalogFromPath loads the catalog from a YAML file.
func LoadCatalogFromPath(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := cat.prepare(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// LoadCatalogOrDefault loads the catalog or returns the built-in one if the
// file is missing. A file that exists but is invalid is still an error.
func LoadCatalogOrDefault(path string) (*Catalog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultCatalog(), nil
	}
	return LoadCatalogFromPath(path)
}

// DefaultCatalog returns the built-in single-product catalog.
func DefaultCatalog() *Catalog {
	cat := &Catalog{
		Brand:    "Mrs. Bean Tempeh",
		Currency: "INR",
		Products: []*Product{
			{
				SKU:         "TEMPEH-200",
				Name:        "Mrs. Bean Tempeh (200 g)",
				Description: "Fresh, hand-cultured soybean tempeh. Keep refrigerated and use within 5 days.",
				Weight:      "200 g",
				ImageURL:    "/static/tempeh.svg",
				PriceRupees: "120",
				MaxQuantity: 10,
			},
		},
	}
	if err := cat.prepare(); err != nil {
		panic(err)
	}
	return cat
}

func (c *Catalog) prepare() error {
	if c.Currency == "" {
		c.Currency = "INR"
	}
	if len(c.Products) == 0 {
		return fmt.Errorf("catalog: at least one product is required")
	}

	seen := make(map[string]bool, len(c.Products))
	for _, p := range c.Products {
		if p.SKU == "" || p.Name == "" {
			return fmt.Errorf("catalog: product sku and name are required")
		}
		if seen[p.SKU] {
			return fmt.Errorf("catalog: duplicate sku %s", p.SKU)
		}
		seen[p.SKU] = true

		price, err := decimal.NewFromString(strings.TrimSpace(p.PriceRupees))
		if err != nil {
			return fmt.Errorf("catalog: product %s: invalid price %q", p.SKU, p.PriceRupees)
		}
		p.Price = price.Round(2)
		if p.Price.LessThan(minPrice) {
			return fmt.Errorf("catalog: product %s: price %s is below the ₹1 Razorpay minimum", p.SKU, p.PriceRupees)
		}

		if p.MaxQuantity <= 0 {
			p.MaxQuantity = 10
		}
	}
	return nil
}

// Default returns the featured product.
func (c *Catalog) Default() *Product {
	return c.Products[0]
}

// Lookup finds a product by SKU. An empty SKU selects the default product.
func (c *Catalog) Lookup(sku string) (*Product, bool) {
	if sku == "" {
		return c.Default(), true
	}
	for _, p := range c.Products {
		if p.SKU == sku {
			return p, true
		}
	}
	return nil, false
}

// Grams parses Weight ("200 g", "1 kg", "250g") into grams. Unparseable
// weights return 0.
func (p *Product) Grams() int {
	w := strings.ToLower(strings.ReplaceAll(p.Weight, " ", ""))
	unit := 1
	switch {
	case strings.HasSuffix(w, "kg"):
		unit, w = 1000, strings.TrimSuffix(w, "kg")
	case strings.HasSuffix(w, "g"):
		w = strings.TrimSuffix(w, "g")
	}
	d, err := decimal.NewFromString(w)
	if err != nil || !d.IsPositive() {
		return 0
	}
	return int(d.Mul(decimal.NewFromInt(int64(unit))).Round(0).IntPart())
}
