package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	cat := DefaultCatalog()
	p := cat.Default()

	assert.Equal(t, "INR", cat.Currency)
	assert.Equal(t, "TEMPEH-200", p.SKU)
	assert.Equal(t, "120", p.Price.String())
	assert.Equal(t, 10, p.MaxQuantity)
}

func TestLoadCatalogOrDefault_MissingFile(t *testing.T) {
	cat, err := LoadCatalogOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Mrs. Bean Tempeh", cat.Brand)
}

func TestLoadCatalogFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	yml := `
brand: Mrs. Bean
products:
  - sku: TEMPEH-200
    name: Tempeh 200g
    price: "125.50"
  - sku: TEMPEH-500
    name: Tempeh 500g
    price: 280
    max_quantity: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cat, err := LoadCatalogFromPath(path)
	require.NoError(t, err)
	require.Len(t, cat.Products, 2)

	p, ok := cat.Lookup("TEMPEH-500")
	require.True(t, ok)
	assert.Equal(t, "280", p.Price.String())
	assert.Equal(t, 4, p.MaxQuantity)

	def, ok := cat.Lookup("")
	require.True(t, ok)
	assert.Equal(t, "125.5", def.Price.String())
	assert.Equal(t, 10, def.MaxQuantity)

	_, ok = cat.Lookup("TOFU")
	assert.False(t, ok)
}

func TestLoadCatalogFromPath_Invalid(t *testing.T) {
	tests := map[string]string{
		"no products":   "brand: x\n",
		"bad price":     "products:\n  - sku: A\n    name: A\n    price: abc\n",
		"zero price":    "products:\n  - sku: A\n    name: A\n    price: 0\n",
		"negative":      "products:\n  - sku: A\n    name: A\n    price: -5\n",
		"under a rupee": "products:\n  - sku: A\n    name: A\n    price: \"0.99\"\n",
		"rounds under":  "products:\n  - sku: A\n    name: A\n    price: \"0.994\"\n",
		"duplicate sku": "products:\n  - {sku: A, name: A, price: 1}\n  - {sku: A, name: B, price: 2}\n",
	}

	for name, yml := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.yaml")
			require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
			_, err := LoadCatalogFromPath(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalogFromPath_RupeeMinimum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products:\n  - sku: A\n    name: A\n    price: \"0.995\"\n"), 0o600))
	c, err := LoadCatalogFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "1", c.Default().Price.String())
}

func TestProductGrams(t *testing.T) {
	cases := map[string]int{
		"200 g":  200,
		"250g":   250,
		"1 kg":   1000,
		"1.5kg":  1500,
		"":       0,
		"a pack": 0,
	}
	for weight, want := range cases {
		p := &Product{Weight: weight}
		if got := p.Grams(); got != want {
			t.Errorf("Grams(%q) = %d, want %d", weight, got, want)
		}
	}
}
