package feed

import (
	"strconv"
	"strings"

	"github.com/ammosight/catalog-cli/internal/model"
)

// Header aliases seen across retailer feeds, mapped to canonical field names.
// Matching is first-alias-wins against the row's lowercased keys.
var (
	titleAliases   = []string{"title", "name", "product_name", "product", "description"}
	priceAliases   = []string{"price", "sale_price", "cost", "msrp", "price_usd"}
	upcAliases     = []string{"upc", "upc_code", "barcode", "gtin", "ean"}
	stockAliases   = []string{"in_stock", "stock", "availability", "available", "instock"}
	brandAliases   = []string{"brand", "manufacturer", "mfg", "make"}
	caliberAliases = []string{"caliber", "calibre", "cal"}
)

// Coerce turns one raw row into a typed record. Heterogeneous price and stock
// representations are normalized here; a field that fails coercion is treated
// as absent, never defaulted. UPC is kept only when format-valid.
func Coerce(row model.RawRow) model.ParsedRecord {
	rec := model.ParsedRecord{
		Ordinal: row.Ordinal,
		Raw:     row,
	}

	rec.Title = strings.TrimSpace(lookup(row.Fields, titleAliases))

	if price, ok := ParsePrice(lookup(row.Fields, priceAliases)); ok {
		rec.Price = price
		rec.HasPrice = true
	}

	if stock, ok := ParseStock(lookup(row.Fields, stockAliases)); ok {
		rec.InStock = &stock
	}

	if upc := NormalizeUPC(lookup(row.Fields, upcAliases)); ValidUPC(upc) {
		rec.UPC = upc
	}

	rec.Brand = strings.TrimSpace(lookup(row.Fields, brandAliases))
	rec.Caliber = strings.TrimSpace(lookup(row.Fields, caliberAliases))

	return rec
}

func lookup(fields map[string]string, aliases []string) string {
	for _, key := range aliases {
		if v, ok := fields[key]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ParsePrice coerces heterogeneous price strings ("$12.99", "1,299.00 USD",
// "12.99") to a float. Returns false when the value is absent or unparsable.
func ParsePrice(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, "USD")
	s = strings.TrimSuffix(s, "USD")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	price, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// ParseStock coerces heterogeneous stock flags ("yes"/"no", "1"/"0",
// "true"/"false", "in stock"/"out of stock"). Returns false when the value is
// absent or unrecognized.
func ParseStock(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "1", "true", "in stock", "instock", "available":
		return true, true
	case "no", "n", "0", "false", "out of stock", "outofstock", "unavailable", "backorder":
		return false, true
	default:
		return false, false
	}
}

// NormalizeUPC strips spacing and hyphens commonly injected by feed exports.
func NormalizeUPC(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// ValidUPC reports whether s is a format-valid product identifier: a numeric
// string of 12 or 13 digits.
func ValidUPC(s string) bool {
	if len(s) != 12 && len(s) != 13 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
