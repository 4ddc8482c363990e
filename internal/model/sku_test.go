package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetailerSku_Fingerprint(t *testing.T) {
	base := RetailerSku{Title: "Federal 9mm 115gr", Price: 12.99, UPC: "604544617375", InStock: true}

	// Identity and matching state do not affect the hash.
	variant := base
	variant.ID = "other-id"
	variant.RunID = "run-99"
	variant.CanonicalID = "canon-1"
	assert.Equal(t, base.Fingerprint(), variant.Fingerprint())

	// Title normalization: case and surrounding whitespace are ignored.
	variant = base
	variant.Title = "  FEDERAL 9mm 115gr "
	assert.Equal(t, base.Fingerprint(), variant.Fingerprint())

	// Commercial fields do affect it.
	variant = base
	variant.Price = 13.99
	assert.NotEqual(t, base.Fingerprint(), variant.Fingerprint())

	variant = base
	variant.InStock = false
	assert.NotEqual(t, base.Fingerprint(), variant.Fingerprint())
}

func TestRetailerSku_Key(t *testing.T) {
	withUPC := RetailerSku{Title: "Federal 9mm", UPC: "604544617375"}
	assert.Equal(t, "upc:604544617375", withUPC.Key())

	noUPC := RetailerSku{Title: "Federal 9mm 115gr FMJ"}
	key := noUPC.Key()
	assert.True(t, strings.HasPrefix(key, "title:"), "key=%s", key)

	// Whitespace runs and case collapse to the same identity.
	variant := RetailerSku{Title: "  federal   9MM 115gr  FMJ "}
	assert.Equal(t, key, variant.Key())

	other := RetailerSku{Title: "CCI Blazer 9mm"}
	assert.NotEqual(t, key, other.Key())
}

func TestParsedRecord_Retained(t *testing.T) {
	tests := []struct {
		name string
		rec  ParsedRecord
		want bool
	}{
		{"complete", ParsedRecord{Title: "x", HasPrice: true, Price: 9.99}, true},
		{"no title", ParsedRecord{HasPrice: true, Price: 9.99}, false},
		{"no price", ParsedRecord{Title: "x"}, false},
		{"zero price", ParsedRecord{Title: "x", HasPrice: true, Price: 0}, false},
		{"negative price", ParsedRecord{Title: "x", HasPrice: true, Price: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.Retained())
		})
	}
}

func TestAttributes_CompositeKey(t *testing.T) {
	a := Attributes{Caliber: "9mm Luger", Brand: "Federal"}
	assert.Equal(t, "9mm Luger|Federal", a.CompositeKey())
}

func TestAttributes_NaturalKey(t *testing.T) {
	a := Attributes{Caliber: "9mm Luger", Brand: "Federal", GrainWeight: 115, PackSize: 50}

	// Case-insensitive and stable.
	b := Attributes{Caliber: "9MM LUGER", Brand: "federal", GrainWeight: 115, PackSize: 50}
	assert.Equal(t, a.NaturalKey(), b.NaturalKey())
	assert.Equal(t, a.NaturalKey(), a.NaturalKey())

	// Any attribute change produces a different key.
	c := a
	c.GrainWeight = 124
	assert.NotEqual(t, a.NaturalKey(), c.NaturalKey())
}
