package model

// RawRow is one row from a feed before any coercion, as header-mapped string
// fields. Ordinal is the 1-based row position in the snapshot, kept for
// diagnostics.
type RawRow struct {
	Ordinal int               `json:"ordinal"`
	Fields  map[string]string `json:"fields"`
}

// Classification is the bucket assigned to a feed row.
type Classification string

const (
	ClassIndexable   Classification = "indexable"
	ClassQuarantined Classification = "quarantined"
	ClassRejected    Classification = "rejected"
)

// ParsedRecord is one feed row after type coercion, the unit the classifier
// operates on. Produced and consumed within a single classification pass.
type ParsedRecord struct {
	Ordinal  int     `json:"ordinal"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"` // 0 means absent or uncoercible
	HasPrice bool    `json:"has_price"`
	InStock  *bool   `json:"in_stock,omitempty"` // nil means absent or uncoercible
	UPC      string  `json:"upc,omitempty"`      // empty unless format-valid
	Brand    string  `json:"brand,omitempty"`
	Caliber  string  `json:"caliber,omitempty"`
	Raw      RawRow  `json:"raw"`
}

// Retained reports whether the record survives the first classification gate:
// a non-empty title and a parsable positive price.
func (r ParsedRecord) Retained() bool {
	return r.Title != "" && r.HasPrice && r.Price > 0
}
