package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// RetailerSku is one retailer's persisted listing for a product.
type RetailerSku struct {
	ID          string    `json:"id"`
	RetailerID  string    `json:"retailer_id"`
	FeedID      string    `json:"feed_id"`
	RunID       string    `json:"run_id"`
	CanonicalID string    `json:"canonical_id,omitempty"` // assigned by the matcher
	SkuKey      string    `json:"sku_key"`                // stable identity of the listing within its feed
	ContentHash string    `json:"content_hash"`
	Title       string    `json:"title"`
	Price       float64   `json:"price"`
	UPC         string    `json:"upc,omitempty"`
	InStock     bool      `json:"in_stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fingerprint computes the content hash of the sku's normalized fields, used
// for change detection across runs. Canonical assignment and run identity are
// deliberately excluded so an unchanged listing keeps its hash between runs.
func (s RetailerSku) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(s.Title))))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatFloat(s.Price, 'f', 2, 64)))
	h.Write([]byte{'|'})
	h.Write([]byte(s.UPC))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatBool(s.InStock)))
	return hex.EncodeToString(h.Sum(nil))
}

// Key derives the stable listing identity: the UPC when one is present,
// otherwise a digest of the normalized title. Used as the upsert conflict key
// within a feed so re-ingesting a snapshot updates rather than duplicates.
func (s RetailerSku) Key() string {
	if s.UPC != "" {
		return "upc:" + s.UPC
	}
	h := sha256.Sum256([]byte(strings.ToLower(strings.Join(strings.Fields(s.Title), " "))))
	return "title:" + hex.EncodeToString(h[:12])
}

// QuarantineStatus is the lifecycle state of a quarantined record.
type QuarantineStatus string

const (
	QuarantineStatusPending  QuarantineStatus = "quarantined"
	QuarantineStatusResolved QuarantineStatus = "resolved"
)

// QuarantinedRecord is a persisted row with usable commercial data but no
// usable product identifier, held for manual resolution.
type QuarantinedRecord struct {
	ID         string           `json:"id"`
	RetailerID string           `json:"retailer_id"`
	FeedID     string           `json:"feed_id"`
	RunID      string           `json:"run_id"`
	MatchKey   string           `json:"match_key"`
	Title      string           `json:"title"`
	Price      float64          `json:"price"`
	Payload    RawRow           `json:"payload"`
	Status     QuarantineStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Provenance flags how a canonical entry came to exist.
type Provenance string

const (
	ProvenanceCurated     Provenance = "curated"
	ProvenanceAutoCreated Provenance = "auto"
)

// Attributes is the normalized attribute set of a canonical product
// signature. Immutable once the owning CanonicalSku is created.
type Attributes struct {
	Caliber     string `json:"caliber"`
	Brand       string `json:"brand"`
	GrainWeight int    `json:"grain_weight,omitempty"`
	PackSize    int    `json:"pack_size,omitempty"`
}

// CompositeKey returns the attribute-index key for these attributes.
func (a Attributes) CompositeKey() string {
	return a.Caliber + "|" + a.Brand
}

// NaturalKey returns the deterministic key used to make canonical creation
// idempotent across concurrent runs.
func (a Attributes) NaturalKey() string {
	h := sha256.Sum256([]byte(strings.ToLower(
		a.Caliber + "|" + a.Brand + "|" + strconv.Itoa(a.GrainWeight) + "|" + strconv.Itoa(a.PackSize),
	)))
	return hex.EncodeToString(h[:16])
}

// CanonicalSku is the catalog's ground truth for one product signature,
// independent of any retailer.
type CanonicalSku struct {
	ID         string     `json:"id"`
	Attrs      Attributes `json:"attrs"`
	UPC        string     `json:"upc,omitempty"`
	Provenance Provenance `json:"provenance"`
	CreatedAt  time.Time  `json:"created_at"`
}
