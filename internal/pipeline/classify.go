package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ammosight/catalog-cli/internal/feed"
	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/store"
)

// ClassifyOutput is the record classifier's stage result.
type ClassifyOutput struct {
	Indexable   []model.RetailerSku
	Quarantined []model.QuarantinedRecord
	Rejected    int
	Deactivated int
}

// ClassifyStage coerces raw rows into typed records and sorts each into
// exactly one bucket: an indexable retailer sku, a quarantined record, or a
// rejected row that is only counted. Indexable and quarantined rows are
// persisted tagged with the run; skus absent from this snapshot are
// deactivated, not deleted.
//
// Classification order matters and is deterministic:
//  1. no title or no positive price  -> rejected
//  2. format-valid product identifier -> indexable
//  3. otherwise                       -> quarantined
func ClassifyStage(ctx context.Context, st store.Store, run *model.FeedRun, rows []model.RawRow) (*ClassifyOutput, error) {
	out := &ClassifyOutput{}

	for _, row := range rows {
		rec := feed.Coerce(row)

		if !rec.Retained() {
			out.Rejected++
			continue
		}

		if rec.UPC != "" {
			sku := model.RetailerSku{
				RetailerID: run.RetailerID,
				FeedID:     run.FeedID,
				RunID:      run.ID,
				Title:      rec.Title,
				Price:      rec.Price,
				UPC:        rec.UPC,
				InStock:    rec.InStock != nil && *rec.InStock,
				Active:     true,
			}
			sku.SkuKey = sku.Key()
			sku.ContentHash = sku.Fingerprint()
			out.Indexable = append(out.Indexable, sku)
			continue
		}

		out.Quarantined = append(out.Quarantined, model.QuarantinedRecord{
			RetailerID: run.RetailerID,
			FeedID:     run.FeedID,
			RunID:      run.ID,
			MatchKey:   quarantineMatchKey(rec),
			Title:      rec.Title,
			Price:      rec.Price,
			Payload:    row,
			Status:     model.QuarantineStatusPending,
		})
	}

	if err := st.UpsertRetailerSkus(ctx, out.Indexable); err != nil {
		return nil, eris.Wrap(err, "classify: persist skus")
	}
	if err := st.CreateQuarantined(ctx, out.Quarantined); err != nil {
		return nil, eris.Wrap(err, "classify: persist quarantine")
	}

	deactivated, err := st.DeactivateMissing(ctx, run.FeedID, run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "classify: deactivate missing")
	}
	out.Deactivated = deactivated

	zap.L().Debug("classify: snapshot classified",
		zap.String("run_id", run.ID),
		zap.Int("indexable", len(out.Indexable)),
		zap.Int("quarantined", len(out.Quarantined)),
		zap.Int("rejected", out.Rejected),
		zap.Int("deactivated", deactivated),
	)
	return out, nil
}

// quarantineMatchKey derives the key used to auto-resolve a quarantined
// record once an operator supplies its identifier: a digest of the
// normalized title plus the attribute fields the feed carried.
func quarantineMatchKey(rec model.ParsedRecord) string {
	parts := []string{
		strings.ToLower(strings.Join(strings.Fields(rec.Title), " ")),
		strings.ToLower(rec.Brand),
		strings.ToLower(rec.Caliber),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:16])
}
