package pipeline

import (
	"context"
	"regexp"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/vocab"
)

var (
	grainRe = regexp.MustCompile(`(?i)\b(\d{2,3})\s?(?:gr|grain|grains)\b`)
	packRe  = regexp.MustCompile(`(?i)\b(\d{1,4})\s?(?:rds|rd|rounds|round|ct|count)\b|\b(?:box of|case of)\s?(\d{1,4})\b`)
)

// ExtractAttributes derives the normalized product signature from a listing
// title. Nothing here touches shared state, so callers may run it for a whole
// batch in parallel.
func ExtractAttributes(v *vocab.Vocabulary, title string) model.Attributes {
	attrs := model.Attributes{
		Caliber: v.Caliber(title),
		Brand:   v.Brand(title),
	}

	if m := grainRe.FindStringSubmatch(title); m != nil {
		if grains, err := strconv.Atoi(m[1]); err == nil {
			attrs.GrainWeight = grains
		}
	}
	if m := packRe.FindStringSubmatch(title); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if pack, err := strconv.Atoi(raw); err == nil {
			attrs.PackSize = pack
		}
	}

	return attrs
}

// extractBatch runs attribute extraction for every sku in the batch in
// parallel and returns results positionally aligned with the input.
func extractBatch(ctx context.Context, v *vocab.Vocabulary, skus []model.RetailerSku) ([]model.Attributes, error) {
	attrs := make([]model.Attributes, len(skus))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, sku := range skus {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			attrs[i] = ExtractAttributes(v, sku.Title)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return attrs, nil
}
