package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/resilience"
	"github.com/ammosight/catalog-cli/internal/store"
	"github.com/ammosight/catalog-cli/internal/vocab"
)

// DefaultChunkSize is the matcher batch size when none is configured.
const DefaultChunkSize = 100

// MatchOutput is the canonical matcher's stage result.
type MatchOutput struct {
	Assigned    int
	AutoCreated int
	BatchJobs   int
	// LastBatchDone is the index of the last committed batch, -1 when none.
	LastBatchDone int
}

// Matcher assigns canonical entries to indexable skus, auto-creating catalog
// entries when no match exists.
type Matcher struct {
	store     store.Store
	vocab     *vocab.Vocabulary
	chunkSize int
	retry     resilience.RetryConfig
}

// NewMatcher creates a Matcher. chunkSize <= 0 selects DefaultChunkSize.
func NewMatcher(st store.Store, v *vocab.Vocabulary, chunkSize int) *Matcher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Matcher{
		store:     st,
		vocab:     v,
		chunkSize: chunkSize,
		retry:     resilience.DefaultRetryConfig(),
	}
}

// Run matches the batch of indexable skus against the canonical catalog.
// The index is built once for the whole run; batches are processed in
// sequence because later batches may match entries auto-created by earlier
// ones. Store writes are retried with the same payload (safe: matching within
// a batch depends only on already-committed state); exhausting retries fails
// the run, preserving all previously committed batches.
func (m *Matcher) Run(ctx context.Context, run *model.FeedRun, skus []model.RetailerSku) (*MatchOutput, error) {
	out := &MatchOutput{LastBatchDone: -1}
	if len(skus) == 0 {
		return out, nil
	}

	idx, err := BuildIndex(ctx, m.store)
	if err != nil {
		return out, err
	}

	log := zap.L().With(zap.String("run_id", run.ID))
	for batchIdx, chunk := range chunks(skus, m.chunkSize) {
		out.BatchJobs++

		// Phase 1: extraction is pure per record, run it in parallel.
		attrs, err := extractBatch(ctx, m.vocab, chunk)
		if err != nil {
			return out, eris.Wrapf(err, "match: extract batch %d", batchIdx)
		}

		// Phase 2: sequential index lookups and auto-creates.
		assignments := make(map[string]string, len(chunk))
		for i, sku := range chunk {
			entry, err := m.resolve(ctx, idx, sku, attrs[i], &out.AutoCreated)
			if err != nil {
				return out, eris.Wrapf(err, "match: resolve %q in batch %d", sku.Title, batchIdx)
			}
			assignments[sku.SkuKey] = entry.ID
		}

		err = resilience.Do(ctx, m.retry, func(ctx context.Context) error {
			return m.store.AssignCanonicals(ctx, run.FeedID, assignments)
		})
		if err != nil {
			return out, eris.Wrapf(err, "match: commit batch %d", batchIdx)
		}

		out.Assigned += len(assignments)
		out.LastBatchDone = batchIdx
	}

	log.Debug("match: batch set complete",
		zap.Int("assigned", out.Assigned),
		zap.Int("auto_created", out.AutoCreated),
		zap.Int("batch_jobs", out.BatchJobs),
	)
	return out, nil
}

// resolve maps one sku to a canonical entry: UPC index first, then attribute
// candidates, then auto-create. A record whose caliber and brand are both
// unknown still gets an entry under the Unknown|Unknown signature; that is
// intentional low-confidence matching, surfaced later through benchmark
// confidence rather than an error here.
func (m *Matcher) resolve(ctx context.Context, idx *MatchIndex, sku model.RetailerSku, attrs model.Attributes, autoCreated *int) (*model.CanonicalSku, error) {
	if sku.UPC != "" {
		if entry, ok := idx.LookupUPC(sku.UPC); ok {
			return entry, nil
		}
	}

	if entry, ok := idx.Match(attrs); ok {
		// The record's UPC is not back-filled onto the matched entry: the
		// UPC index changes only when an entry is registered, so match
		// results do not depend on row order within the run.
		return entry, nil
	}

	var entry *model.CanonicalSku
	err := resilience.Do(ctx, m.retry, func(ctx context.Context) error {
		var createErr error
		entry, createErr = m.store.CreateCanonical(ctx, attrs, sku.UPC, model.ProvenanceAutoCreated)
		return createErr
	})
	if err != nil {
		return nil, eris.Wrap(err, "match: auto-create canonical")
	}

	idx.Add(entry)
	*autoCreated++
	return entry, nil
}

// chunks splits skus into consecutive slices of at most size records.
func chunks(skus []model.RetailerSku, size int) [][]model.RetailerSku {
	var out [][]model.RetailerSku
	for start := 0; start < len(skus); start += size {
		end := start + size
		if end > len(skus) {
			end = len(skus)
		}
		out = append(out, skus[start:end])
	}
	return out
}
