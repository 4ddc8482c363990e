package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ammosight/catalog-cli/internal/model"
	"github.com/ammosight/catalog-cli/internal/store"
)

// MatchIndex is the run-scoped lookup structure for canonical matching:
// a UPC map resolving directly to one entry, and an attribute map keyed by
// "{caliber}|{brand}" resolving to candidates in registration order. It is
// built once per run from the catalog store, extended in place as entries are
// auto-created, and discarded when the run ends. It is never shared across
// runs, so concurrent runs cannot observe each other's in-progress state.
type MatchIndex struct {
	byUPC  map[string]*model.CanonicalSku
	byAttr map[string][]*model.CanonicalSku
}

// BuildIndex loads the current canonical catalog and indexes it. Entries are
// registered in catalog creation order, which fixes the tie-break order for
// the whole run.
func BuildIndex(ctx context.Context, st store.Store) (*MatchIndex, error) {
	entries, err := st.ListCanonical(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "match: load catalog")
	}

	idx := &MatchIndex{
		byUPC:  make(map[string]*model.CanonicalSku, len(entries)),
		byAttr: make(map[string][]*model.CanonicalSku, len(entries)),
	}
	for i := range entries {
		idx.Add(&entries[i])
	}
	return idx, nil
}

// Add registers an entry in both maps. Called for catalog rows at build time
// and for auto-created entries immediately on creation, so later records in
// the same run can match them.
func (idx *MatchIndex) Add(entry *model.CanonicalSku) {
	if entry.UPC != "" {
		if _, exists := idx.byUPC[entry.UPC]; !exists {
			idx.byUPC[entry.UPC] = entry
		}
	}
	key := entry.Attrs.CompositeKey()
	idx.byAttr[key] = append(idx.byAttr[key], entry)
}

// LookupUPC resolves a validated UPC to its canonical entry, if indexed.
func (idx *MatchIndex) LookupUPC(upc string) (*model.CanonicalSku, bool) {
	entry, ok := idx.byUPC[upc]
	return entry, ok
}

// Match resolves extracted attributes to a canonical entry, or reports no
// candidate exists.
func (idx *MatchIndex) Match(attrs model.Attributes) (*model.CanonicalSku, bool) {
	candidates := idx.byAttr[attrs.CompositeKey()]
	if len(candidates) == 0 {
		return nil, false
	}
	return pickCandidate(candidates), true
}

// Size returns the number of distinct attribute keys indexed.
func (idx *MatchIndex) Size() int {
	return len(idx.byAttr)
}

// pickCandidate resolves an ambiguous attribute match. The current rule is
// first-registered (insertion order). Kept as a separate function so a
// scoring-based resolver can replace it without touching match control flow.
func pickCandidate(candidates []*model.CanonicalSku) *model.CanonicalSku {
	return candidates[0]
}
