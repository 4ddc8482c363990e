package feed

import (
	"testing"

	"github.com/ammosight/catalog-cli/internal/model"
)

func collectStream(t *testing.T, rowCh <-chan model.RawRow, errCh <-chan error) ([]model.RawRow, error) {
	t.Helper()
	var rows []model.RawRow
	for row := range rowCh {
		rows = append(rows, row)
	}
	// Drain error channel
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}
