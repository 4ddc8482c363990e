package feed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammosight/catalog-cli/internal/model"
)

func TestRows_DispatchesByFormat(t *testing.T) {
	tests := []struct {
		format model.FeedFormat
		input  string
	}{
		{model.FeedFormatCSV, "title\nFederal 9mm\n"},
		{model.FeedFormatXML, "<c><product><title>Federal 9mm</title></product></c>"},
		{model.FeedFormatJSON, `[{"title": "Federal 9mm"}]`},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			rowCh, errCh := Rows(context.Background(), tt.format, strings.NewReader(tt.input))
			rows, err := Collect(context.Background(), rowCh, errCh)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "Federal 9mm", rows[0].Fields["title"])
		})
	}
}

func TestRows_UnsupportedFormat(t *testing.T) {
	rowCh, errCh := Rows(context.Background(), "parquet", strings.NewReader("x"))
	_, err := Collect(context.Background(), rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestCollect_PropagatesStreamError(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	rows, err := Collect(context.Background(), rowCh, errCh)
	require.Error(t, err)
	assert.Nil(t, rows)
}
