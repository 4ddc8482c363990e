package feed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCSV_Basic(t *testing.T) {
	input := "Title,Price,UPC\nFederal 9mm,12.99,604544617375\nCCI Blazer,11.49,010892212345\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectStream(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].Ordinal)
	assert.Equal(t, "Federal 9mm", rows[0].Fields["title"])
	assert.Equal(t, "12.99", rows[0].Fields["price"])
	assert.Equal(t, 2, rows[1].Ordinal)
	assert.Equal(t, "010892212345", rows[1].Fields["upc"])
}

func TestStreamCSV_HeaderLowercased(t *testing.T) {
	input := "TITLE, Price ,Upc\nx,1,2\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectStream(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "x", rows[0].Fields["title"])
	assert.Equal(t, "1", rows[0].Fields["price"])
	assert.Equal(t, "2", rows[0].Fields["upc"])
}

func TestStreamCSV_ShortRowPadded(t *testing.T) {
	input := "a,b,c\n1,2\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectStream(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Fields["a"])
	assert.Equal(t, "2", rows[0].Fields["b"])
	assert.Equal(t, "", rows[0].Fields["c"])
}

func TestStreamCSV_LongRowTailDropped(t *testing.T) {
	input := "a,b\n1,2,3,4\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectStream(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Fields, 2)
	assert.Equal(t, "1", rows[0].Fields["a"])
	assert.Equal(t, "2", rows[0].Fields["b"])
}

func TestStreamCSV_EmptyHeaderCellSkipped(t *testing.T) {
	input := "a,,c\n1,2,3\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectStream(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Fields, 2)
	assert.Equal(t, "3", rows[0].Fields["c"])
}

func TestStreamCSV_PipeDelimited(t *testing.T) {
	input := "title|price\nFederal 9mm|12.99\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: '|',
	})
	rows, err := collectStream(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Federal 9mm", rows[0].Fields["title"])
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	input := "title,price\n  Federal 9mm  , 12.99 \n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		TrimSpace: true,
	})
	rows, err := collectStream(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Federal 9mm", rows[0].Fields["title"])
	assert.Equal(t, "12.99", rows[0].Fields["price"])
}

func TestStreamCSV_EmptySnapshot(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	rows, err := collectStream(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty snapshot")
	assert.Empty(t, rows)
}

func TestStreamCSV_HeaderOnlyYieldsNoRows(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a,b,c\n"), CSVOptions{})
	rows, err := collectStream(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a,b,c\n")
	for range 10000 {
		sb.WriteString("1,2,3\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})
	_, err := collectStream(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
