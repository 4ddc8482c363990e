// Package feed parses retailer catalog snapshots in CSV, XML, JSON, and XLSX
// form into header-mapped raw rows, and coerces those rows into typed records.
package feed

import (
	"context"
	"io"

	"github.com/rotisserie/eris"

	"github.com/ammosight/catalog-cli/internal/model"
)

// Rows parses the snapshot body in the declared format and streams raw rows.
// Caller must consume the returned row channel. A systemic parse failure
// (unreadable encoding, malformed container) is sent on the error channel and
// ends the stream; individual field oddities never do.
// Both channels are closed when processing completes.
func Rows(ctx context.Context, format model.FeedFormat, r io.Reader) (<-chan model.RawRow, <-chan error) {
	switch format {
	case model.FeedFormatCSV:
		return StreamCSV(ctx, r, CSVOptions{TrimSpace: true})
	case model.FeedFormatXML:
		return StreamXML(ctx, r, "product")
	case model.FeedFormatJSON:
		return StreamJSON(ctx, r)
	case model.FeedFormatXLSX:
		return StreamXLSX(ctx, r, XLSXOptions{})
	default:
		rowCh := make(chan model.RawRow)
		errCh := make(chan error, 1)
		errCh <- eris.Errorf("feed: unsupported format %q", format)
		close(rowCh)
		close(errCh)
		return rowCh, errCh
	}
}

// Collect drains a row stream into a slice, returning the first systemic
// error if one occurred.
func Collect(ctx context.Context, rowCh <-chan model.RawRow, errCh <-chan error) ([]model.RawRow, error) {
	var rows []model.RawRow
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "feed: collect cancelled")
	}
	return rows, nil
}
