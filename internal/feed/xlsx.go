package feed

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/ammosight/catalog-cli/internal/model"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// StreamXLSX reads an XLSX snapshot and sends header-mapped rows to a
// channel. The workbook is buffered in memory (the format is not streamable);
// the first row of the selected sheet is taken as the header.
// Both channels are closed when processing completes.
func StreamXLSX(ctx context.Context, r io.Reader, opts XLSXOptions) (<-chan model.RawRow, <-chan error) {
	rowCh := make(chan model.RawRow, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		data, err := io.ReadAll(r)
		if err != nil {
			errCh <- eris.Wrap(err, "xlsx: read snapshot")
			return
		}

		f, err := xlsx.OpenBinary(data)
		if err != nil {
			errCh <- eris.Wrap(err, "xlsx: open workbook")
			return
		}

		sheet, err := getSheet(f, opts)
		if err != nil {
			errCh <- err
			return
		}

		var header []string
		ordinal := 0
		for i, row := range sheet.Rows {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}

			cells := rowToStrings(row)
			if i == 0 {
				header = make([]string, len(cells))
				for j, h := range cells {
					header[j] = strings.ToLower(strings.TrimSpace(h))
				}
				continue
			}

			ordinal++
			fields := make(map[string]string, len(header))
			for j, key := range header {
				if key == "" {
					continue
				}
				if j < len(cells) {
					fields[key] = cells[j]
				} else {
					fields[key] = ""
				}
			}

			select {
			case rowCh <- model.RawRow{Ordinal: ordinal, Fields: fields}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}
		}

		if header == nil {
			errCh <- eris.New("xlsx: empty sheet, no header row")
		}
	}()

	return rowCh, errCh
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (%d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = strings.TrimSpace(cell.String())
	}
	return cells
}
