package feed

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ammosight/catalog-cli/internal/model"
)

// StreamJSON decodes a JSON array of objects streaming, sending each object
// to a channel as a header-mapped row. Expects input in the form
// [{...},{...}]. Scalar values are stringified; nested objects and arrays are
// dropped (retailer feeds put product fields at the top level).
// Both channels are closed when processing completes.
func StreamJSON(ctx context.Context, r io.Reader) (<-chan model.RawRow, <-chan error) {
	rowCh := make(chan model.RawRow, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)
		decoder.UseNumber()

		// Expect opening bracket
		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				errCh <- eris.New("json: empty snapshot")
				return
			}
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}
		delim, ok := tok.(json.Delim)
		if !ok || delim != '[' {
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		ordinal := 0
		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}

			var obj map[string]any
			if err := decoder.Decode(&obj); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}

			ordinal++
			fields := make(map[string]string, len(obj))
			for k, v := range obj {
				if s, ok := stringifyScalar(v); ok {
					fields[strings.ToLower(k)] = s
				}
			}

			select {
			case rowCh <- model.RawRow{Ordinal: ordinal, Fields: fields}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		// Consume closing bracket
		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return rowCh, errCh
}

func stringifyScalar(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case nil:
		return "", true
	default:
		return "", false
	}
}
