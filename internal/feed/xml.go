package feed

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/ammosight/catalog-cli/internal/model"
)

// xmlField captures one child element of a product element as a key/value
// pair. Nested structure below one level is flattened to character data.
type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlProduct struct {
	Fields []xmlField `xml:",any"`
}

// StreamXML decodes XML elements with the given local name and sends them to
// a channel as header-mapped rows: each child element's local name becomes a
// field key (lowercased), its character data the value.
// Both channels are closed when processing completes.
func StreamXML(ctx context.Context, r io.Reader, elementName string) (<-chan model.RawRow, <-chan error) {
	rowCh := make(chan model.RawRow, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		decoder := xml.NewDecoder(r)
		decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(charset)
			if err != nil {
				return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
			}
			return enc.NewDecoder().Reader(input), nil
		}

		ordinal := 0
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok || !strings.EqualFold(se.Name.Local, elementName) {
				continue
			}

			var item xmlProduct
			if err := decoder.DecodeElement(&item, &se); err != nil {
				errCh <- eris.Wrap(err, "xml: decode element")
				return
			}

			ordinal++
			fields := make(map[string]string, len(item.Fields))
			for _, f := range item.Fields {
				fields[strings.ToLower(f.XMLName.Local)] = strings.TrimSpace(f.Value)
			}

			select {
			case rowCh <- model.RawRow{Ordinal: ordinal, Fields: fields}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
