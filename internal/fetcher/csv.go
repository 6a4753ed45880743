// Package fetcher reads rows out of the delimited, spreadsheet, and archive
// files that address, boundary, and census datasets are delivered as.
package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// Record is one data row with its 1-based line number in the source.
type Record struct {
	Line   int
	Fields []string
}

// StreamCSV reads the header row synchronously, then streams the remaining
// records on a channel. Caller must drain the record channel; at most one
// error is sent on the error channel. Both channels are closed when
// processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([]string, <-chan Record, <-chan error, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil, eris.New("csv: missing header row")
	}
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "csv: read header")
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	rowCh := make(chan Record, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			fields, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			if opts.TrimSpace {
				for i, f := range fields {
					fields[i] = strings.TrimSpace(f)
				}
			}
			line, _ := reader.FieldPos(0)

			select {
			case rowCh <- Record{Line: line, Fields: fields}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return header, rowCh, errCh, nil
}

// HeaderIndex maps column names to positions. Lookups are case-insensitive.
type HeaderIndex map[string]int

// NewHeaderIndex indexes header. The first occurrence of a repeated name wins.
func NewHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		k := strings.ToLower(h)
		if _, dup := idx[k]; !dup {
			idx[k] = i
		}
	}
	return idx
}

// Lookup returns the position of name.
func (h HeaderIndex) Lookup(name string) (int, bool) {
	i, ok := h[strings.ToLower(name)]
	return i, ok
}

// Require returns the positions of names, or an error naming every column
// that is absent.
func (h HeaderIndex) Require(names ...string) ([]int, error) {
	out := make([]int, len(names))
	var missing []string
	for i, n := range names {
		pos, ok := h.Lookup(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		out[i] = pos
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("csv: missing columns %s", strings.Join(missing, ", "))
	}
	return out, nil
}
