// Package csv streams the flattened event file into normalized records.
//
// Rows are read with encoding/csv, mapped from the file's header onto the
// canonical column order (record.Columns), and normalized one at a time.
// Memory stays bounded by the csv.Reader buffer and the output channel.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"sessionetl/internal/config"
	"sessionetl/internal/record"
)

const utf8BOM = "\uFEFF"

// ErrHeader is returned when the header lacks a canonical column.
var ErrHeader = errors.New("csv: header")

// StreamRecords reads src and sends one record.Parsed per data row to out.
// The caller closes out. Row-level problems (bad quoting, wrong field count,
// unconvertible values) are reported in Parsed.Err and the stream goes on;
// only an unreadable header, a read failure of src, or ctx cancellation end
// it with an error.
//
// Options (all optional):
//   - has_header (bool, default true): map columns by header name,
//     case-insensitively, after header_map renames. Otherwise positional.
//   - header_map (object): source header -> canonical field name.
//   - comma (string, default ","): field delimiter.
//   - lazy_quotes (bool): csv.Reader.LazyQuotes.
//   - replace (object): byte sequences rewritten before parsing, for
//     known-broken quoting in source data.
func StreamRecords(ctx context.Context, src io.ReadCloser, opt config.Options, out chan<- record.Parsed) error {
	defer src.Close()

	var r io.Reader = src
	if m := opt.StringMap("replace"); len(m) > 0 {
		r = withReplacements(r, m)
	}

	cr := csv.NewReader(r)
	cr.Comma = opt.Rune("comma", ',')
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	width := len(record.Columns)
	colIx := make([]int, len(record.Columns)) // colIx[canonical] = source index
	for i := range colIx {
		colIx[i] = i
	}

	if opt.Bool("has_header", true) {
		hdr, err := cr.Read()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("%w: empty input", ErrHeader)
			}
			return fmt.Errorf("%w: %v", ErrHeader, err)
		}
		if colIx, err = mapHeader(hdr, opt.StringMap("header_map")); err != nil {
			return err
		}
		width = len(hdr)
	}

	const logEveryN = 50_000
	rows := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}

		var p record.Parsed
		var pe *csv.ParseError
		switch {
		case errors.As(err, &pe):
			p = record.Parsed{Line: pe.StartLine, Err: fmt.Errorf("%w: %v", record.ErrMalformedRow, pe.Err)}
		case err != nil:
			return fmt.Errorf("csv read: %w", err)
		default:
			line, _ := cr.FieldPos(0)
			p = record.Parsed{Line: line}
			if len(rec) != width {
				p.Err = fmt.Errorf("%w: got %d fields, want %d", record.ErrMalformedRow, len(rec), width)
			} else {
				raw := make([]string, len(colIx))
				for i, si := range colIx {
					raw[i] = rec[si]
				}
				p.Record, p.Err = record.Normalize(raw)
			}
		}

		select {
		case out <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
		if rows++; rows%logEveryN == 0 {
			log.Printf("reader: line=%d emitted=%d", p.Line, rows)
		}
	}
}

// mapHeader returns, for each canonical column, its index in hdr. Every
// canonical column must be present; extra columns are ignored.
func mapHeader(hdr []string, rename map[string]string) ([]int, error) {
	srcIx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		if mapped, ok := rename[h]; ok {
			h = mapped
		}
		srcIx[strings.ToLower(h)] = i
	}

	colIx := make([]int, len(record.Columns))
	var missing []string
	for i, c := range record.Columns {
		si, ok := srcIx[strings.ToLower(c)]
		if !ok {
			missing = append(missing, c)
			continue
		}
		colIx[i] = si
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing column(s) %s", ErrHeader, strings.Join(missing, ", "))
	}
	return colIx, nil
}
