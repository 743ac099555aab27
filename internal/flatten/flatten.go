// Package flatten merges the raw per-day event files into the single
// flattened record file the loader reads: only the canonical columns, only
// playback events (non-empty artist), every field quoted.
package flatten

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sessionetl/internal/record"
)

// Result reports what Merge did.
type Result struct {
	Files   int
	Rows    int
	Dropped int
	Skipped []string // files without the canonical columns
}

// Merge reads every *.csv file under dir, recursively and in lexical path
// order, and writes the flattened file to w. A file whose header lacks a
// canonical column is skipped and listed in Result.Skipped.
func Merge(ctx context.Context, dir string, w io.Writer) (Result, error) {
	return merge(ctx, dir, "", w)
}

func merge(ctx context.Context, dir, exclude string, w io.Writer) (Result, error) {
	var res Result

	paths, err := listCSV(dir, exclude)
	if err != nil {
		return res, err
	}

	qw := newQuoteAllWriter(w)
	if err := qw.Write(record.Columns); err != nil {
		return res, err
	}
	row := make([]string, len(record.Columns))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, dropped, err := mergeFile(p, qw, row)
		var he *headerError
		switch {
		case errors.As(err, &he):
			log.Printf("flatten: skip file=%s err=%v", p, err)
			res.Skipped = append(res.Skipped, p)
			continue
		case err != nil:
			return res, err
		}
		res.Files++
		res.Rows += n
		res.Dropped += dropped
	}
	if err := qw.Flush(); err != nil {
		return res, err
	}
	log.Printf("flatten: files=%d rows=%d dropped=%d skipped=%d", res.Files, res.Rows, res.Dropped, len(res.Skipped))
	return res, nil
}

func listCSV(dir, exclude string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".csv") {
			return nil
		}
		if exclude != "" {
			if abs, err := filepath.Abs(p); err == nil && abs == exclude {
				return nil
			}
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("flatten: walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

type headerError struct{ missing []string }

func (e *headerError) Error() string {
	return "missing column(s) " + strings.Join(e.missing, ", ")
}

// mergeFile appends the playback rows of one raw file. Rows with a wrong
// field count or an empty artist are dropped.
func mergeFile(path string, qw *quoteAllWriter, row []string) (rows, dropped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("flatten: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	hdr, err := cr.Read()
	if err == io.EOF {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("flatten: %s: header: %w", path, err)
	}
	srcIx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		srcIx[strings.TrimPrefix(strings.TrimSpace(h), "\uFEFF")] = i
	}
	colIx := make([]int, len(record.Columns))
	var missing []string
	for i, c := range record.Columns {
		si, ok := srcIx[c]
		if !ok {
			missing = append(missing, c)
		}
		colIx[i] = si
	}
	if len(missing) > 0 {
		return 0, 0, &headerError{missing: missing}
	}
	artist := colIx[0]

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, dropped, nil
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) || (err == nil && len(rec) != len(hdr)) {
			dropped++
			continue
		}
		if err != nil {
			return rows, dropped, fmt.Errorf("flatten: %s: %w", path, err)
		}
		if strings.TrimSpace(rec[artist]) == "" {
			dropped++
			continue
		}
		for i, si := range colIx {
			row[i] = rec[si]
		}
		if err := qw.Write(row); err != nil {
			return rows, dropped, err
		}
		rows++
	}
}

// MergeFile runs Merge into path, replacing it atomically, then reads the
// file back and checks the data row count. path is never read as input even
// when it lies under dir.
func MergeFile(ctx context.Context, dir, path string) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".flatten-*")
	if err != nil {
		return Result{}, fmt.Errorf("flatten: %w", err)
	}
	defer os.Remove(tmp.Name())

	res, err := merge(ctx, dir, abs, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return res, err
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return res, fmt.Errorf("flatten: %w", err)
	}

	n, err := CountRows(abs)
	if err != nil {
		return res, err
	}
	if n != res.Rows {
		return res, fmt.Errorf("flatten: %s has %d data rows, wrote %d", path, n, res.Rows)
	}
	return res, nil
}

// CountRows returns the number of data rows (excluding the header) in a
// CSV file.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("flatten: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	n := -1
	for {
		_, err := cr.Read()
		if err == io.EOF {
			return max(n, 0), nil
		}
		if err != nil {
			return 0, fmt.Errorf("flatten: count %s: %w", path, err)
		}
		n++
	}
}
