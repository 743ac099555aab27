package flatten

import (
	"bufio"
	"io"
	"strings"
)

// quoteAllWriter writes CSV with every field quoted, which encoding/csv
// does not offer. Embedded quotes are doubled.
type quoteAllWriter struct {
	w *bufio.Writer
}

func newQuoteAllWriter(w io.Writer) *quoteAllWriter {
	return &quoteAllWriter{w: bufio.NewWriterSize(w, 64*1024)}
}

var quoteEscaper = strings.NewReplacer(`"`, `""`)

func (q *quoteAllWriter) Write(fields []string) error {
	for i, f := range fields {
		if i > 0 {
			q.w.WriteByte(',')
		}
		q.w.WriteByte('"')
		quoteEscaper.WriteString(q.w, f)
		q.w.WriteByte('"')
	}
	return q.w.WriteByte('\n')
}

func (q *quoteAllWriter) Flush() error { return q.w.Flush() }
