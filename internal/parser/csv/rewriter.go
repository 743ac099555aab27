package csv

import (
	"bufio"
	"bytes"
	"io"
	"sort"
)

// streamingRewriter is an io.Reader that performs a rolling find/replace
// without buffering the whole stream. It retains the last len(pat)-1 bytes
// of each block (carry) so that matches spanning a block boundary are found.
type streamingRewriter struct {
	br    *bufio.Reader
	pat   []byte
	repl  []byte
	tmp   []byte
	carry []byte       // last len(pat)-1 bytes retained between reads
	buf   bytes.Buffer // pending output
	eof   bool
}

// newStreamingRewriter wraps r with a rewriter that replaces pat with repl.
func newStreamingRewriter(r io.Reader, pat, repl []byte) *streamingRewriter {
	return &streamingRewriter{
		br:    bufio.NewReaderSize(r, 64*1024),
		pat:   pat,
		repl:  repl,
		tmp:   make([]byte, 64*1024),
		carry: make([]byte, 0, max(len(pat)-1, 0)),
	}
}

func (sr *streamingRewriter) Read(p []byte) (int, error) {
	for sr.buf.Len() == 0 {
		if sr.eof {
			return 0, io.EOF
		}
		if err := sr.fill(); err != nil {
			return 0, err
		}
	}
	return sr.buf.Read(p)
}

// fill reads one block, rewrites it and moves everything but the carry into
// buf. At EOF the carry is flushed.
func (sr *streamingRewriter) fill() error {
	n, rerr := sr.br.Read(sr.tmp)
	if n > 0 {
		block := append(sr.carry, sr.tmp[:n]...)
		if len(sr.pat) > 0 && !bytes.Equal(sr.pat, sr.repl) {
			block = bytes.ReplaceAll(block, sr.pat, sr.repl)
		}
		k := max(len(sr.pat)-1, 0)
		if len(block) > k {
			sr.buf.Write(block[:len(block)-k])
			block = block[len(block)-k:]
		}
		sr.carry = append(sr.carry[:0:0], block...)
	}
	switch {
	case rerr == io.EOF:
		sr.buf.Write(sr.carry)
		sr.carry = sr.carry[:0]
		sr.eof = true
	case rerr != nil:
		return rerr
	}
	return nil
}

// withReplacements chains one rewriter per entry of m, in key order so that
// overlapping patterns are applied deterministically.
func withReplacements(r io.Reader, m map[string]string) io.Reader {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		r = newStreamingRewriter(r, []byte(k), []byte(m[k]))
	}
	return r
}
