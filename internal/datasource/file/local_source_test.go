package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeEvents(t testing.TB, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "event_datafile_new.csv")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return p
}

func TestLocalOpen_ReadsContent(t *testing.T) {
	t.Parallel()

	const payload = "artist,firstName\nFu,Sylvie\n"
	src := NewLocal(writeEvents(t, payload))

	rc, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != payload {
		t.Fatalf("content = %q, want %q", got, payload)
	}
}

func TestLocalOpen_Errors(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name     string
		path     string
		ctx      context.Context
		wantIs   error
		contains string
	}{
		{"missing_file", filepath.Join(t.TempDir(), "missing.csv"), context.Background(), os.ErrNotExist, "open "},
		{"pre_canceled", writeEvents(t, "x"), canceled, context.Canceled, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rc, err := NewLocal(c.path).Open(c.ctx)
			if !errors.Is(err, c.wantIs) {
				t.Fatalf("err = %v, want %v", err, c.wantIs)
			}
			if c.contains != "" && !strings.Contains(err.Error(), c.contains) {
				t.Fatalf("error %q does not contain %q", err, c.contains)
			}
			if rc != nil {
				rc.Close()
				t.Fatalf("got non-nil ReadCloser on error")
			}
		})
	}
}

func BenchmarkLocalOpen(b *testing.B) {
	src := NewLocal(writeEvents(b, "payload"))
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		rc, err := src.Open(ctx)
		if err != nil {
			b.Fatal(err)
		}
		rc.Close()
	}
}
