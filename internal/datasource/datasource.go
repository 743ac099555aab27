// Package datasource opens the flattened event file from wherever the run
// is configured to read it.
package datasource

import (
	"context"
	"fmt"
	"io"
	"time"

	"sessionetl/internal/config"
	"sessionetl/internal/datasource/file"
	"sessionetl/internal/datasource/httpds"
	"sessionetl/internal/datasource/s3src"
)

// Source yields a fresh stream of the event file on each Open.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// New returns the Source selected by cfg.Kind.
func New(ctx context.Context, cfg config.Source) (Source, error) {
	switch cfg.Kind {
	case "file", "":
		return file.NewLocal(cfg.File.Path), nil
	case "s3":
		o, err := s3src.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return o, nil
	case "http":
		c := httpds.NewClient(httpds.Config{
			Timeout:            time.Duration(cfg.HTTP.TimeoutMS) * time.Millisecond,
			MaxRetries:         cfg.HTTP.MaxRetries,
			InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		})
		return httpds.NewSource(c, cfg.HTTP.URL), nil
	}
	return nil, fmt.Errorf("datasource: unknown kind %q", cfg.Kind)
}
