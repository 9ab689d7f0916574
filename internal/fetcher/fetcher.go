// Package fetcher downloads open-data payloads over HTTP and unpacks ZIP
// archives.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for retrieving remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// PostJSON sends body as a JSON request and returns the response body.
	PostJSON(ctx context.Context, url string, body any) (io.ReadCloser, error)
}
