package arcgis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dumpsite-cli/internal/fetcher"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
regions:
  - name: 台北市
    url: https://gis.example.gov.tw/arcgis/rest/services/dump/MapServer/0/query?where=1%3D1&outFields=*&f=json
  - name: tainan
    url: http://gis.example.gov.tw/tainan/query
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Regions, 2)
	assert.Equal(t, "台北市", m.Regions[0].Name)
	assert.Equal(t, "tainan", m.Regions[1].Name)
	assert.Equal(t, "http://gis.example.gov.tw/tainan/query", m.Regions[1].URL)
}

func TestLoadManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "regions: [", "parse manifest"},
		{"no name", "regions:\n  - url: https://a.example/q\n", "has no name"},
		{"bad url", "regions:\n  - name: a\n    url: ftp://a.example/q\n", "invalid url"},
		{"missing url", "regions:\n  - name: a\n", "invalid url"},
		{"duplicate", "regions:\n  - name: new taipei\n    url: https://a.example/q\n  - name: new_taipei\n    url: https://b.example/q\n", "same file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadManifest(writeManifest(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read manifest")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "台北市.json", FileName("台北市"))
	assert.Equal(t, "new_taipei.json", FileName(" new taipei "))
	assert.Equal(t, "a_b-c.json", FileName("a/b-c"))
	assert.Equal(t, "___.json", FileName("../"))
}

func newFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second})
}

func TestFetch_WritesRegionsAndSkipsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/taipei":
			w.Write([]byte(`{"features":[{"attributes":{"OBJECTID":1}}]}`))
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "/denied":
			w.Write([]byte(`{"error":{"code":498,"message":"Invalid token."}}`))
		case "/html":
			w.Write([]byte(`<html>maintenance</html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rawDir := filepath.Join(t.TempDir(), "raw")
	m := &Manifest{Regions: []Region{
		{Name: "台北市", URL: srv.URL + "/taipei"},
		{Name: "broken", URL: srv.URL + "/broken"},
		{Name: "denied", URL: srv.URL + "/denied"},
		{Name: "html", URL: srv.URL + "/html"},
	}}

	res, err := Fetch(context.Background(), newFetcher(), m, rawDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"台北市"}, res.Fetched)
	assert.Equal(t, []string{"broken", "denied", "html"}, res.Failed)

	data, err := os.ReadFile(filepath.Join(rawDir, "台北市.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"features":[{"attributes":{"OBJECTID":1}}]}`, string(data))

	entries, err := os.ReadDir(rawDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed regions leave no files behind")
}

func TestFetch_KeepsPreviousCopyOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			w.Write([]byte(`{"features":[]}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rawDir := t.TempDir()
	prev := filepath.Join(rawDir, "old.json")
	require.NoError(t, os.WriteFile(prev, []byte(`{"features":[1]}`), 0o644))

	m := &Manifest{Regions: []Region{
		{Name: "old", URL: srv.URL + "/down"},
		{Name: "ok", URL: srv.URL + "/ok"},
	}}
	res, err := Fetch(context.Background(), newFetcher(), m, rawDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res.Fetched)

	data, err := os.ReadFile(prev)
	require.NoError(t, err)
	assert.Equal(t, `{"features":[1]}`, string(data))
}

func TestFetch_AllFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := &Manifest{Regions: []Region{{Name: "a", URL: srv.URL}}}
	res, err := Fetch(context.Background(), newFetcher(), m, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNothingFetched)
	assert.Equal(t, []string{"a"}, res.Failed)
}

func TestFetch_EmptyManifest(t *testing.T) {
	res, err := Fetch(context.Background(), newFetcher(), &Manifest{}, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, res.Fetched)
	assert.Empty(t, res.Failed)
}

func TestFetch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &Manifest{Regions: []Region{{Name: "a", URL: "http://127.0.0.1:1/never"}}}
	_, err := Fetch(ctx, newFetcher(), m, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
