// Package moenv talks to the Ministry of Environment open-data datastore
// that publishes the illegal-dumping shapefile releases.
package moenv

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dumpsite-cli/internal/fetcher"
)

const (
	// DefaultSearchURL is the datastore search endpoint.
	DefaultSearchURL = "https://data.moenv.gov.tw/api/frontstage/datastore.search"
	// DefaultResourceID lists the published dumping-site archives.
	DefaultResourceID = "4bc290c9-93f6-4b47-afde-6fce87c91a4b"
	// DefaultLimit is the page size requested from the datastore.
	DefaultLimit = 100
)

// ErrNoRecords is returned when the datastore lists no releases.
var ErrNoRecords = eris.New("moenv: no records found in API response")

// RecordID is a datastore `_id`. The API has served it both as a number and
// as a numeric string.
type RecordID int64

// UnmarshalJSON accepts 42 and "42".
func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return eris.Wrapf(err, "moenv: invalid _id %q", string(data))
	}
	*id = RecordID(n)
	return nil
}

// Dataset is one published release.
type Dataset struct {
	ID       RecordID `json:"_id"`
	Filename string   `json:"filename"`
	URL      string   `json:"url"`
}

type searchRequest struct {
	ResourceID string `json:"resource_id"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

type searchResponse struct {
	Payload struct {
		Records []Dataset `json:"records"`
	} `json:"payload"`
}

// Client looks up dataset releases.
type Client struct {
	fetcher    fetcher.Fetcher
	searchURL  string
	resourceID string
	limit      int
}

// NewClient creates a Client. Empty settings fall back to the defaults.
func NewClient(f fetcher.Fetcher, searchURL, resourceID string, limit int) *Client {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	if resourceID == "" {
		resourceID = DefaultResourceID
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Client{fetcher: f, searchURL: searchURL, resourceID: resourceID, limit: limit}
}

// List returns the first page of releases.
func (c *Client) List(ctx context.Context) ([]Dataset, error) {
	body, err := c.fetcher.PostJSON(ctx, c.searchURL, searchRequest{
		ResourceID: c.resourceID,
		Limit:      c.limit,
		Offset:     0,
	})
	if err != nil {
		return nil, eris.Wrap(err, "moenv: search datastore")
	}
	defer body.Close() //nolint:errcheck

	resp, err := fetcher.DecodeJSONObject[searchResponse](body)
	if err != nil {
		return nil, eris.Wrap(err, "moenv: decode search response")
	}
	return resp.Payload.Records, nil
}

// Latest returns the release with the largest `_id`.
func (c *Client) Latest(ctx context.Context) (*Dataset, error) {
	records, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	latest, ok := LatestDataset(records)
	if !ok {
		return nil, ErrNoRecords
	}

	zap.L().Info("moenv: latest dataset",
		zap.Int64("id", int64(latest.ID)),
		zap.String("filename", latest.Filename),
		zap.String("url", latest.URL),
	)
	return &latest, nil
}

// LatestDataset picks the record with the largest ID. Ties keep the first
// record seen. Records without a download URL are ignored.
func LatestDataset(records []Dataset) (Dataset, bool) {
	var (
		best  Dataset
		found bool
	)
	for _, r := range records {
		if r.URL == "" {
			continue
		}
		if !found || r.ID > best.ID {
			best = r
			found = true
		}
	}
	return best, found
}
