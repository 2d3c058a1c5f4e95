package etl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"fanout/pkg/models"
)

const (
	defaultExtractTimeout = 30 * time.Second
	errorBodySample       = 1024
	defaultDataPath       = "results"
)

// Extractor performs the single read a run starts with: one GET against
// the source endpoint, decoded into raw records.
type Extractor struct {
	client *http.Client
	log    *slog.Logger
}

// NewExtractor builds an extractor whose HTTP client is capped at the
// given timeout. A non-positive timeout falls back to 30s.
func NewExtractor(timeout time.Duration, log *slog.Logger) *Extractor {
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}
	return &Extractor{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Extract issues the GET described by src and returns a single-pass
// stream over the decoded records. Any failure, from the network up to
// payload shape, comes back as an *ExtractionError and the run must not
// proceed to the sinks.
func (e *Extractor) Extract(ctx context.Context, src models.Source) (*RecordStream, error) {
	u, err := buildURL(src)
	if err != nil {
		return nil, &ExtractionError{URL: src.BaseURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &ExtractionError{URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}

	e.log.Info("extracting", "url", u)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ExtractionError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		sample, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySample))
		return nil, &ExtractionError{
			URL:        u,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(sample)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExtractionError{URL: u, Err: fmt.Errorf("read body: %w", err)}
	}

	records, err := decodeRecords(body, src.DataPath)
	if err != nil {
		return nil, &ExtractionError{URL: u, Err: err}
	}

	e.log.Info("extraction complete", "records", len(records))
	return newRecordStream(records), nil
}

func buildURL(src models.Source) (string, error) {
	u, err := url.Parse(src.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if src.Path != "" {
		u = u.JoinPath(src.Path)
	}
	if len(src.Query) > 0 {
		q := u.Query()
		for k, v := range src.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// decodeRecords accepts either a bare JSON array of objects or an object
// whose record array sits at dataPath (default "results").
func decodeRecords(body []byte, dataPath string) ([]RawRecord, error) {
	var root interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("malformed JSON payload: %w", err)
	}

	switch v := root.(type) {
	case []interface{}:
		return itemsToRecords(v)
	case map[string]interface{}:
		path := dataPath
		if path == "" {
			path = defaultDataPath
		}
		res := gjson.GetBytes(body, path)
		if !res.Exists() {
			return nil, fmt.Errorf("data path %q not found in response object", path)
		}
		if !res.IsArray() {
			return nil, fmt.Errorf("data path %q does not address an array", path)
		}
		var items []interface{}
		if err := json.Unmarshal([]byte(res.Raw), &items); err != nil {
			return nil, fmt.Errorf("decode array at %q: %w", path, err)
		}
		return itemsToRecords(items)
	default:
		return nil, fmt.Errorf("payload is neither a JSON array nor an object")
	}
}

func itemsToRecords(items []interface{}) ([]RawRecord, error) {
	records := make([]RawRecord, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("item %d is not a JSON object", i)
		}
		records = append(records, flattenRecord(m))
	}
	return records, nil
}
