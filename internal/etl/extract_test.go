package etl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanout/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, s *RecordStream) []RawRecord {
	t.Helper()
	var out []RawRecord
	for s.Next() {
		out = append(out, s.Record())
	}
	return out
}

func TestExtract_ArrayPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id": 1, "name": "ada"}, {"id": 2, "name": "grace"}]`)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, testLogger())
	stream, err := e.Extract(context.Background(), models.Source{BaseURL: srv.URL})
	require.NoError(t, err)

	records := collect(t, stream)
	require.Len(t, records, 2)
	assert.Equal(t, float64(1), records[0]["id"])
	assert.Equal(t, "grace", records[1]["name"])
}

func TestExtract_ObjectPayloadDefaultPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"results": [{"id": 1}], "info": {"page": 1}}`)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, testLogger())
	stream, err := e.Extract(context.Background(), models.Source{BaseURL: srv.URL})
	require.NoError(t, err)
	require.Len(t, collect(t, stream), 1)
}

func TestExtract_ObjectPayloadNestedDataPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": {"items": [{"id": 1}, {"id": 2}, {"id": 3}]}}`)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, testLogger())
	stream, err := e.Extract(context.Background(), models.Source{BaseURL: srv.URL, DataPath: "data.items"})
	require.NoError(t, err)
	require.Len(t, collect(t, stream), 3)
}

func TestExtract_FlattensNestedObjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"Name": {"First": "Ada", "last": "Lovelace"}, "tags": ["a", "b"]}]`)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, testLogger())
	stream, err := e.Extract(context.Background(), models.Source{BaseURL: srv.URL})
	require.NoError(t, err)

	records := collect(t, stream)
	require.Len(t, records, 1)
	assert.Equal(t, "Ada", records[0]["name_first"])
	assert.Equal(t, "Lovelace", records[0]["name_last"])
	assert.Equal(t, `["a","b"]`, records[0]["tags"])
}

func TestExtract_QueryAndHeaders(t *testing.T) {
	var gotQuery, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("results")
		gotHeader = r.Header.Get("X-Api-Key")
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, testLogger())
	src := models.Source{
		BaseURL: srv.URL,
		Path:    "api",
		Query:   map[string]string{"results": "50"},
		Headers: map[string]string{"X-Api-Key": "secret"},
	}
	_, err := e.Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "50", gotQuery)
	assert.Equal(t, "secret", gotHeader)
}

func TestExtract_Non2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, testLogger())
	_, err := e.Extract(context.Background(), models.Source{BaseURL: srv.URL})
	require.Error(t, err)

	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, http.StatusTooManyRequests, exErr.StatusCode)
	assert.Contains(t, exErr.Error(), "rate limited")
}

func TestExtract_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"results": [`)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, testLogger())
	_, err := e.Extract(context.Background(), models.Source{BaseURL: srv.URL})

	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Contains(t, exErr.Error(), "malformed JSON")
}

func TestExtract_MissingDataPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"rows": []}`)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, testLogger())
	_, err := e.Extract(context.Background(), models.Source{BaseURL: srv.URL, DataPath: "items"})

	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Contains(t, exErr.Error(), `"items" not found`)
}

func TestExtract_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e := NewExtractor(time.Second, testLogger())
	_, err := e.Extract(context.Background(), models.Source{BaseURL: srv.URL})

	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Zero(t, exErr.StatusCode)
}

func TestExtract_ScalarItemRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id": 1}, 42]`)
	}))
	defer srv.Close()

	e := NewExtractor(5*time.Second, testLogger())
	_, err := e.Extract(context.Background(), models.Source{BaseURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1 is not a JSON object")
}
