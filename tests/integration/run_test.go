package integration

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"fanout/internal/cli"
)

const peopleBody = `{"results": [
	{"id": 1, "name": "ada", "value": 0.5},
	{"id": 2, "name": "grace", "value": 0.9},
	{"id": 3, "name": "joan", "value": 1.5}
]}`

func clearStoreEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"MONGO_HOST", "MONGO_PORT", "MONGO_USER", "MONGO_PASSWORD", "MONGO_NAME", "MONGO_AUTH_SOURCE",
		"BIG_QUERY_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS",
		"LOG_LEVEL", "SINK_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func apiServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writePipeline(t *testing.T, baseURL, sinks string) string {
	t.Helper()
	doc := fmt.Sprintf(`name: people
source:
  baseUrl: %s
fields:
  - name: id
    type: int
    required: true
  - name: name
    type: string
  - name: value
    type: float
sinks:
%s
`, baseURL, sinks)
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := cli.NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func parseSummary(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	return summary
}

func TestRun_RelationalRoundTrip(t *testing.T) {
	clearStoreEnv(t)
	dbPath := filepath.Join(t.TempDir(), "fanout.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", dbPath)

	srv := apiServer(t, peopleBody)
	pipeline := writePipeline(t, srv.URL, "  relational:\n    table: people")

	out, err := execute(t, "run", "-p", pipeline)
	require.NoError(t, err)

	summary := parseSummary(t, out)
	assert.EqualValues(t, 3, summary["extracted"])
	assert.EqualValues(t, 3, summary["rows"])
	assert.NotEmpty(t, summary["fingerprint"])

	results, ok := summary["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "relational", first["sink"])
	assert.EqualValues(t, 3, first["rowsWritten"])

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM people").Scan(&count))
	assert.Equal(t, 3, count)

	var name string
	var value float64
	require.NoError(t, db.QueryRow("SELECT name, value FROM people WHERE id = ?", 2).Scan(&name, &value))
	assert.Equal(t, "grace", name)
	assert.Equal(t, 0.9, value)
}

func TestRun_PartialSinkFailureStillSucceeds(t *testing.T) {
	clearStoreEnv(t)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", filepath.Join(t.TempDir(), "fanout.db"))
	// nothing listens on port 1, so the document sink cannot connect
	t.Setenv("MONGO_HOST", "127.0.0.1")
	t.Setenv("MONGO_PORT", "1")
	t.Setenv("MONGO_NAME", "fanout")
	t.Setenv("SINK_TIMEOUT", "500ms")

	srv := apiServer(t, peopleBody)
	pipeline := writePipeline(t, srv.URL,
		"  relational:\n    table: people\n  document:\n    collection: people")

	out, err := execute(t, "run", "-p", pipeline)
	require.NoError(t, err, "one sink succeeding keeps the run successful")

	summary := parseSummary(t, out)
	results, ok := summary["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)

	relational := results[0].(map[string]interface{})
	assert.Equal(t, "relational", relational["sink"])
	assert.EqualValues(t, 3, relational["rowsWritten"])
	assert.Empty(t, relational["error"])

	document := results[1].(map[string]interface{})
	assert.Equal(t, "document", document["sink"])
	assert.NotEmpty(t, document["error"])
}

func TestRun_AllSinksFailed(t *testing.T) {
	clearStoreEnv(t)
	t.Setenv("MONGO_HOST", "127.0.0.1")
	t.Setenv("MONGO_PORT", "1")
	t.Setenv("MONGO_NAME", "fanout")
	t.Setenv("SINK_TIMEOUT", "500ms")

	srv := apiServer(t, peopleBody)
	pipeline := writePipeline(t, srv.URL, "  document:\n    collection: people")

	out, err := execute(t, "run", "-p", pipeline)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all sinks failed")

	summary := parseSummary(t, out)
	results, ok := summary["results"].([]interface{})
	require.True(t, ok, "the summary still carries the failed results")
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].(map[string]interface{})["error"])
}

func TestRun_MalformedPayloadProducesNoResults(t *testing.T) {
	clearStoreEnv(t)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", filepath.Join(t.TempDir(), "fanout.db"))

	srv := apiServer(t, `this is not json`)
	pipeline := writePipeline(t, srv.URL, "  relational:\n    table: people")

	out, err := execute(t, "run", "-p", pipeline)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed JSON")
	assert.Empty(t, out, "a fatal extraction error produces no load results")
}
