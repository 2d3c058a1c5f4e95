package etl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	json "github.com/goccy/go-json"
	"google.golang.org/api/googleapi"

	"fanout/internal/config"
	"fanout/pkg/database"
	"fanout/pkg/models"
)

// WarehouseSink stages the dataset as newline-delimited JSON and submits
// one BigQuery load job with append disposition, then blocks until the
// job settles.
type WarehouseSink struct {
	cfg     *config.WarehouseConfig
	target  *models.WarehouseTarget
	timeout time.Duration
	log     *slog.Logger
}

func NewWarehouseSink(cfg *config.WarehouseConfig, target *models.WarehouseTarget, timeout time.Duration, log *slog.Logger) *WarehouseSink {
	return &WarehouseSink{cfg: cfg, target: target, timeout: timeout, log: log}
}

func (s *WarehouseSink) Name() string { return "warehouse" }

func (s *WarehouseSink) Load(ctx context.Context, ds *Dataset) (LoadResult, error) {
	res := LoadResult{Sink: s.Name()}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	client, err := database.ConnectBigQuery(ctx, s.cfg.ProjectID, s.cfg.CredentialsFile)
	if err != nil {
		return res, &LoadError{Sink: s.Name(), Err: classifyWarehouseError(err)}
	}
	defer client.Close()

	buf, err := stageNDJSON(ds)
	if err != nil {
		return res, &LoadError{Sink: s.Name(), Err: err}
	}

	source := bigquery.NewReaderSource(buf)
	source.SourceFormat = bigquery.JSON
	source.Schema = warehouseSchema(ds.Schema())

	loader := client.Dataset(s.target.Dataset).Table(s.target.Table).LoaderFrom(source)
	loader.WriteDisposition = bigquery.WriteAppend

	job, err := loader.Run(ctx)
	if err != nil {
		return res, &LoadError{Sink: s.Name(), Err: classifyWarehouseError(err)}
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return res, &LoadError{Sink: s.Name(), Err: classifyWarehouseError(err)}
	}
	if err := status.Err(); err != nil {
		return res, &LoadError{Sink: s.Name(), Err: classifyWarehouseError(err)}
	}

	res.RowsWritten = ds.Len()
	s.log.Info("warehouse load complete",
		"dataset", s.target.Dataset, "table", s.target.Table, "rows", res.RowsWritten)
	return res, nil
}

// stageNDJSON renders the dataset as one JSON object per line, the shape
// BigQuery load jobs ingest.
func stageNDJSON(ds *Dataset) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	for i := 0; i < ds.Len(); i++ {
		if err := enc.Encode(ds.RowMap(i)); err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	return buf, nil
}

func warehouseSchema(schema Schema) bigquery.Schema {
	out := make(bigquery.Schema, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		out = append(out, &bigquery.FieldSchema{Name: c.Name, Type: warehouseFieldType(c.Type)})
	}
	return out
}

func warehouseFieldType(t ColumnType) bigquery.FieldType {
	switch t {
	case TypeInt:
		return bigquery.IntegerFieldType
	case TypeFloat:
		return bigquery.FloatFieldType
	case TypeBool:
		return bigquery.BooleanFieldType
	case TypeTimestamp:
		return bigquery.TimestampFieldType
	default:
		return bigquery.StringFieldType
	}
}

// classifyWarehouseError prefixes API failures with the class operators
// look for first: credentials, quota, or a schema mismatch.
func classifyWarehouseError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("authentication failed: %w", err)
	case http.StatusForbidden:
		if hasReason(apiErr, "quotaExceeded", "rateLimitExceeded") {
			return fmt.Errorf("quota exceeded: %w", err)
		}
		return fmt.Errorf("permission denied: %w", err)
	case http.StatusBadRequest:
		return fmt.Errorf("schema mismatch or invalid load: %w", err)
	}
	return err
}

func hasReason(apiErr *googleapi.Error, reasons ...string) bool {
	for _, item := range apiErr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}
