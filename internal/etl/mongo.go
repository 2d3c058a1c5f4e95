package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fanout/internal/config"
	"fanout/pkg/database"
	"fanout/pkg/models"
)

// DocumentSink writes every dataset row as an independent document.
// Inserts are unordered, so one rejected document does not abort the
// rest of its batch; the result carries both written and failed counts.
type DocumentSink struct {
	cfg     *config.DocumentConfig
	target  *models.DocumentTarget
	timeout time.Duration
	log     *slog.Logger
}

func NewDocumentSink(cfg *config.DocumentConfig, target *models.DocumentTarget, timeout time.Duration, log *slog.Logger) *DocumentSink {
	return &DocumentSink{cfg: cfg, target: target, timeout: timeout, log: log}
}

func (s *DocumentSink) Name() string { return "document" }

// Load inserts the rows batch by batch. Rows rejected by the store are
// counted and reported as a sink failure; rows already written stay
// written. A connection-level error aborts the remaining batches.
func (s *DocumentSink) Load(ctx context.Context, ds *Dataset) (LoadResult, error) {
	res := LoadResult{Sink: s.Name()}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	client, err := database.ConnectMongo(ctx, s.cfg.URI())
	if err != nil {
		return res, &LoadError{Sink: s.Name(), Err: err}
	}
	defer func() {
		discCtx, discCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer discCancel()
		client.Disconnect(discCtx)
	}()

	coll := client.Database(s.cfg.Name).Collection(s.target.Collection)

	var firstErr error
	for start := 0; start < ds.Len(); start += s.target.BatchSize {
		end := min(start+s.target.BatchSize, ds.Len())
		docs := make([]interface{}, 0, end-start)
		for i := start; i < end; i++ {
			docs = append(docs, ds.RowMap(i))
		}

		_, insErr := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
		written, rejected, ok := bulkOutcome(len(docs), insErr)
		if !ok {
			return res, &LoadError{Sink: s.Name(), Err: insErr}
		}
		res.RowsWritten += written
		res.RowsFailed += rejected
		if insErr != nil && firstErr == nil {
			firstErr = insErr
		}
	}

	if res.RowsFailed > 0 {
		return res, &LoadError{
			Sink: s.Name(),
			Err:  fmt.Errorf("%d of %d documents rejected: %w", res.RowsFailed, ds.Len(), firstErr),
		}
	}

	s.log.Info("document load complete", "collection", s.target.Collection, "documents", res.RowsWritten)
	return res, nil
}

// bulkOutcome splits an unordered InsertMany outcome into written and
// rejected counts. An unordered insert attempts every document, so the
// batch minus the per-document write errors landed. ok is false when the
// error was connection-level rather than per-document.
func bulkOutcome(batch int, err error) (written, rejected int, ok bool) {
	if err == nil {
		return batch, 0, true
	}
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return 0, 0, false
	}
	return batch - len(bwe.WriteErrors), len(bwe.WriteErrors), true
}
