package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	json "github.com/goccy/go-json"
	"google.golang.org/api/iterator"

	"fanout/internal/config"
	"fanout/internal/etl"
	"fanout/pkg/database"
	"fanout/pkg/logger"
	"fanout/pkg/models"
)

// runPipeline wires one run end to end: environment config, pipeline
// file, extractor, transformer and the matched sinks. The summary is
// printed whenever the run produced one, even when the run failed.
func runPipeline(ctx context.Context, pipelineFile string, dryRun bool, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.Setup(cfg.LogLevel)

	p, err := loadPipelineFile(pipelineFile)
	if err != nil {
		return err
	}

	sinks, err := buildSinks(cfg, p, log)
	if err != nil {
		return err
	}

	extractor := etl.NewExtractor(models.Timeout(p.Source.Timeout, 0), log)
	transformer := etl.NewTransformer(p.Fields, p.OnInvalid, log)
	orch := etl.NewOrchestrator(p, extractor, transformer, sinks, dryRun, log)

	summary, err := orch.Run(ctx)
	if summary != nil {
		if perr := printSummary(out, summary); perr != nil {
			return perr
		}
	}
	return err
}

// previewPipeline runs extract and transform only and prints the leading
// rows as JSON lines. Sink configuration is not required.
func previewPipeline(ctx context.Context, pipelineFile string, limit int, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.LogLevel)

	p, err := loadPipelineFile(pipelineFile)
	if err != nil {
		return err
	}

	extractor := etl.NewExtractor(models.Timeout(p.Source.Timeout, 0), log)
	stream, err := extractor.Extract(ctx, p.Source)
	if err != nil {
		return err
	}

	transformer := etl.NewTransformer(p.Fields, p.OnInvalid, log)
	ds, dropped, err := transformer.Transform(stream)
	if err != nil {
		return err
	}

	shown := max(0, min(limit, ds.Len()))
	enc := json.NewEncoder(out)
	for i := 0; i < shown; i++ {
		if err := enc.Encode(ds.RowMap(i)); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "%d of %d rows shown (%d dropped), fingerprint %s\n",
		shown, ds.Len(), len(dropped), ds.Fingerprint())
	return nil
}

// storeProbe opens, pings and closes one configured store.
type storeProbe struct {
	name string
	ping func(context.Context) error
}

// checkConnections probes every store the environment configures and
// reports one line per store. Any unreachable store fails the command.
func checkConnections(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Setup(cfg.LogLevel)

	probes := configuredProbes(cfg)

	failed := 0
	for _, p := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.SinkTimeout)
		err := p.ping(probeCtx)
		cancel()
		if err != nil {
			failed++
			fmt.Fprintf(out, "%-12s failed: %v\n", p.name, err)
			continue
		}
		fmt.Fprintf(out, "%-12s ok\n", p.name)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d stores unreachable", failed, len(probes))
	}
	return nil
}

func configuredProbes(cfg *config.Config) []storeProbe {
	var probes []storeProbe
	if rc := cfg.Relational; rc != nil {
		probes = append(probes, storeProbe{
			name: "relational",
			ping: func(ctx context.Context) error {
				db, err := database.ConnectSQL(ctx, rc.Driver, rc.DSN())
				if err != nil {
					return err
				}
				return db.Close()
			},
		})
	}
	if dc := cfg.Document; dc != nil {
		probes = append(probes, storeProbe{
			name: "document",
			ping: func(ctx context.Context) error {
				client, err := database.ConnectMongo(ctx, dc.URI())
				if err != nil {
					return err
				}
				return client.Disconnect(ctx)
			},
		})
	}
	if wc := cfg.Warehouse; wc != nil {
		probes = append(probes, storeProbe{
			name: "warehouse",
			ping: func(ctx context.Context) error {
				client, err := database.ConnectBigQuery(ctx, wc.ProjectID, wc.CredentialsFile)
				if err != nil {
					return err
				}
				defer client.Close()
				// one datasets.list page proves the project is reachable
				// and the credentials are accepted; an empty project is ok
				if _, err := client.Datasets(ctx).Next(); err != nil && err != iterator.Done {
					return err
				}
				return nil
			},
		})
	}
	return probes
}

// buildSinks matches the pipeline's sink targets against the configured
// stores. A target whose store section is absent from the environment is
// an error rather than a silent skip.
func buildSinks(cfg *config.Config, p *models.Pipeline, log *slog.Logger) ([]etl.Sink, error) {
	var sinks []etl.Sink
	if t := p.Sinks.Relational; t != nil {
		if cfg.Relational == nil {
			return nil, fmt.Errorf("pipeline targets the relational sink but DB_HOST is not set")
		}
		sinks = append(sinks, etl.NewRelationalSink(cfg.Relational, t, models.Timeout(t.Timeout, cfg.SinkTimeout), log))
	}
	if t := p.Sinks.Document; t != nil {
		if cfg.Document == nil {
			return nil, fmt.Errorf("pipeline targets the document sink but MONGO_HOST is not set")
		}
		sinks = append(sinks, etl.NewDocumentSink(cfg.Document, t, models.Timeout(t.Timeout, cfg.SinkTimeout), log))
	}
	if t := p.Sinks.Warehouse; t != nil {
		if cfg.Warehouse == nil {
			return nil, fmt.Errorf("pipeline targets the warehouse sink but BIG_QUERY_PROJECT_ID is not set")
		}
		sinks = append(sinks, etl.NewWarehouseSink(cfg.Warehouse, t, models.Timeout(t.Timeout, cfg.SinkTimeout), log))
	}
	return sinks, nil
}

func loadPipelineFile(path string) (*models.Pipeline, error) {
	p, err := models.LoadPipeline(path)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline %s: %w", path, err)
	}
	return p, nil
}

func printSummary(out io.Writer, summary *etl.RunSummary) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
