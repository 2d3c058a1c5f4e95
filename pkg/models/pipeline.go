package models

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Invalid-record policies applied by the transform stage.
const (
	OnInvalidFail = "fail" // first invalid record aborts the run
	OnInvalidDrop = "drop" // invalid records are dropped and reported
)

// DefaultBatchSize is the write chunk size used when a sink target does
// not set one.
const DefaultBatchSize = 1000

// Pipeline is the root of the declarative pipeline file. It names the
// HTTP source, the field mapping that produces the dataset schema, and
// the sink targets the dataset fans out to. Connection credentials never
// appear here; they come from the environment.
type Pipeline struct {
	Name      string      `json:"name" yaml:"name"`
	Source    Source      `json:"source" yaml:"source"`
	Fields    []Field     `json:"fields" yaml:"fields"`
	OnInvalid string      `json:"onInvalid,omitempty" yaml:"onInvalid,omitempty"`
	Sinks     SinkTargets `json:"sinks" yaml:"sinks"`
}

// Source describes the REST endpoint to extract from.
type Source struct {
	BaseURL  string            `json:"baseUrl" yaml:"baseUrl"`
	Path     string            `json:"path,omitempty" yaml:"path,omitempty"`
	Query    map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	DataPath string            `json:"dataPath,omitempty" yaml:"dataPath,omitempty"`
	Timeout  string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Field maps one flattened response key to a typed dataset column.
type Field struct {
	Name     string      `json:"name" yaml:"name"`
	Source   string      `json:"source,omitempty" yaml:"source,omitempty"`
	Type     string      `json:"type" yaml:"type"`
	Required bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Default  interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// SourceKey returns the flattened response key this field reads from,
// which defaults to the column name.
func (f Field) SourceKey() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// SinkTargets declares where the dataset is written. A nil target means
// that sink is not part of this pipeline.
type SinkTargets struct {
	Relational *RelationalTarget `json:"relational,omitempty" yaml:"relational,omitempty"`
	Document   *DocumentTarget   `json:"document,omitempty" yaml:"document,omitempty"`
	Warehouse  *WarehouseTarget  `json:"warehouse,omitempty" yaml:"warehouse,omitempty"`
}

type RelationalTarget struct {
	Table     string   `json:"table" yaml:"table"`
	Columns   []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	BatchSize int      `json:"batchSize,omitempty" yaml:"batchSize,omitempty"`
	Timeout   string   `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

type DocumentTarget struct {
	Collection string `json:"collection" yaml:"collection"`
	BatchSize  int    `json:"batchSize,omitempty" yaml:"batchSize,omitempty"`
	Timeout    string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

type WarehouseTarget struct {
	Dataset string `json:"dataset" yaml:"dataset"`
	Table   string `json:"table" yaml:"table"`
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// LoadPipeline reads and parses a pipeline file, choosing the codec by
// extension: .yaml/.yml or .json.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file %q: %w", path, err)
	}

	var p Pipeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse pipeline file %q: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse pipeline file %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported pipeline file extension %q (want .yaml, .yml or .json)", filepath.Ext(path))
	}
	return &p, nil
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var fieldTypes = map[string]bool{
	"string":    true,
	"int":       true,
	"float":     true,
	"bool":      true,
	"timestamp": true,
}

// Validate checks the pipeline document and fills in defaults (onInvalid
// policy, batch sizes). It must be called before the pipeline is run.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if p.Source.BaseURL == "" {
		return fmt.Errorf("source.baseUrl is required")
	}
	if err := checkTimeout("source.timeout", p.Source.Timeout); err != nil {
		return err
	}

	switch p.OnInvalid {
	case "":
		p.OnInvalid = OnInvalidFail
	case OnInvalidFail, OnInvalidDrop:
	default:
		return fmt.Errorf("onInvalid must be %q or %q, got %q", OnInvalidFail, OnInvalidDrop, p.OnInvalid)
	}

	if len(p.Fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}
	names := make(map[string]bool, len(p.Fields))
	for i, f := range p.Fields {
		if !identifierRe.MatchString(f.Name) {
			return fmt.Errorf("fields[%d]: invalid column name %q", i, f.Name)
		}
		if names[f.Name] {
			return fmt.Errorf("fields[%d]: duplicate column name %q", i, f.Name)
		}
		names[f.Name] = true
		if !fieldTypes[f.Type] {
			return fmt.Errorf("fields[%d] (%s): unknown type %q", i, f.Name, f.Type)
		}
	}

	if p.Sinks.Relational == nil && p.Sinks.Document == nil && p.Sinks.Warehouse == nil {
		return fmt.Errorf("at least one sink target is required")
	}

	if t := p.Sinks.Relational; t != nil {
		if !identifierRe.MatchString(t.Table) {
			return fmt.Errorf("sinks.relational: invalid table name %q", t.Table)
		}
		for _, col := range t.Columns {
			if !names[col] {
				return fmt.Errorf("sinks.relational: column %q is not a declared field", col)
			}
		}
		if t.BatchSize <= 0 {
			t.BatchSize = DefaultBatchSize
		}
		if err := checkTimeout("sinks.relational.timeout", t.Timeout); err != nil {
			return err
		}
	}
	if t := p.Sinks.Document; t != nil {
		if !identifierRe.MatchString(t.Collection) {
			return fmt.Errorf("sinks.document: invalid collection name %q", t.Collection)
		}
		if t.BatchSize <= 0 {
			t.BatchSize = DefaultBatchSize
		}
		if err := checkTimeout("sinks.document.timeout", t.Timeout); err != nil {
			return err
		}
	}
	if t := p.Sinks.Warehouse; t != nil {
		if !identifierRe.MatchString(t.Dataset) {
			return fmt.Errorf("sinks.warehouse: invalid dataset name %q", t.Dataset)
		}
		if !identifierRe.MatchString(t.Table) {
			return fmt.Errorf("sinks.warehouse: invalid table name %q", t.Table)
		}
		if err := checkTimeout("sinks.warehouse.timeout", t.Timeout); err != nil {
			return err
		}
	}
	return nil
}

func checkTimeout(field, s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// Timeout parses a per-target timeout string, falling back to def when
// unset. Validate has already rejected unparseable values.
func Timeout(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
