package etl

import (
	"fmt"
	"log/slog"

	"fanout/pkg/models"
	"fanout/pkg/utils"
)

// Transformer shapes raw records into a typed Dataset following the
// declared field mapping: per field it renames the source key, coerces
// the value to the declared type and applies the default when the source
// value is absent.
type Transformer struct {
	fields    []models.Field
	onInvalid string
	log       *slog.Logger
}

func NewTransformer(fields []models.Field, onInvalid string, log *slog.Logger) *Transformer {
	if onInvalid == "" {
		onInvalid = models.OnInvalidFail
	}
	return &Transformer{fields: fields, onInvalid: onInvalid, log: log}
}

// Schema returns the dataset schema implied by the mapping, columns in
// declared field order.
func (t *Transformer) Schema() Schema {
	cols := make([]Column, len(t.fields))
	for i, f := range t.fields {
		cols[i] = Column{Name: f.Name, Type: ColumnType(f.Type)}
	}
	return Schema{Columns: cols}
}

// Transform consumes the stream and builds the dataset. A record that
// cannot be shaped aborts the run under the fail policy; under drop it
// is skipped and reported in the returned slice, record order otherwise
// preserved.
func (t *Transformer) Transform(stream *RecordStream) (*Dataset, []*SchemaValidationError, error) {
	var (
		rows    [][]interface{}
		dropped []*SchemaValidationError
	)

	idx := -1
	for stream.Next() {
		idx++
		row, verr := t.buildRow(idx, stream.Record())
		if verr != nil {
			if t.onInvalid == models.OnInvalidDrop {
				t.log.Warn("dropping invalid record",
					"index", verr.Index, "field", verr.Field, "reason", verr.Reason)
				dropped = append(dropped, verr)
				continue
			}
			return nil, nil, verr
		}
		rows = append(rows, row)
	}

	t.log.Info("transformation complete", "rows", len(rows), "dropped", len(dropped))
	return NewDataset(t.Schema(), rows), dropped, nil
}

func (t *Transformer) buildRow(idx int, rec RawRecord) ([]interface{}, *SchemaValidationError) {
	row := make([]interface{}, len(t.fields))
	for i, f := range t.fields {
		val, ok := rec[f.SourceKey()]
		if !ok || val == nil {
			if f.Default != nil {
				coerced, err := utils.Coerce(f.Default, f.Type)
				if err != nil {
					return nil, &SchemaValidationError{
						Index:  idx,
						Field:  f.Name,
						Reason: fmt.Sprintf("default value: %v", err),
					}
				}
				row[i] = coerced
				continue
			}
			if f.Required {
				return nil, &SchemaValidationError{Index: idx, Field: f.Name, Reason: "required field missing"}
			}
			row[i] = nil
			continue
		}

		coerced, err := utils.Coerce(val, f.Type)
		if err != nil {
			return nil, &SchemaValidationError{Index: idx, Field: f.Name, Reason: err.Error()}
		}
		row[i] = coerced
	}
	return row, nil
}
