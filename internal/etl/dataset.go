package etl

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ColumnType enumerates the value types a dataset column can hold.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInt       ColumnType = "int"
	TypeFloat     ColumnType = "float"
	TypeBool      ColumnType = "bool"
	TypeTimestamp ColumnType = "timestamp"
)

// Column is one named, typed slot of the dataset schema.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema fixes the column set of a dataset. Column order follows the
// declared field mapping, so the same pipeline always produces the same
// layout.
type Schema struct {
	Columns []Column `json:"columns"`
}

// ColumnNames returns the column names in schema order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1 if absent.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Dataset is the product of transformation: a fixed schema and typed
// rows. It is frozen once built; sinks read it concurrently and must not
// modify the slices it hands out.
type Dataset struct {
	schema Schema
	rows   [][]interface{}
}

// NewDataset wraps the given schema and rows. Every row must have one
// value per schema column, positionally aligned.
func NewDataset(schema Schema, rows [][]interface{}) *Dataset {
	return &Dataset{schema: schema, rows: rows}
}

func (d *Dataset) Schema() Schema { return d.schema }

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Row returns row i as schema-ordered values. Read only.
func (d *Dataset) Row(i int) []interface{} { return d.rows[i] }

// RowMap returns row i as a fresh column-name keyed map.
func (d *Dataset) RowMap(i int) map[string]interface{} {
	m := make(map[string]interface{}, len(d.schema.Columns))
	for j, c := range d.schema.Columns {
		m[c.Name] = d.rows[i][j]
	}
	return m
}

// Fingerprint hashes the schema and every value in row order. Two
// datasets built from the same input by the same mapping produce the
// same fingerprint, which makes run determinism cheap to assert.
func (d *Dataset) Fingerprint() string {
	h := xxhash.New()
	for _, c := range d.schema.Columns {
		h.WriteString(c.Name)
		h.WriteString(":")
		h.WriteString(string(c.Type))
		h.Write([]byte{0x1f})
	}
	h.Write([]byte{0x1e})
	for _, row := range d.rows {
		for _, v := range row {
			h.WriteString(canonicalValue(v))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func canonicalValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "\x00"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}
