package etl

import (
	"strings"

	json "github.com/goccy/go-json"
)

// RawRecord is one untyped item of the extracted payload. Nested objects
// are flattened into underscore-joined, lowercased keys ("name.first"
// becomes "name_first"), so the field mapping can address any depth of
// the source document with a flat source key. Arrays and other non-scalar
// leaves are kept as their compact JSON encoding.
type RawRecord map[string]interface{}

func flattenRecord(m map[string]interface{}) RawRecord {
	flat := make(RawRecord, len(m))
	flattenInto(flat, "", m)
	return flat
}

func flattenInto(flat RawRecord, prefix string, m map[string]interface{}) {
	for k, v := range m {
		key := normalizeKey(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch child := v.(type) {
		case map[string]interface{}:
			flattenInto(flat, key, child)
		case nil, bool, string, float64:
			flat[key] = child
		default:
			if b, err := json.Marshal(child); err == nil {
				flat[key] = string(b)
			} else {
				flat[key] = nil
			}
		}
	}
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, ".", "_"))
}

// RecordStream is a finite, single-pass cursor over extracted records.
type RecordStream struct {
	records []RawRecord
	pos     int
	cur     RawRecord
}

func newRecordStream(records []RawRecord) *RecordStream {
	return &RecordStream{records: records}
}

// Next advances the cursor and reports whether a record is available.
func (s *RecordStream) Next() bool {
	if s.pos >= len(s.records) {
		s.cur = nil
		return false
	}
	s.cur = s.records[s.pos]
	s.pos++
	return true
}

// Record returns the record the cursor is positioned on.
func (s *RecordStream) Record() RawRecord { return s.cur }
