package etl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanout/pkg/models"
)

func mappingFields() []models.Field {
	return []models.Field{
		{Name: "id", Type: "int", Required: true},
		{Name: "full_name", Source: "name_first", Type: "string"},
		{Name: "score", Type: "float", Default: 0.0},
		{Name: "active", Type: "bool"},
	}
}

func rawStream(records ...RawRecord) *RecordStream {
	return newRecordStream(records)
}

func TestTransform_RenamesAndCoerces(t *testing.T) {
	tr := NewTransformer(mappingFields(), models.OnInvalidFail, testLogger())
	ds, dropped, err := tr.Transform(rawStream(
		RawRecord{"id": float64(7), "name_first": "Ada", "score": "0.5", "active": true},
	))
	require.NoError(t, err)
	require.Empty(t, dropped)
	require.Equal(t, 1, ds.Len())

	row := ds.RowMap(0)
	assert.Equal(t, int64(7), row["id"])
	assert.Equal(t, "Ada", row["full_name"])
	assert.Equal(t, 0.5, row["score"])
	assert.Equal(t, true, row["active"])
}

func TestTransform_DefaultAndNullHandling(t *testing.T) {
	tr := NewTransformer(mappingFields(), models.OnInvalidFail, testLogger())
	ds, _, err := tr.Transform(rawStream(RawRecord{"id": float64(1)}))
	require.NoError(t, err)

	row := ds.RowMap(0)
	assert.Equal(t, 0.0, row["score"], "absent value takes the declared default")
	assert.Nil(t, row["full_name"], "absent optional value without default stays null")
	assert.Nil(t, row["active"])
}

func TestTransform_FailPolicyAborts(t *testing.T) {
	tr := NewTransformer(mappingFields(), models.OnInvalidFail, testLogger())
	ds, dropped, err := tr.Transform(rawStream(
		RawRecord{"id": float64(1)},
		RawRecord{"id": "not-a-number"},
		RawRecord{"id": float64(3)},
	))
	require.Error(t, err)
	assert.Nil(t, ds)
	assert.Empty(t, dropped)

	verr, ok := err.(*SchemaValidationError)
	require.True(t, ok)
	assert.Equal(t, 1, verr.Index)
	assert.Equal(t, "id", verr.Field)
}

func TestTransform_DropPolicySkipsAndReports(t *testing.T) {
	tr := NewTransformer(mappingFields(), models.OnInvalidDrop, testLogger())
	ds, dropped, err := tr.Transform(rawStream(
		RawRecord{"id": float64(1)},
		RawRecord{"id": "bad"},
		RawRecord{},
		RawRecord{"id": float64(4)},
	))
	require.NoError(t, err)

	// dataset size equals input minus the individually reported failures
	assert.Equal(t, 2, ds.Len())
	require.Len(t, dropped, 2)
	assert.Equal(t, 1, dropped[0].Index)
	assert.Equal(t, 2, dropped[1].Index)
	assert.Equal(t, "required field missing", dropped[1].Reason)

	assert.Equal(t, int64(1), ds.RowMap(0)["id"])
	assert.Equal(t, int64(4), ds.RowMap(1)["id"])
}

func TestTransform_RequiredMissing(t *testing.T) {
	tr := NewTransformer(mappingFields(), models.OnInvalidFail, testLogger())
	_, _, err := tr.Transform(rawStream(RawRecord{"name_first": "Ada"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required field missing")
}

func TestTransform_Deterministic(t *testing.T) {
	input := func() *RecordStream {
		return rawStream(
			RawRecord{"id": float64(1), "name_first": "Ada", "score": float64(1), "active": false},
			RawRecord{"id": float64(2), "name_first": "Grace", "score": float64(2), "active": true},
		)
	}

	tr := NewTransformer(mappingFields(), models.OnInvalidFail, testLogger())
	a, _, err := tr.Transform(input())
	require.NoError(t, err)
	b, _, err := tr.Transform(input())
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestTransform_TimestampField(t *testing.T) {
	fields := []models.Field{{Name: "seen_at", Type: "timestamp", Required: true}}
	tr := NewTransformer(fields, models.OnInvalidFail, testLogger())

	ds, _, err := tr.Transform(rawStream(RawRecord{"seen_at": "2024-06-01T12:00:00Z"}))
	require.NoError(t, err)

	got, ok := ds.RowMap(0)["seen_at"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), got.UTC())
}

func TestTransform_EmptyStream(t *testing.T) {
	tr := NewTransformer(mappingFields(), models.OnInvalidFail, testLogger())
	ds, dropped, err := tr.Transform(rawStream())
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	assert.Empty(t, dropped)
	assert.Len(t, ds.Schema().Columns, 4)
}
