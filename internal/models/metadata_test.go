package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataScan(t *testing.T) {
	var m Metadata
	require.NoError(t, m.Scan([]byte(`{"recurring":true,"recurringSequence":2}`)))
	assert.True(t, m.Bool(MetaRecurring))
	assert.Equal(t, 2, m.Int(MetaRecurringSequence))

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	require.NoError(t, m.Scan(""))
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))
	assert.Error(t, m.Scan("{not json"))
}

func TestMetadataValue(t *testing.T) {
	v, err := Metadata(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	v, err = Metadata{MetaError: "boom"}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"boom"}`, v.(string))
}

func TestMetadataAccessors(t *testing.T) {
	m := Metadata{
		"flag":  "true",
		"n":     int64(7),
		"at":    "2024-01-02T03:04:05Z",
		"bogus": "yesterday",
	}
	assert.True(t, m.Bool("flag"))
	assert.False(t, m.Bool("missing"))
	assert.Equal(t, 7, m.Int("n"))
	assert.Zero(t, m.Int("flag"))

	at, ok := m.Time("at")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), at)
	_, ok = m.Time("bogus")
	assert.False(t, ok)

	merged := m.Merge(Metadata{"n": 8, "extra": "x"})
	assert.Equal(t, 8, merged.Int("n"))
	assert.Equal(t, "x", merged.String("extra"))
	assert.Equal(t, 7, m.Int("n"), "merge must not mutate the receiver")
}
