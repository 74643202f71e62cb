package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataValueAndScan(t *testing.T) {
	meta := Metadata{"payment_status": "paid", "captured": true}

	value, err := meta.Value()
	require.NoError(t, err)

	var scanned Metadata
	require.NoError(t, scanned.Scan([]byte(value.(string))))
	assert.Equal(t, "paid", scanned.String("payment_status"))
	assert.Equal(t, true, scanned["captured"])

	var fromString Metadata
	require.NoError(t, fromString.Scan(value))
	assert.Equal(t, scanned, fromString)
}

func TestMetadataScanNil(t *testing.T) {
	meta := Metadata{"stale": "x"}
	require.NoError(t, meta.Scan(nil))
	assert.Empty(t, meta)
}

func TestMetadataScanRejectsUnknownType(t *testing.T) {
	var meta Metadata
	require.Error(t, meta.Scan(42))
}

func TestMetadataMergeDoesNotMutate(t *testing.T) {
	base := Metadata{"a": "1", "b": "2"}
	merged := base.Merge(Metadata{"b": "3", "c": "4"})

	assert.Equal(t, Metadata{"a": "1", "b": "3", "c": "4"}, merged)
	assert.Equal(t, "2", base["b"])
}

func TestRawJSONRejectsInvalid(t *testing.T) {
	_, err := RawJSON(`{"id":`).Value()
	require.Error(t, err)

	value, err := RawJSON(`{"id":"evt_1"}`).Value()
	require.NoError(t, err)
	assert.Equal(t, `{"id":"evt_1"}`, value)
}
