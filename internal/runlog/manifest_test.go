package runlog

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManifest([]string{"cus_a", "cus_b"}, []string{"clock_a"})
	require.NoError(t, m.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, loaded.RunID)
	assert.Equal(t, m.CustomerIDs, loaded.CustomerIDs)
	assert.Equal(t, m.ClockIDs, loaded.ClockIDs)
	assert.WithinDuration(t, m.RunTimestamp, loaded.RunTimestamp, 0)
}

func TestManifestRunIDIsULID(t *testing.T) {
	m := NewManifest(nil, nil)
	_, err := ulid.Parse(m.RunID)
	require.NoError(t, err)

	other := NewManifest(nil, nil)
	assert.NotEqual(t, m.RunID, other.RunID)
}

func TestContainsCustomer(t *testing.T) {
	m := NewManifest([]string{"cus_a", "cus_b"}, nil)
	assert.True(t, m.ContainsCustomer("cus_a"))
	assert.True(t, m.ContainsCustomer("cus_b"))
	assert.False(t, m.ContainsCustomer("cus_c"))
	assert.False(t, m.ContainsCustomer(""))
}

func TestLoadMissingManifest(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}
