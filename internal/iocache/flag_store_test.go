package iocache

import (
	"strings"
	"testing"
	"time"

	"github.com/huangsam/spikewave/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUnit(probe string) schema.UnitKey {
	return schema.UnitKey{Session: "2024-03-01_611311", Recording: "recording1", Probe: probe}
}

func TestFlagStore_NoneBackend(t *testing.T) {
	store, err := NewFlagStore(flagsTable, schema.NoneBackend, "")
	require.NoError(t, err)

	_, ok, err := store.Get(testUnit("A"))
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, store.Set(schema.UnitFlag{UnitKey: testUnit("A"), Skip: true}))
	assert.NoError(t, store.Clear(testUnit("A")))

	flags, err := store.List()
	assert.NoError(t, err)
	assert.Empty(t, flags)

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Equal(t, "none", status.Backend)

	assert.NoError(t, store.Close())
}

func TestFlagStore_SQLite(t *testing.T) {
	store, err := NewFlagStore(flagsTable, schema.SQLiteBackend, ":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	unit := testUnit("A")
	_, ok, err := store.Get(unit)
	require.NoError(t, err)
	assert.False(t, ok, "no flag before the first Set")

	stamp := time.Date(2024, 3, 1, 9, 0, 0, 123, time.UTC)
	require.NoError(t, store.Set(schema.UnitFlag{UnitKey: unit, Skip: true, Reason: "alignment failure", UpdatedAt: stamp}))

	got, ok, err := store.Get(unit)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, unit, got.UnitKey)
	assert.True(t, got.Skip)
	assert.Equal(t, "alignment failure", got.Reason)
	assert.True(t, stamp.Equal(got.UpdatedAt))

	// Upsert replaces the row in place
	require.NoError(t, store.Set(schema.UnitFlag{UnitKey: unit, Skip: false}))
	got, ok, err = store.Get(unit)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Skip)
	assert.Empty(t, got.Reason)
	assert.False(t, got.UpdatedAt.IsZero(), "zero UpdatedAt is stamped with now")

	require.NoError(t, store.Set(schema.UnitFlag{UnitKey: testUnit("B"), Skip: true, Reason: "manual"}))
	flags, err := store.List()
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, "A", flags[0].Probe)
	assert.Equal(t, "B", flags[1].Probe)

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, 2, status.TotalFlags)
	assert.Equal(t, 1, status.SkipFlags)
	assert.False(t, status.LastFlagTime.IsZero())

	require.NoError(t, store.Clear(unit))
	_, ok, err = store.Get(unit)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlagStore_EmptyStatus(t *testing.T) {
	store, err := NewFlagStore(flagsTable, schema.SQLiteBackend, ":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.Zero(t, status.TotalFlags)
	assert.Zero(t, status.SkipFlags)
	assert.True(t, status.LastFlagTime.IsZero())
}

func TestNewFlagStoreErrors(t *testing.T) {
	_, err := NewFlagStore("bad-name", schema.SQLiteBackend, ":memory:")
	assert.ErrorContains(t, err, "invalid table name")

	_, err = NewFlagStore(flagsTable, "oracle", "")
	assert.ErrorContains(t, err, "unsupported backend")
}

func TestGetUpsertQuery(t *testing.T) {
	tests := []struct {
		backend  schema.DatabaseBackend
		contains string
	}{
		{schema.SQLiteBackend, "INSERT OR REPLACE INTO"},
		{schema.MySQLBackend, "ON DUPLICATE KEY UPDATE"},
		{schema.PostgreSQLBackend, "ON CONFLICT (session_name, recording, probe) DO UPDATE"},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			fs := &FlagStoreImpl{tableName: flagsTable, backend: tt.backend}
			query := fs.getUpsertQuery()
			assert.Contains(t, query, tt.contains)
			assert.Contains(t, query, ":skip_unit")
		})
	}
}

func TestGetCreateFlagsTableQuery(t *testing.T) {
	for _, backend := range []schema.DatabaseBackend{schema.SQLiteBackend, schema.MySQLBackend, schema.PostgreSQLBackend} {
		query := getCreateFlagsTableQuery(flagsTable, backend)
		assert.True(t, strings.Contains(query, "CREATE TABLE IF NOT EXISTS"), backend)
		assert.Contains(t, query, "PRIMARY KEY (session_name, recording, probe)")
	}
	assert.Contains(t, getCreateFlagsTableQuery(flagsTable, schema.MySQLBackend), "VARCHAR(255)")
}
