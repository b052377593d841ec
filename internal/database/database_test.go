package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "sos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPreferences(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	_, ok, err := db.GetPreference(ctx, KeyUserName)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SetPreference(ctx, KeyUserName, "Ada"))
	require.NoError(t, db.SetPreference(ctx, KeyUserName, "Grace"))
	name, ok, err := db.GetPreference(ctx, KeyUserName)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Grace", name)

	require.NoError(t, db.DeletePreference(ctx, KeyUserName))
	require.NoError(t, db.DeletePreference(ctx, KeyUserName))
	_, ok, err = db.GetPreference(ctx, KeyUserName)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreferencesPersist(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sos.db")
	ctx := context.Background()

	db, err := NewSQLiteDB(path)
	require.NoError(t, err)
	require.NoError(t, db.SetPreference(ctx, KeyUserName, "Ada"))
	require.NoError(t, db.Close())

	db, err = NewSQLiteDB(path)
	require.NoError(t, err)
	defer db.Close()
	name, ok, err := db.GetPreference(ctx, KeyUserName)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ada", name)
}
