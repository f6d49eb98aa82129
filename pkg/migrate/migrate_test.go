package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/001_create_runs.up.sql":     {Data: []byte("CREATE TABLE runs (id TEXT PRIMARY KEY);")},
		"migrations/001_create_runs.down.sql":   {Data: []byte("DROP TABLE runs;")},
		"migrations/002_add_notes.up.sql":       {Data: []byte("ALTER TABLE runs ADD COLUMN notes TEXT;")},
		"migrations/002_add_notes.down.sql":     {Data: []byte("ALTER TABLE runs DROP COLUMN notes;")},
		"migrations/README.md":                  {Data: []byte("ignored")},
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFSProviderGetMigrations(t *testing.T) {
	p := NewFSProvider(testFS(), "migrations", "", SQLite)
	migrations, err := p.GetMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create runs", migrations[0].Name)
	assert.Contains(t, migrations[1].Up, "ADD COLUMN notes")
	assert.Contains(t, migrations[1].Down, "DROP COLUMN notes")
}

func TestMigrateUpAndDown(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(testFS(), "migrations", "", SQLite), nil)

	pending, err := m.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, m.MigrateUp())
	v, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = db.Exec("INSERT INTO runs (id, notes) VALUES ('a', 'b')")
	require.NoError(t, err)

	// Running again is a no-op.
	require.NoError(t, m.MigrateUp())

	require.NoError(t, m.MigrateTo(1))
	v, err = m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = db.Exec("INSERT INTO runs (id, notes) VALUES ('c', 'd')")
	assert.Error(t, err)

	require.NoError(t, m.MigrateDown(0))
	v, err = m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestMigrateDownRejectsHigherTarget(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(testFS(), "migrations", "", SQLite), nil)
	require.NoError(t, m.MigrateTo(1))
	assert.Error(t, m.MigrateDown(1))
}
