package database

import (
	"path/filepath"
	"testing"

	"github.com/petermazzocco/dsgnr/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite_MigratesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dsgnr.db")

	db, err := Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })

	require.NoError(t, Migrate(db))
	// Migrate is safe to repeat on every start.
	require.NoError(t, Migrate(db))

	for _, table := range []any{&models.User{}, &models.Post{}, &models.Like{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}
	assert.FileExists(t, path)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mysql", "whatever")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestUsernameIsUnique(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "u.db"))
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	require.NoError(t, Migrate(db))

	require.NoError(t, db.Create(&models.User{Username: "ana", PasswordHash: "x", Role: models.RoleMember}).Error)
	err = db.Create(&models.User{Username: "ana", PasswordHash: "y", Role: models.RoleMember}).Error
	assert.Error(t, err)
}
