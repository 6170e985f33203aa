package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add sites address", "add_sites_address"},
		{"Add-Sites-Address", "add_sites_address"},
		{"ADD__SITES__ADDRESS", "add_sites_address"},
		{"index tenants 2", "index_tenants_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "add site address", "Nullable street address for sites")
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_site_address.up.sql"), first.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_site_address.down.sql"), first.DownPath)

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "add site address")
	assert.Contains(t, string(up), "Nullable street address for sites")

	down, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "Rollback")

	second, err := CreateMigration(dir, "index site names", "")
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)

	list, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_add_site_address", "000002_index_site_names"}, list)
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestNextVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000003_c.up.sql", "000003_c.down.sql", "000010_j.up.sql", "notes.txt", "bogus_x.up.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	v, err := NextVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(11), v)
}

func TestListMigrations_MissingDir(t *testing.T) {
	list, err := ListMigrations(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEmbeddedSource(t *testing.T) {
	src, err := EmbeddedSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, identifier, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "create_tenants_and_sites", identifier)

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	defer down.Close()
}
