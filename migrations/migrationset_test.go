package main

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestMigrationSet_FilesIgnoresNonConformingNames(t *testing.T) {
	fsys := fstest.MapFS{
		"001_initial.up.sql":   {Data: []byte("CREATE TABLE t;")},
		"001_initial.down.sql": {Data: []byte("DROP TABLE t;")},
		"readme.md":            {Data: []byte("not a migration")},
		"initial.sql":          {Data: []byte("missing sequence prefix")},
	}

	set := NewMigrationSet(fsys)

	files, err := set.Files()
	require.NoError(t, err)
	require.Equal(t, []string{"001_initial.down.sql", "001_initial.up.sql"}, files)
}

func TestMigrationSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name: "valid set",
			fsys: fstest.MapFS{
				"001_initial.up.sql":   {Data: []byte("CREATE TABLE t;")},
				"001_initial.down.sql": {Data: []byte("DROP TABLE t;")},
				"002_second.up.sql":    {Data: []byte("ALTER TABLE t ADD COLUMN c int;")},
				"002_second.down.sql":  {Data: []byte("ALTER TABLE t DROP COLUMN c;")},
			},
		},
		{
			name:    "empty set",
			fsys:    fstest.MapFS{},
			wantErr: "no embedded migration files found",
		},
		{
			name: "missing down pair",
			fsys: fstest.MapFS{
				"001_initial.up.sql": {Data: []byte("CREATE TABLE t;")},
			},
			wantErr: "orphaned up migration",
		},
		{
			name: "missing up pair",
			fsys: fstest.MapFS{
				"001_initial.down.sql": {Data: []byte("DROP TABLE t;")},
			},
			wantErr: "orphaned down migration",
		},
		{
			name: "gap in sequence",
			fsys: fstest.MapFS{
				"001_initial.up.sql":   {Data: []byte("CREATE TABLE t;")},
				"001_initial.down.sql": {Data: []byte("DROP TABLE t;")},
				"003_third.up.sql":     {Data: []byte("SELECT 1;")},
				"003_third.down.sql":   {Data: []byte("SELECT 1;")},
			},
			wantErr: "gap in migration sequence",
		},
		{
			name: "does not start at 001",
			fsys: fstest.MapFS{
				"002_second.up.sql":   {Data: []byte("SELECT 1;")},
				"002_second.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "must start at 001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewMigrationSet(tt.fsys)

			err := set.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestMigrationSet_ValidateDetectsTamperedContent(t *testing.T) {
	fsys := fstest.MapFS{
		"001_initial.up.sql":   {Data: []byte("CREATE TABLE t;")},
		"001_initial.down.sql": {Data: []byte("DROP TABLE t;")},
	}

	set := NewMigrationSet(fsys)
	require.NoError(t, set.Validate())

	fsys["001_initial.up.sql"].Data = []byte("CREATE TABLE t (id int);")

	err := set.Validate()
	require.ErrorContains(t, err, "checksum mismatch")
}

func TestMigrationSet_MaxSequence(t *testing.T) {
	fsys := fstest.MapFS{
		"001_initial.up.sql":   {Data: []byte("CREATE TABLE t;")},
		"001_initial.down.sql": {Data: []byte("DROP TABLE t;")},
		"012_later.up.sql":     {Data: []byte("SELECT 1;")},
		"012_later.down.sql":   {Data: []byte("SELECT 1;")},
	}

	require.Equal(t, 12, NewMigrationSet(fsys).MaxSequence())
	require.Equal(t, 0, NewMigrationSet(fstest.MapFS{}).MaxSequence())
}

func TestMigrationSet_DefaultsToEmbeddedSQL(t *testing.T) {
	set := NewMigrationSet(nil)

	require.NoError(t, set.Validate())

	files, err := set.Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)
}
