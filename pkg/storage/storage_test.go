package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	ctx := context.Background()

	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	sqlite, err := NewSQLiteStorage(ctx, filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Storage{
		"local":  local,
		"sqlite": sqlite,
	}
}

func TestStorage_ReadWriteUpsert(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Write(ctx, "plans/a.yaml", []byte("v1")))
			require.NoError(t, s.Write(ctx, "plans/a.yaml", []byte("v2")))

			data, err := s.Read(ctx, "plans/a.yaml")
			require.NoError(t, err)
			assert.Equal(t, "v2", string(data))
		})
	}
}

func TestStorage_NotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Read(ctx, "plans/missing.yaml")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStorage_ListDirectChildren(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Write(ctx, "plans/b.yaml", []byte("b")))
			require.NoError(t, s.Write(ctx, "plans/a.yaml", []byte("a")))
			require.NoError(t, s.Write(ctx, "plans/nested/c.yaml", []byte("c")))
			require.NoError(t, s.Write(ctx, "other/d.yaml", []byte("d")))

			paths, err := s.List(ctx, "plans")
			require.NoError(t, err)
			assert.Equal(t, []string{"plans/a.yaml", "plans/b.yaml"}, paths)

			empty, err := s.List(ctx, "nothing")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestLocalStorage_PathStaysUnderBase(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	resolved := s.resolve("../../etc/passwd")
	rel, err := filepath.Rel(s.basePath, resolved)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("etc", "passwd"), rel)
}
