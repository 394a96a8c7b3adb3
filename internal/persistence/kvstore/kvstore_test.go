package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelhud.ai/internal/sim/host"
)

func TestMemory_SetGetDelete(t *testing.T) {
	s := NewMemory(16)

	require.NoError(t, s.Set("a", host.String("x")))
	require.NoError(t, s.Set("n", host.Number(3)))
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "x", v.Str)

	n, ok := host.GetNumber(s, "n")
	require.True(t, ok)
	assert.Equal(t, 3.0, n)

	_, ok = host.GetString(s, "n")
	assert.False(t, ok, "kind mismatch is a miss")

	require.NoError(t, s.Delete("a"))
	_, ok = s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"n"}, s.Keys())
}

func TestMemory_EntryLimit(t *testing.T) {
	s := NewMemory(4)
	err := s.Set("k", host.String("12345"))
	require.ErrorIs(t, err, host.ErrValueTooLarge)
	_, ok := s.Get("k")
	assert.False(t, ok)
	require.NoError(t, s.Set("k", host.String("1234")))
}

func TestMemory_FailSet(t *testing.T) {
	s := NewMemory(0)
	boom := errors.New("boom")
	s.FailSet = func(key string) error {
		if strings.HasPrefix(key, "x") {
			return boom
		}
		return nil
	}
	require.ErrorIs(t, s.Set("xy", host.Bool(true)), boom)
	require.NoError(t, s.Set("y", host.Bool(true)))
	assert.Equal(t, 1, s.Sets)
}

func TestSQLite_ScopedRoundTripAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.sqlite")
	db, err := OpenSQLite(path, 8, nil)
	require.NoError(t, err)

	a := db.Scope("alice")
	b := db.Scope("bob")
	require.NoError(t, a.Set("s", host.String("hello")))
	require.NoError(t, a.Set("f", host.Bool(true)))
	require.NoError(t, a.Set("n", host.Number(2.5)))
	require.NoError(t, b.Set("s", host.String("other")))
	require.ErrorIs(t, a.Set("big", host.String("123456789")), host.ErrValueTooLarge)

	v, ok := b.Get("s")
	require.True(t, ok)
	assert.Equal(t, "other", v.Str)
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path, 8, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	got, err := db.Dump(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]host.Value{
		"s": host.String("hello"),
		"f": host.Bool(true),
		"n": host.Number(2.5),
	}, got)

	actors, err := db.Actors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, actors)

	require.NoError(t, db.Scope("alice").Delete("s"))
	_, ok = db.Scope("alice").Get("s")
	assert.False(t, ok)
}

func TestSQLite_CatalogDigests(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "c.sqlite"), 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, db.RecordCatalogs(ctx, map[string]string{"effects": "aa", "armor": "bb"}))
	require.NoError(t, db.RecordCatalogs(ctx, map[string]string{"effects": "cc"}))
	got, err := db.CatalogDigests(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"effects": "cc", "armor": "bb"}, got)
}
