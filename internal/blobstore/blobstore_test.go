package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, 9, "Физика", "Конспекты", "notes.pdf", strings.NewReader("ньютон"))
	require.NoError(t, err)
	assert.Equal(t, "9/Физика/Конспекты/notes.pdf", saved.Path)
	assert.Equal(t, "notes.pdf", saved.Name)
	assert.Equal(t, int64(len("ньютон")), saved.Size)

	data, err := os.ReadFile(s.Abs(saved.Path))
	require.NoError(t, err)
	assert.Equal(t, "ньютон", string(data))
}

func TestSaveCollisionAppendsSuffix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, 7, "Алгебра", "Шпаргалки", "notes.pdf", strings.NewReader("a"))
	require.NoError(t, err)
	second, err := s.Save(ctx, 7, "Алгебра", "Шпаргалки", "notes.pdf", strings.NewReader("b"))
	require.NoError(t, err)
	third, err := s.Save(ctx, 7, "Алгебра", "Шпаргалки", "notes.pdf", strings.NewReader("c"))
	require.NoError(t, err)

	assert.Equal(t, "notes.pdf", first.Name)
	assert.Equal(t, "notes_1.pdf", second.Name)
	assert.Equal(t, "notes_2.pdf", third.Name)
	assert.NotEqual(t, first.Path, second.Path)

	b, err := os.ReadFile(s.Abs(second.Path))
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))
}

func TestRemoveBestEffort(t *testing.T) {
	s := newTestStore(t)
	saved, err := s.Save(context.Background(), 5, "Математика", "Учебники", "book.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	removed, err := s.Remove(saved.Path)
	require.NoError(t, err)
	assert.True(t, removed)

	// Second removal finds nothing; still not an error.
	removed, err = s.Remove(saved.Path)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSaveRejectsPathEscape(t *testing.T) {
	s := newTestStore(t)
	saved, err := s.Save(context.Background(), 5, "История", "Конспекты", "../../evil.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "evil.pdf", saved.Name)
	assert.True(t, strings.HasPrefix(saved.Path, "5/История/Конспекты/"), saved.Path)
	assert.False(t, strings.Contains(filepath.ToSlash(saved.Path), ".."))
}

func TestPhotoNameUnique(t *testing.T) {
	a, b := PhotoName(), PhotoName()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, ".jpg"))
}
