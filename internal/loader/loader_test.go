package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestFileLoader_LoadMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "handbook.md", []byte("# Volunteer Handbook\n\nWelcome aboard."))

	doc, err := NewFileLoader().Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "handbook.md", doc.Source)
	assert.Equal(t, "Volunteer Handbook", doc.Title)
	assert.Equal(t, "markdown", doc.DocumentType)
	assert.Contains(t, doc.Content, "Welcome aboard.")
	assert.Equal(t, path, doc.Path)
}

func TestFileLoader_TextTitleFallsBackToStem(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "parking-rules.txt", []byte("# not parsed as a heading in text files"))

	doc, err := NewFileLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "parking-rules", doc.Title)
	assert.Equal(t, "text", doc.DocumentType)
}

func TestFileLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLoader()
	ctx := context.Background()

	_, err := l.Load(ctx, filepath.Join(dir, "missing.md"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Load(ctx, writeFile(t, dir, "image.png", []byte{0x89, 'P', 'N', 'G'}))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = l.Load(ctx, writeFile(t, dir, "broken.md", []byte{0xff, 0xfe, 0xfd}))
	assert.ErrorIs(t, err, ErrDecode)

	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Contains(t, lerr.Path, "broken.md")
}

func TestFileLoader_ListSortsCaseInsensitively(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.md", []byte("b"))
	writeFile(t, dir, "A.txt", []byte("a"))
	writeFile(t, dir, "c.MD", []byte("c"))
	writeFile(t, dir, "skip.pdf", []byte("x"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.md"), 0o700))

	paths, err := NewFileLoader().List(context.Background(), dir)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"A.txt", "b.md", "c.MD"}, names)
}

func TestFileLoader_ListMissingDir(t *testing.T) {
	_, err := NewFileLoader().List(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
