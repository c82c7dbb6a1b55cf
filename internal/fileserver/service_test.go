package fileserver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/model"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func files(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestSaveServeRemove(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	body := strings.Repeat("session notes\n", 100)

	blob, err := s.Save(context.Background(), "notes+day one.txt", strings.NewReader(body), 1<<20)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), blob.Size)
	assert.Equal(t, model.MessageFile, blob.Kind)
	assert.Equal(t, "notes day one.txt", blob.FileName)
	assert.True(t, strings.HasPrefix(blob.URL, URLPrefix))
	assert.Len(t, files(t, dir), 1)

	rec := httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest(http.MethodGet, blob.URL+"?name=notes.txt", nil), blob.Name)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "notes.txt")

	require.NoError(t, s.Remove(blob.URL))
	assert.Empty(t, files(t, dir))
	require.NoError(t, s.Remove(blob.URL), "second remove is a no-op")
	require.NoError(t, s.Remove("https://example.com/cat.gif"))

	rec = httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest(http.MethodGet, blob.URL, nil), blob.Name)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveRejectsOversizeAndLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	data := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 4096)...)

	_, err := s.Save(context.Background(), "map.png", bytes.NewReader(data), 2048)
	assert.True(t, apperr.Is(err, apperr.PayloadTooLarge))
	assert.Empty(t, files(t, dir))

	// ровно лимит проходит
	blob, err := s.Save(context.Background(), "map.png", bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, model.MessageImage, blob.Kind)
	assert.Equal(t, int64(len(data)), blob.Size)
}

func TestSaveRejectsOversizeWithinHead(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Save(context.Background(), "a.txt", strings.NewReader(strings.Repeat("x", 100)), 10)
	assert.True(t, apperr.Is(err, apperr.PayloadTooLarge))
}

func TestSaveValidatesType(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	_, err := s.Save(context.Background(), "run.exe", strings.NewReader("MZ"), 1<<20)
	assert.True(t, apperr.Is(err, apperr.Invalid))

	_, err = s.Save(context.Background(), "fake.png", strings.NewReader("not a png at all"), 1<<20)
	assert.True(t, apperr.Is(err, apperr.Invalid))

	_, err = s.Save(context.Background(), "empty.txt", strings.NewReader(""), 1<<20)
	assert.True(t, apperr.Is(err, apperr.Invalid))
	assert.Empty(t, files(t, dir))
}

func TestServeIgnoresPathTraversal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.gz"), []byte("x"), 0o600))
	rec := httptest.NewRecorder()
	New(dir).Serve(rec, httptest.NewRequest(http.MethodGet, "/api/files/x", nil), "../secret")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
