package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func filterFor(recursive bool, include, exclude []string) imageFilter {
	return newImageFilter(&Config{Recursive: recursive, IncludePatterns: include, ExcludePatterns: exclude})
}

func TestDiscover_EmptyArgs(t *testing.T) {
	files, err := filterFor(false, nil, nil).discover(nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscover_FilesKeepArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	b := touch(t, filepath.Join(dir, "b.png"))
	a := touch(t, filepath.Join(dir, "a.JPG"))
	txt := touch(t, filepath.Join(dir, "notes.txt"))

	files, err := filterFor(false, nil, nil).discover([]string{b, a, txt, b})
	require.NoError(t, err)
	assert.Equal(t, []string{b, a}, files, "unsupported files and duplicates are dropped")
}

func TestDiscover_Directory(t *testing.T) {
	dir := t.TempDir()
	png := touch(t, filepath.Join(dir, "coins.png"))
	webp := touch(t, filepath.Join(dir, "album.webp"))
	touch(t, filepath.Join(dir, "readme.md"))
	touch(t, filepath.Join(dir, "nested", "deep.png"))

	files, err := filterFor(false, nil, nil).discover([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{webp, png}, files)
}

func TestDiscover_Recursive(t *testing.T) {
	dir := t.TempDir()
	top := touch(t, filepath.Join(dir, "top.png"))
	deep := touch(t, filepath.Join(dir, "a", "b", "deep.tiff"))

	files, err := filterFor(true, nil, nil).discover([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{deep, top}, files)
}

func TestDiscover_SkipsOutputDirectories(t *testing.T) {
	dir := t.TempDir()
	photo := touch(t, filepath.Join(dir, "coins.png"))
	touch(t, filepath.Join(dir, "out", "coins_annotated.jpg"))
	touch(t, filepath.Join(dir, "masks", "coins_mask.png"))
	other := touch(t, filepath.Join(dir, "more", "table.png"))

	f := newImageFilter(&Config{
		Recursive:    true,
		AnnotatedDir: filepath.Join(dir, "out"),
		MaskDir:      filepath.Join(dir, "masks"),
	})
	files, err := f.discover([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{photo, other}, files)
}

func TestDiscover_Patterns(t *testing.T) {
	dir := t.TempDir()
	keep := touch(t, filepath.Join(dir, "coins_01.png"))
	touch(t, filepath.Join(dir, "coins_02_annotated.png"))
	touch(t, filepath.Join(dir, "other.jpg"))

	files, err := filterFor(false, []string{"coins_*"}, []string{"*_annotated.*"}).discover([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, files)
}

func TestDiscover_MissingPath(t *testing.T) {
	_, err := filterFor(false, nil, nil).discover([]string{filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access")
}

func TestImageFilter_Accepts(t *testing.T) {
	tests := []struct {
		name             string
		path             string
		include, exclude []string
		want             bool
	}{
		{"no patterns", "/x/a.png", nil, nil, true},
		{"unsupported extension", "/x/a.gif", nil, nil, false},
		{"include match", "/x/a.png", []string{"*.png"}, nil, true},
		{"include miss", "/x/a.jpg", []string{"*.png"}, nil, false},
		{"exclude wins", "/x/a.png", []string{"*.png"}, []string{"a.*"}, false},
		{"matches base name only", "/coins/a.png", []string{"coins*"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filterFor(false, tt.include, tt.exclude).accepts(tt.path))
		})
	}
}
