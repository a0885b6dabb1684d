package image_list

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fakeProbe(path string) (int, int, error) {
	if filepath.Base(path) == "broken.png" {
		return 0, 0, fmt.Errorf("corrupt header")
	}
	return 1024, 512, nil
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0644))
	}
}

func TestScanner_Scan(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b.tif", "a.JPG", "notes.txt", "broken.png", "a.png")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "cache.jpg"), 0755))

	s := NewWithProbe(dir, zaptest.NewLogger(t), fakeProbe)
	require.NoError(t, s.Scan())

	images := s.GetImages()
	require.Len(t, images, 2)
	require.Equal(t, "a", images[0].ID)
	require.Equal(t, "a.JPG", images[0].Filename)
	require.Equal(t, 1024, images[0].Width)
	require.Equal(t, 512, images[0].Height)
	require.Equal(t, int64(4), images[0].Bytes)
	require.Equal(t, "b", images[1].ID)

	require.Equal(t, filepath.Join(dir, "b.tif"), s.GetImagePathByID("b"))
	require.Nil(t, s.GetImageByID("broken"))
	require.Empty(t, s.GetImagePathByID("missing"))
}

func TestScanner_MissingDirectory(t *testing.T) {
	s := NewWithProbe(filepath.Join(t.TempDir(), "nope"), zaptest.NewLogger(t), fakeProbe)
	require.Error(t, s.Scan())
	require.Empty(t, s.GetImages())
}

func TestIsImageFile(t *testing.T) {
	for name, want := range map[string]bool{
		"x.tiff": true,
		"x.WEBP": true,
		"x.jpeg": true,
		"x.gif":  false,
		"x":      false,
	} {
		require.Equal(t, want, IsImageFile(name), name)
	}
	require.Equal(t, "photo.large", ImageID("photo.large.tif"))
}
