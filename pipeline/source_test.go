package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestFrameSourceOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", "c.png", "d.PNG", "notes.txt", "e.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "z.png"), 0755))

	var loaded []string
	src, err := NewFrameSource(dir, ".png", func(path string) (gocv.Mat, error) {
		loaded = append(loaded, filepath.Base(path))
		return gocv.NewMat(), nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, src.Len())
	require.Empty(t, loaded)

	var names []string
	for {
		frame, ok, err := src.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		require.Equal(t, len(names), frame.Index)
		names = append(names, frame.Name)
		frame.Mat.Close()
	}

	require.Equal(t, []string{"a.png", "b.png", "c.png", "d.PNG"}, names)
	require.Equal(t, names, loaded)
}

func TestFrameSourceMissingFolder(t *testing.T) {
	_, err := NewFrameSource(filepath.Join(t.TempDir(), "missing"), ".png", nil)
	require.Error(t, err)
}

func TestIMReadLoaderUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0644))

	_, err := IMReadLoader(path)
	require.ErrorContains(t, err, "broken.png")
}
