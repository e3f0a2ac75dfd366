package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizeShrinksLargeImages(t *testing.T) {
	img, err := Normalize(bytes.NewReader(pngBytes(t, 2048, 1024)))
	require.NoError(t, err)
	assert.Equal(t, 512, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())
}

func TestNormalizeKeepsSmallImages(t *testing.T) {
	img, err := Normalize(bytes.NewReader(pngBytes(t, 100, 80)))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize(strings.NewReader("definitely not an image"))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestLocalStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "/images/")
	require.NoError(t, err)

	url, err := store.Save(context.Background(), "doctor", bytes.NewReader(pngBytes(t, 600, 600)))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/images/doctor-"), url)
	require.True(t, strings.HasSuffix(url, ".jpg"), url)

	path := filepath.Join(dir, strings.TrimPrefix(url, "/images/"))
	_, err = os.Stat(path)
	require.NoError(t, err)

	saved, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 512, saved.Bounds().Dx())
}
