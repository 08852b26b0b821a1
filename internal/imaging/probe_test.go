package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestProbe_OpaquePNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opaque.png")

	img := image.NewNRGBA(image.Rect(0, 0, 12, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	writePNG(t, path, img)

	info, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, 12, info.Width)
	assert.Equal(t, 8, info.Height)
	assert.Equal(t, "png", info.Format)
	assert.False(t, info.HasAlpha, "opaque truecolor PNG has no alpha channel")
	assert.Greater(t, info.SizeBytes, int64(0))
}

func TestProbe_TransparentPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alpha.png")

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 128})
	writePNG(t, path, img)

	info, err := Probe(path)
	require.NoError(t, err)
	assert.True(t, info.HasAlpha)
}

func TestProbe_PPM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.ppm")

	data := append([]byte("P6\n3 2\n255\n"), make([]byte, 3*2*3)...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	info, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Width)
	assert.Equal(t, 2, info.Height)
	assert.Equal(t, "ppm", info.Format)
	assert.False(t, info.HasAlpha)
}

func TestProbe_Unreadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := Probe(path)
	assert.Error(t, err)
}

func TestNormalizeFormat(t *testing.T) {
	cases := map[string]string{
		"a.png":      "png",
		"b.JPG":      "jpeg",
		"c.jpeg":     "jpeg",
		"d.tif":      "tiff",
		"e.tiff":     "tiff",
		"f.ppm":      "ppm",
		"g.jp2":      "jp2",
		"noext":      "",
		"dir/h.PPM":  "ppm",
	}
	for path, want := range cases {
		assert.Equal(t, want, NormalizeFormat(path), "path %s", path)
	}
}
