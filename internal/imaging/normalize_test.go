package imaging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/executor"
	"github.com/tabletopforge/component-extractor/internal/observability"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	exec := executor.New(config.ExecutorConfig{
		AllowedCommands: []string{},
		MaxConcurrent:   1,
		DefaultTimeout:  time.Second,
	}, observability.Nop())
	return NewNormalizer(exec, "magick", observability.Nop())
}

func TestNormalize_PPMBecomesPNG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "emb-1-0.ppm")

	data := append([]byte("P6\n4 3\n255\n"), make([]byte, 4*3*3)...)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	n := newTestNormalizer(t)
	out, converted := n.Normalize(context.Background(), src, dir)

	assert.True(t, converted)
	assert.Equal(t, filepath.Join(dir, "emb-1-0.png"), out)

	info, err := Probe(out)
	require.NoError(t, err)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, 4, info.Width)
	assert.Equal(t, 3, info.Height)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "original should be removed after conversion")
}

func TestNormalize_WebSafeUntouched(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "keep.png")
	require.NoError(t, os.WriteFile(src, []byte("placeholder"), 0o644))

	n := newTestNormalizer(t)
	out, converted := n.Normalize(context.Background(), src, dir)

	assert.False(t, converted)
	assert.Equal(t, src, out)
}

func TestNormalize_FailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()

	// Corrupt netpbm: the in-process decode fails, the original survives.
	src := filepath.Join(dir, "broken.ppm")
	require.NoError(t, os.WriteFile(src, []byte("P6\n9 9\n255\nshort"), 0o644))

	n := newTestNormalizer(t)
	out, converted := n.Normalize(context.Background(), src, dir)

	assert.False(t, converted)
	assert.Equal(t, src, out)
	_, err := os.Stat(src)
	assert.NoError(t, err)
}

func TestNormalize_JP2NeedsToolDenied(t *testing.T) {
	dir := t.TempDir()

	// magick is not in the executor allowlist, so the tool route fails and
	// the original is kept.
	src := filepath.Join(dir, "scan.jp2")
	require.NoError(t, os.WriteFile(src, []byte{0x00, 0x00, 0x00, 0x0c}, 0o644))

	n := newTestNormalizer(t)
	out, converted := n.Normalize(context.Background(), src, dir)

	assert.False(t, converted)
	assert.Equal(t, src, out)
	_, err := os.Stat(src)
	assert.NoError(t, err)
}
