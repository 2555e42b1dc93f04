package library

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShrinkCover_KeepsSmallCovers(t *testing.T) {
	data := testPNG(t)
	got, err := shrinkCover(data)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestShrinkCover_ScalesWideCovers(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 2400; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x ^ y), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	got, err := shrinkCover(buf.Bytes())
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(got))
	require.NoError(t, err, "wide covers are stored as JPEG")
	assert.Equal(t, maxCoverWidth, cfg.Width)
	assert.Equal(t, 150, cfg.Height)
	assert.LessOrEqual(t, len(got), maxCoverBytes)
}

func TestShrinkCover_UndecodableKeepsData(t *testing.T) {
	data := []byte("not an image")
	got, err := shrinkCover(data)
	assert.Error(t, err)
	assert.Equal(t, data, got)
}

func TestBlurHash(t *testing.T) {
	hash, err := BlurHash(testPNG(t))
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	_, err = BlurHash([]byte("nope"))
	assert.Error(t, err)
}
