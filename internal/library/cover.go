package library

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"

	"github.com/bbrks/go-blurhash"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// blurHashSize is the thumbnail edge the blurhash is computed from.
const blurHashSize = 64

// Stored cover limits.
const (
	maxCoverWidth       = 1200
	maxCoverBytes       = 512 * 1024
	maxCoverPixels      = 100 * 1000 * 1000
	coverJPEGQuality    = 90
	minCoverJPEGQuality = 60
)

// shrinkCover returns the cover bytes to store. Covers wider than
// maxCoverWidth or bigger than maxCoverBytes are scaled down and re-encoded
// as JPEG, lowering the quality in steps until the data fits. Other covers
// are returned unchanged. On error the original data is returned with it.
func shrinkCover(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, fmt.Errorf("decode image config: %w", err)
	}
	if pixels := uint64(cfg.Width) * uint64(cfg.Height); pixels > maxCoverPixels {
		return data, fmt.Errorf("image too large to decode: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width <= maxCoverWidth && len(data) <= maxCoverBytes {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Dx() > maxCoverWidth {
		img = imaging.Resize(img, maxCoverWidth, 0, imaging.Lanczos)
	}

	var best []byte
	for q := coverJPEGQuality; q >= minCoverJPEGQuality; q -= 5 {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return data, fmt.Errorf("encode jpeg at quality %d: %w", q, err)
		}
		best = buf.Bytes()
		if len(best) <= maxCoverBytes {
			break
		}
	}
	return best, nil
}

// BlurHash computes a 4x3 component blurhash of an encoded cover image.
func BlurHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Fit(img, blurHashSize, blurHashSize, imaging.Box)
	hash, err := blurhash.Encode(4, 3, thumb)
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// WriteThumbnail scales an encoded cover image to width pixels, keeping its
// aspect ratio, and writes it to w as JPEG. Images narrower than width are
// written unscaled.
func WriteThumbnail(w io.Writer, data []byte, width int) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if width > 0 && img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return nil
}
