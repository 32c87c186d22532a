package imagine

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	_ "image/gif"

	"github.com/disintegration/imaging"

	// Register additional decode formats; the API returns PNG today,
	// but a custom base URL may hand back anything.
	_ "golang.org/x/image/webp"

	. "github.com/hwestman/personabot/internal/logging"
)

// Upload budget. Discord allows 8MB without boosts; Telegram allows
// more, so the tighter limit wins.
const (
	MaxDimension = 2048
	MaxBytes     = 8 * 1024 * 1024
)

// Dimension levels to try when downscaling (descending order).
var dimensionLevels = []int{MaxDimension, 1600, 1200, 800}

// JPEG quality levels for the last-resort re-encode (descending order).
var qualityLevels = []int{85, 75, 65, 55}

// FitUpload returns data unchanged when it fits the upload budget.
// Oversized images are downscaled with Lanczos and re-encoded as PNG,
// falling back to descending JPEG qualities when PNG stays too large.
func FitUpload(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode generated image: %w", err)
	}
	bounds := img.Bounds()
	if len(data) <= MaxBytes && bounds.Dx() <= MaxDimension && bounds.Dy() <= MaxDimension {
		return data, nil
	}
	L_debug("imagine: fitting oversized image", "bytes", len(data), "width", bounds.Dx(), "height", bounds.Dy())

	for _, dim := range dimensionLevels {
		resized := img
		if bounds.Dx() > dim || bounds.Dy() > dim {
			resized = imaging.Fit(img, dim, dim, imaging.Lanczos)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, resized); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		if buf.Len() <= MaxBytes {
			return buf.Bytes(), nil
		}
	}

	smallest := imaging.Fit(img, dimensionLevels[len(dimensionLevels)-1], dimensionLevels[len(dimensionLevels)-1], imaging.Lanczos)
	for _, quality := range qualityLevels {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, smallest, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		if buf.Len() <= MaxBytes {
			return buf.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("image could not be reduced below %dMB", MaxBytes/(1024*1024))
}
