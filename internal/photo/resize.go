package photo

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding for image.Decode

	"golang.org/x/image/draw"
)

const (
	// DefaultMaxDimension bounds the longest edge of a stored photo
	DefaultMaxDimension = 1280
	// DefaultJPEGQuality is the re-encode quality for stored photos
	DefaultJPEGQuality = 80
)

// Process decodes a capture, downscales it so the longest edge fits
// maxDimension, and re-encodes it as JPEG at the given quality. Captures
// already within bounds are still re-encoded so stored photos are uniformly
// JPEG regardless of what the terminal sent.
func Process(raw []byte, maxDimension, quality int) ([]byte, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding photo: %w", err)
	}

	img = scaleDown(img, maxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding photo: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleDown shrinks img so its longest edge is at most maxDimension,
// preserving aspect ratio. Images already within bounds pass through.
func scaleDown(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDimension && height <= maxDimension {
		return img
	}

	scale := float64(maxDimension) / float64(width)
	if height > width {
		scale = float64(maxDimension) / float64(height)
	}

	dstW := int(float64(width)*scale + 0.5)
	dstH := int(float64(height)*scale + 0.5)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
