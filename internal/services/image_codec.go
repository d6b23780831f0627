package services

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/goldengai/venuesync/internal/models"
	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
)

// ImageCodec turns an arbitrary photo into the single JPEG we keep per venue
type ImageCodec struct {
	quality  int
	maxDim   int
	maxBytes int64
}

// NewImageCodec creates a codec. maxDim <= 0 disables downscaling.
func NewImageCodec(quality, maxDim int, maxBytes int64) *ImageCodec {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &ImageCodec{quality: quality, maxDim: maxDim, maxBytes: maxBytes}
}

// Encode decodes data, fixes orientation, downsizes and re-encodes as JPEG
func (c *ImageCodec) Encode(data []byte) ([]byte, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidFormat, err)
	}

	img = applyOrientation(img, readOrientation(data))

	if c.maxDim > 0 {
		b := img.Bounds()
		if b.Dx() > c.maxDim || b.Dy() > c.maxDim {
			img = imaging.Fit(img, c.maxDim, c.maxDim, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidFormat, err)
	}
	if c.maxBytes > 0 && int64(buf.Len()) > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", models.ErrFileTooLarge, buf.Len(), c.maxBytes)
	}
	return buf.Bytes(), nil
}

func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if isHEIC(data) {
		return decodeHEIC(data)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// isHEIC sniffs the ISO BMFF ftyp box
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}

func decodeHEIC(data []byte) (image.Image, error) {
	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode HEIC image: %w", err)
	}
	return img, nil
}

// readOrientation returns the EXIF orientation, 1 when absent
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation maps EXIF orientation values onto imaging transforms
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		// transpose
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		// transverse
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
