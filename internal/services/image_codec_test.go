package services

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/goldengai/venuesync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	return cfg.Width, cfg.Height
}

func TestImageCodec_Encode(t *testing.T) {
	t.Run("fits large images into the max dimension", func(t *testing.T) {
		codec := NewImageCodec(80, 100, 0)

		out, err := codec.Encode(makeJPEG(t, 400, 200))
		require.NoError(t, err)

		w, h := decodeSize(t, out)
		assert.Equal(t, 100, w)
		assert.Equal(t, 50, h)
	})

	t.Run("keeps small images at their size", func(t *testing.T) {
		codec := NewImageCodec(80, 100, 0)

		out, err := codec.Encode(makeJPEG(t, 40, 30))
		require.NoError(t, err)

		w, h := decodeSize(t, out)
		assert.Equal(t, 40, w)
		assert.Equal(t, 30, h)
	})

	t.Run("converts png to jpeg", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))

		out, err := NewImageCodec(80, 0, 0).Encode(buf.Bytes())
		require.NoError(t, err)
		decodeSize(t, out)
	})

	t.Run("rejects undecodable input", func(t *testing.T) {
		codec := NewImageCodec(80, 0, 0)
		for _, data := range [][]byte{nil, []byte("not an image")} {
			_, err := codec.Encode(data)
			assert.ErrorIs(t, err, models.ErrInvalidFormat)
		}
	})

	t.Run("rejects output over the size limit", func(t *testing.T) {
		codec := NewImageCodec(100, 0, 2048)

		_, err := codec.Encode(makeNoiseJPEG(t, 128, 128))
		assert.ErrorIs(t, err, models.ErrFileTooLarge)
	})
}

func TestApplyOrientation(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))

	cases := map[int][2]int{
		1: {4, 2},
		2: {4, 2},
		3: {4, 2},
		4: {4, 2},
		5: {2, 4},
		6: {2, 4},
		7: {2, 4},
		8: {2, 4},
		0: {4, 2},
	}
	for orientation, want := range cases {
		b := applyOrientation(img, orientation).Bounds()
		assert.Equal(t, want[0], b.Dx(), "orientation %d", orientation)
		assert.Equal(t, want[1], b.Dy(), "orientation %d", orientation)
	}
}

func TestReadOrientation_DefaultsWithoutExif(t *testing.T) {
	assert.Equal(t, 1, readOrientation(makeJPEG(t, 8, 8)))
	assert.Equal(t, 1, readOrientation([]byte("garbage")))
}

func TestIsHEIC(t *testing.T) {
	assert.True(t, isHEIC([]byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00")))
	assert.True(t, isHEIC([]byte("\x00\x00\x00\x18ftypmif1\x00\x00\x00\x00")))
	assert.False(t, isHEIC([]byte("\x00\x00\x00\x18ftypisom\x00\x00\x00\x00")))
	assert.False(t, isHEIC(makeJPEG(t, 2, 2)))
}
