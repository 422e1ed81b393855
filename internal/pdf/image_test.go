package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFlattenImagePassesJPEGThrough(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	original := buf.Bytes()

	flat, ext, err := flattenImage(original, "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, ".jpg", ext)
	require.Equal(t, original, flat)
}

func TestFlattenImageReencodesAlphaPNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 128})

	flat, ext, err := flattenImage(encodePNG(t, img), "image/png")
	require.NoError(t, err)
	require.Equal(t, ".jpg", ext)

	decoded, format, err := image.Decode(bytes.NewReader(flat))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, image.Rect(0, 0, 4, 4), decoded.Bounds())
}

func TestFlattenImageReencodesPalettedPNG(t *testing.T) {
	palette := color.Palette{color.White, color.Black}
	img := image.NewPaletted(image.Rect(0, 0, 8, 8), palette)
	img.SetColorIndex(2, 2, 1)

	flat, _, err := flattenImage(encodePNG(t, img), "image/png")
	require.NoError(t, err)

	_, format, err := image.Decode(bytes.NewReader(flat))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
}

func TestFlattenImageRejectsGarbage(t *testing.T) {
	_, _, err := flattenImage([]byte("not an image"), "image/png")
	require.Error(t, err)
}

func TestDecodableImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	require.NoError(t, DecodableImage(encodePNG(t, img)))
	require.Error(t, DecodableImage([]byte("junk")))
}
