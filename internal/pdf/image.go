package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"
)

// flattenImage prepares an image payload for PDF import. Paletted and
// alpha-channel images are re-encoded as JPEG, which forces an opaque
// RGB color model; plain JPEGs pass through untouched.
func flattenImage(data []byte, mimeType string) ([]byte, string, error) {
	if strings.EqualFold(mimeType, "image/jpeg") || strings.EqualFold(mimeType, "image/jpg") {
		return data, ".jpg", nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("undecodable image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, "", fmt.Errorf("failed to re-encode image: %w", err)
	}
	return buf.Bytes(), ".jpg", nil
}

// DecodableImage reports whether the payload parses as a supported
// image format. Used by document validation.
func DecodableImage(data []byte) error {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err
}
