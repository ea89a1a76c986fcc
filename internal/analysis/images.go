package analysis

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	_ "image/png"
)

const jpegQuality = 85

// compressImage re-encodes a PNG screenshot as JPEG. Charts survive the
// quality loss fine and the payload shrinks by roughly 60%, which is
// real money on image-heavy model calls. Undecodable input is passed
// through untouched as PNG.
func compressImage(pngBytes []byte) (data []byte, mediaType string) {
	img, _, err := image.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return pngBytes, "image/png"
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return pngBytes, "image/png"
	}
	return buf.Bytes(), "image/jpeg"
}

func encodeImage(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
