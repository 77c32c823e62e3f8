package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

const (
	// Images with a longer edge than this get downscaled before upload;
	// receipt text survives well below phone-camera resolution.
	MAX_IMAGE_DIMENSION = 1600

	// Payloads already smaller than this skip decode/re-encode entirely.
	RESIZE_THRESHOLD_BYTES = 512 * 1024

	jpegQuality = 85
)

// PrepareImage validates the payload is a decodable PNG/JPEG and downscales
// oversized images. Returns the bytes to transmit and their media type.
func PrepareImage(img []byte, contentType string) ([]byte, string, error) {
	if len(img) <= RESIZE_THRESHOLD_BYTES {
		if _, _, err := image.Decode(bytes.NewReader(img)); err != nil {
			return nil, "", fmt.Errorf("failed to read receipt image: %w", err)
		}
		return img, normalizeContentType(contentType), nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read receipt image: %w", err)
	}

	bounds := decoded.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width > MAX_IMAGE_DIMENSION || height > MAX_IMAGE_DIMENSION {
		if width >= height {
			decoded = resize.Resize(MAX_IMAGE_DIMENSION, 0, decoded, resize.Lanczos3)
		} else {
			decoded = resize.Resize(0, MAX_IMAGE_DIMENSION, decoded, resize.Lanczos3)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, decoded, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("failed to encode receipt image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

func normalizeContentType(contentType string) string {
	switch contentType {
	case "image/png", "image/jpeg":
		return contentType
	default:
		return "image/jpeg"
	}
}

// DataURL encodes an image the way browser uploads do, media type plus
// base64 payload in one string.
func DataURL(img []byte, contentType string) string {
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(img))
}
