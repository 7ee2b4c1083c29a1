package outbound

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// MaxPreviewBytes is the threshold above which an outbound image attachment
// is downscaled before being sent, so a channel's own upload limit is never
// the bottleneck for a large screenshot or generated image.
const MaxPreviewBytes = 400 * 1024

// PreviewWidth is the target width used when downscaling; imaging.Resize
// with a zero height preserves aspect ratio.
const PreviewWidth = 1280

// BuildPreview re-encodes raw as a JPEG preview when it exceeds
// MaxPreviewBytes, downscaling to PreviewWidth. Images already under the
// threshold are returned unchanged.
func BuildPreview(raw []byte) ([]byte, error) {
	if len(raw) <= MaxPreviewBytes {
		return raw, nil
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return raw, err
	}

	resized := imaging.Resize(img, PreviewWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return raw, err
	}
	return buf.Bytes(), nil
}
