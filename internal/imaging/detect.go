// Package imaging identifies uploaded image bytes with libvips (via bimg).
// It only inspects the buffer; images are stored exactly as uploaded.
package imaging

import (
	"github.com/h2non/bimg"
)

type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns the image type name bimg recognises in data ("jpeg", "png",
// "gif", "webp", ...) or "unknown".
func (Detector) Detect(data []byte) string {
	return bimg.DetermineImageTypeName(data)
}
