package capture

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// StillSource serves a single image as every camera frame. Useful for
// development and tests on machines without a camera.
type StillSource struct {
	img image.Image
}

// NewStillSource decodes one JPEG or PNG file.
func NewStillSource(path string) (*StillSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open still image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode still image %q: %w", path, err)
	}
	return &StillSource{img: img}, nil
}

// Frame implements companion.FrameSource.
func (s *StillSource) Frame() (image.Image, bool) {
	return s.img, true
}
