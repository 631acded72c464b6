package video

import (
	"image"
	"io"
)

// Frames is an in-memory Source over already decoded images.
type Frames struct {
	images []image.Image
	pos    int
	closed bool
}

// NewFrames wraps images as a Source in the given order.
func NewFrames(images ...image.Image) *Frames {
	return &Frames{images: images}
}

func (f *Frames) FrameCount() int {
	return len(f.images)
}

func (f *Frames) Next() (image.Image, error) {
	if f.closed || f.pos >= len(f.images) {
		return nil, io.EOF
	}
	img := f.images[f.pos]
	f.pos++
	return img, nil
}

func (f *Frames) Close() error {
	f.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (f *Frames) Closed() bool {
	return f.closed
}
