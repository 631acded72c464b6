package video

import (
	"context"
	"image"
)

// Source is a read-only, sequential stream of decoded frames.
type Source interface {
	// FrameCount reports the total number of frames the source claims to hold.
	// It may be 0 when the container carries no count.
	FrameCount() int

	// Next decodes the next frame in decode order and returns io.EOF once the
	// source is exhausted.
	Next() (image.Image, error)

	// Close releases the decoder.
	Close() error
}

// Opener opens a Source for the video at path.
type Opener func(ctx context.Context, path string) (Source, error)
