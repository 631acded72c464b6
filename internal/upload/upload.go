package upload

import (
	"context"
	"errors"
)

var ErrNoURL = errors.New("no public image URL configured")

// Uploader makes a local image reachable by the description service and
// returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, imagePath string) (string, error)
}

// Static is an Uploader for images already hosted elsewhere: it ignores the
// local file and returns the URL it was given.
type Static string

func (s Static) Upload(ctx context.Context, imagePath string) (string, error) {
	if s == "" {
		return "", ErrNoURL
	}
	return string(s), nil
}
