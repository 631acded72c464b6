package extractor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/filmstrip/internal/video"
)

// syntheticVideo returns n solid gray frames whose luma encodes the decode position.
func syntheticVideo(n int) *video.Frames {
	frames := make([]image.Image, n)
	for i := range frames {
		img := image.NewGray(image.Rect(0, 0, 16, 8))
		for p := range img.Pix {
			img.Pix[p] = uint8(i * 2)
		}
		frames[i] = img
	}
	return video.NewFrames(frames...)
}

func openerFor(src video.Source) video.Opener {
	return func(ctx context.Context, path string) (video.Source, error) {
		return src, nil
	}
}

func frameLuma(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	y := color.GrayModel.Convert(img.At(4, 4)).(color.Gray).Y
	return int(y)
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestStride(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10, Stride(100, 10))
	assert.Equal(t, 10, Stride(105, 10))
	assert.Equal(t, 1, Stride(3, 10))
	assert.Equal(t, 1, Stride(0, 10))
	assert.Equal(t, 1, Stride(10, 0))
}

func TestExtractKeyFrames_UniformStride(t *testing.T) {
	t.Parallel()

	src := syntheticVideo(100)
	dir := filepath.Join(t.TempDir(), "out", "frames")

	res, err := NewExtractor(openerFor(src), 0, nil).ExtractKeyFrames(context.Background(), "forest.mp4", dir, 10)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Count)
	assert.Equal(t, 10, res.Stride)
	assert.Equal(t, 100, res.TotalFrames)
	require.Len(t, res.Paths, 10)
	assert.True(t, src.Closed(), "source must be closed")

	for n, p := range res.Paths {
		assert.Equal(t, filepath.Join(dir, FrameName(n)), p)
		// frame n comes from decode position n*10, luma (n*10)*2
		assert.InDelta(t, n*20, frameLuma(t, p), 3, "frame%d", n)
	}
	assert.Len(t, listNames(t, dir), 10)
}

func TestExtractKeyFrames_ShortVideoClampsStride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res, err := NewExtractor(openerFor(syntheticVideo(3)), 0, nil).ExtractKeyFrames(context.Background(), "short.mp4", dir, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stride)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, []string{"frame0.jpg", "frame1.jpg", "frame2.jpg"}, listNames(t, dir))
}

func TestExtractKeyFrames_ReadsWholeSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := &countingSource{Frames: syntheticVideo(105)}
	res, err := NewExtractor(openerFor(src), 0, nil).ExtractKeyFrames(context.Background(), "v.mp4", dir, 10)
	require.NoError(t, err)

	// 105 frames at stride 10 select positions 0, 10, ..., 100.
	assert.Equal(t, 10, res.Stride)
	assert.Equal(t, 11, res.Count)
	want := make([]string, 0, 11)
	for n := 0; n <= 10; n++ {
		want = append(want, FrameName(n))
	}
	sort.Strings(want)
	assert.Equal(t, want, listNames(t, dir))
	assert.InDelta(t, 200, frameLuma(t, filepath.Join(dir, "frame10.jpg")), 3)

	assert.Equal(t, 105, src.decoded)
	assert.True(t, src.drained, "source must be read to EOF")
}

func TestExtractKeyFrames_UnknownFrameCountTakesLeadingFrames(t *testing.T) {
	t.Parallel()

	src := &countlessSource{Frames: syntheticVideo(30)}
	res, err := NewExtractor(openerFor(src), 0, nil).ExtractKeyFrames(context.Background(), "v.mp4", t.TempDir(), 5)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stride)
	assert.Equal(t, 5, res.Count)
}

func TestExtractKeyFrames_Idempotent(t *testing.T) {
	t.Parallel()

	var runs [2][]string
	var counts [2]int
	for i := range runs {
		dir := t.TempDir()
		res, err := NewExtractor(openerFor(syntheticVideo(100)), 0, nil).ExtractKeyFrames(context.Background(), "v.mp4", dir, 10)
		require.NoError(t, err)
		runs[i] = listNames(t, dir)
		counts[i] = res.Count
	}
	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, counts[0], counts[1])
}

func TestExtractKeyFrames_InvalidFrameCount(t *testing.T) {
	t.Parallel()

	_, err := NewExtractor(openerFor(syntheticVideo(10)), 0, nil).ExtractKeyFrames(context.Background(), "v.mp4", t.TempDir(), 0)
	assert.ErrorIs(t, err, ErrInvalidFrameCount)
}

func TestExtractKeyFrames_OpenFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("cannot decode")
	open := func(ctx context.Context, path string) (video.Source, error) { return nil, boom }

	dir := filepath.Join(t.TempDir(), "never")
	_, err := NewExtractor(open, 0, nil).ExtractKeyFrames(context.Background(), "bad.mp4", dir, 10)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad.mp4")
}

func TestExtractKeyFrames_DecodeFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("corrupt packet")
	src := &failingSource{Frames: syntheticVideo(20), failAt: 5, err: boom}

	_, err := NewExtractor(openerFor(src), 0, nil).ExtractKeyFrames(context.Background(), "v.mp4", t.TempDir(), 2)
	require.ErrorIs(t, err, boom)
	assert.True(t, src.Closed())
}

func TestExtractKeyFrames_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExtractor(openerFor(syntheticVideo(10)), 0, nil).ExtractKeyFrames(ctx, "v.mp4", t.TempDir(), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

type countlessSource struct {
	*video.Frames
}

func (countlessSource) FrameCount() int { return 0 }

type countingSource struct {
	*video.Frames
	decoded int
	drained bool
}

func (s *countingSource) Next() (image.Image, error) {
	img, err := s.Frames.Next()
	switch {
	case errors.Is(err, io.EOF):
		s.drained = true
	case err == nil:
		s.decoded++
	}
	return img, err
}

type failingSource struct {
	*video.Frames
	failAt int
	pos    int
	err    error
}

func (f *failingSource) Next() (image.Image, error) {
	if f.pos == f.failAt {
		return nil, f.err
	}
	f.pos++
	return f.Frames.Next()
}
