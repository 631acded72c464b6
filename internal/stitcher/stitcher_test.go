package stitcher

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	black = color.RGBA{A: 255}
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func rgba(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestCompose_SizeAndPlacement(t *testing.T) {
	t.Parallel()

	strip, offsets := Compose([]image.Image{
		solid(100, 50, red),
		solid(80, 60, green),
		solid(120, 40, blue),
	})

	assert.Equal(t, 300, strip.Bounds().Dx())
	assert.Equal(t, 60, strip.Bounds().Dy())
	assert.Equal(t, []int{0, 100, 180}, offsets)

	assert.Equal(t, red, rgba(strip, 0, 0))
	assert.Equal(t, red, rgba(strip, 99, 49))
	assert.Equal(t, green, rgba(strip, 100, 0))
	assert.Equal(t, green, rgba(strip, 179, 59))
	assert.Equal(t, blue, rgba(strip, 180, 0))
	assert.Equal(t, blue, rgba(strip, 299, 39))

	// background below the shorter frames
	assert.Equal(t, black, rgba(strip, 50, 55))
	assert.Equal(t, black, rgba(strip, 250, 45))
}

func TestCompose_NonZeroOriginBounds(t *testing.T) {
	t.Parallel()

	sub := solid(40, 40, green).SubImage(image.Rect(10, 10, 30, 20))
	strip, offsets := Compose([]image.Image{solid(5, 5, red), sub})

	assert.Equal(t, 25, strip.Bounds().Dx())
	assert.Equal(t, 10, strip.Bounds().Dy())
	assert.Equal(t, []int{0, 5}, offsets)
	assert.Equal(t, green, rgba(strip, 5, 0))
	assert.Equal(t, green, rgba(strip, 24, 9))
}

func TestStitchFiles_WritesStrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	c := filepath.Join(dir, "c.png")
	writePNG(t, a, solid(100, 50, red))
	writePNG(t, b, solid(80, 60, green))
	writePNG(t, c, solid(120, 40, blue))

	out := filepath.Join(dir, "strip", "stitched.png")
	res, err := StitchFiles([]string{a, b, c}, out)
	require.NoError(t, err)
	assert.Equal(t, &Result{Path: out, Width: 300, Height: 60, Offsets: []int{0, 100, 180}}, res)

	img := readPNG(t, out)
	assert.Equal(t, image.Rect(0, 0, 300, 60), img.Bounds())
	assert.Equal(t, green, rgba(img, 140, 30))
}

func TestStitchFiles_OrderFollowsList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	writePNG(t, a, solid(10, 10, red))
	writePNG(t, b, solid(10, 10, blue))

	out := filepath.Join(dir, "out.png")
	_, err := StitchFiles([]string{b, a}, out)
	require.NoError(t, err)

	img := readPNG(t, out)
	assert.Equal(t, blue, rgba(img, 0, 0))
	assert.Equal(t, red, rgba(img, 10, 0))
}

func TestStitchFiles_JPEGOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	writePNG(t, a, solid(30, 20, red))

	out := filepath.Join(dir, "stitched_image.jpg")
	res, err := StitchFiles([]string{a, a}, out)
	require.NoError(t, err)
	assert.Equal(t, 60, res.Width)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 60, cfg.Width)
	assert.Equal(t, 20, cfg.Height)
}

func TestNew_QualityFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 40, New(40).Quality())
	assert.Equal(t, DefaultQuality, New(0).Quality())
	assert.Equal(t, DefaultQuality, New(101).Quality())
}

func TestStitcher_JPEGQualityIsApplied(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	noisy := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			noisy.Set(x, y, color.RGBA{R: uint8(x * y * 37), G: uint8(x*13 + y*7), B: uint8(x ^ y), A: 255})
		}
	}
	src := filepath.Join(dir, "noisy.png")
	writePNG(t, src, noisy)

	low := filepath.Join(dir, "low.jpg")
	high := filepath.Join(dir, "high.jpg")
	_, err := New(10).StitchFiles([]string{src, src}, low)
	require.NoError(t, err)
	_, err = New(100).StitchFiles([]string{src, src}, high)
	require.NoError(t, err)

	lowInfo, err := os.Stat(low)
	require.NoError(t, err)
	highInfo, err := os.Stat(high)
	require.NoError(t, err)
	assert.Less(t, lowInfo.Size(), highInfo.Size())
}

func TestListImages_LexicographicOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i := 0; i <= 10; i++ {
		writePNG(t, filepath.Join(dir, fmt.Sprintf("frame%d.jpg", i)), solid(2, 2, red))
	}

	paths, err := ListImages(dir, "")
	require.NoError(t, err)
	require.Len(t, paths, 11)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{
		"frame0.jpg", "frame1.jpg", "frame10.jpg", "frame2.jpg", "frame3.jpg",
		"frame4.jpg", "frame5.jpg", "frame6.jpg", "frame7.jpg", "frame8.jpg", "frame9.jpg",
	}, names)
	// frame10 lands before frame2: directory order is not extraction order.
	assert.Less(t, indexOf(names, "frame10.jpg"), indexOf(names, "frame2.jpg"))
}

func TestStitchImages_SkipsSubdirsAndOwnOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame0.png"), solid(10, 4, red))
	writePNG(t, filepath.Join(dir, "frame1.png"), solid(10, 6, blue))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	writePNG(t, filepath.Join(dir, "nested", "x.png"), solid(50, 50, green))

	out := filepath.Join(dir, "stitched_image.png")
	writePNG(t, out, solid(500, 500, green))

	res, err := StitchImages(dir, out)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Width)
	assert.Equal(t, 6, res.Height)
}

func TestStitchImages_EmptyDir(t *testing.T) {
	t.Parallel()

	_, err := StitchImages(t.TempDir(), filepath.Join(t.TempDir(), "out.jpg"))
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestStitchFiles_Empty(t *testing.T) {
	t.Parallel()

	_, err := StitchFiles(nil, filepath.Join(t.TempDir(), "out.jpg"))
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestStitchImages_NonImageFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame0.png"), solid(4, 4, red))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	_, err := StitchImages(dir, filepath.Join(t.TempDir(), "out.jpg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes.txt")
}

func TestStitchImages_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := StitchImages(filepath.Join(t.TempDir(), "missing"), "out.jpg")
	assert.Error(t, err)
}

func TestStitchFiles_UnwritableOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	writePNG(t, a, solid(4, 4, red))

	// parent of the output is a regular file
	_, err := StitchFiles([]string{a}, filepath.Join(a, "out.jpg"))
	assert.Error(t, err)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
