package stitcher

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bdougie/filmstrip/internal/fileutils"
)

// DefaultQuality is the JPEG quality used when none, or an invalid one, is given.
const DefaultQuality = 95

var ErrNoImages = errors.New("no images to stitch")

// Stitcher writes strips with a fixed JPEG quality. The package-level
// functions use DefaultQuality.
type Stitcher struct {
	quality int
}

// New returns a Stitcher encoding JPEG output at quality, falling back to
// DefaultQuality outside 1..100.
func New(quality int) *Stitcher {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Stitcher{quality: quality}
}

// Quality is the JPEG quality of written strips.
func (s *Stitcher) Quality() int {
	return s.quality
}

// Result describes a written strip.
type Result struct {
	Path    string
	Width   int
	Height  int
	Offsets []int
}

// StitchImages concatenates every regular file directly inside imageDir, in
// lexicographic file name order, and writes the strip to outputImage. Note that
// lexicographic order puts frame10.jpg before frame2.jpg; use StitchFiles with an
// explicit list when extraction order matters.
func StitchImages(imageDir, outputImage string) (*Result, error) {
	return New(DefaultQuality).StitchImages(imageDir, outputImage)
}

func (s *Stitcher) StitchImages(imageDir, outputImage string) (*Result, error) {
	paths, err := ListImages(imageDir, outputImage)
	if err != nil {
		return nil, err
	}
	return s.StitchFiles(paths, outputImage)
}

// ListImages returns the regular files directly inside dir sorted by name,
// leaving out exclude when it lives there.
func ListImages(dir, exclude string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory '%s': %w", dir, err)
	}

	excludeAbs, _ := filepath.Abs(exclude)
	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".tmp_") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if abs, err := filepath.Abs(p); err == nil && exclude != "" && abs == excludeAbs {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in '%s'", ErrNoImages, dir)
	}
	return paths, nil
}

// StitchFiles loads paths in the given order and writes their horizontal strip to outputImage.
func StitchFiles(paths []string, outputImage string) (*Result, error) {
	return New(DefaultQuality).StitchFiles(paths, outputImage)
}

func (s *Stitcher) StitchFiles(paths []string, outputImage string) (*Result, error) {
	if len(paths) == 0 {
		return nil, ErrNoImages
	}

	images := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := loadImage(p)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	strip, offsets := Compose(images)
	if err := s.Save(strip, outputImage); err != nil {
		return nil, err
	}

	return &Result{
		Path:    outputImage,
		Width:   strip.Bounds().Dx(),
		Height:  strip.Bounds().Dy(),
		Offsets: offsets,
	}, nil
}

// Compose pastes images left to right, top aligned, on an opaque black canvas
// as wide as all images together and as tall as the tallest one. It returns the
// canvas and the x offset of every image.
func Compose(images []image.Image) (*image.RGBA, []int) {
	totalWidth, maxHeight := 0, 0
	for _, img := range images {
		b := img.Bounds()
		totalWidth += b.Dx()
		maxHeight = max(maxHeight, b.Dy())
	}

	canvas := image.NewRGBA(image.Rect(0, 0, totalWidth, maxHeight))
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)

	offsets := make([]int, 0, len(images))
	x := 0
	for _, img := range images {
		b := img.Bounds()
		offsets = append(offsets, x)
		dst := image.Rect(x, 0, x+b.Dx(), b.Dy())
		draw.Draw(canvas, dst, img, b.Min, draw.Src)
		x += b.Dx()
	}
	return canvas, offsets
}

// Save encodes img by the extension of path: PNG for .png, JPEG at
// DefaultQuality otherwise.
func Save(img image.Image, path string) error {
	return New(DefaultQuality).Save(img, path)
}

func (s *Stitcher) Save(img image.Image, path string) error {
	err := fileutils.WriteAtomic(path, 0o644, func(w io.Writer) error {
		if strings.EqualFold(filepath.Ext(path), ".png") {
			return png.Encode(w, img)
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: s.quality})
	})
	if err != nil {
		return fmt.Errorf("failed to save image '%s': %w", path, err)
	}
	return nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image '%s': %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image '%s': %w", path, err)
	}
	return img, nil
}
