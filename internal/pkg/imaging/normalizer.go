package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode indicates the input bytes are not a recognized or intact image.
var ErrDecode = errors.New("cannot decode image")

// LayoutPolicy controls the output geometry of normalization.
type LayoutPolicy string

const (
	// PolicyFit outputs the scaled size with no padding.
	PolicyFit LayoutPolicy = "fit"
	// PolicyLetterbox outputs exactly the target geometry, the scaled
	// image centered on a white canvas.
	PolicyLetterbox LayoutPolicy = "letterbox"
)

// Config for image normalization
type Config struct {
	TargetWidth     int          // Max width of canonical output (default 800)
	TargetHeight    int          // Max height of canonical output (default 800)
	Policy          LayoutPolicy // Fit or letterbox (default fit)
	InitialQuality  int          // JPEG quality the encode loop starts at (default 90)
	QualityFloor    int          // Lowest quality the loop will try (default 20)
	QualityStep     int          // Quality decrement per retry (default 5)
	MaxEncodedBytes int          // Encoded size ceiling in bytes (default 500000)
}

// DefaultConfig returns default normalization config
func DefaultConfig() Config {
	return Config{
		TargetWidth:     800,
		TargetHeight:    800,
		Policy:          PolicyFit,
		InitialQuality:  90,
		QualityFloor:    20,
		QualityStep:     5,
		MaxEncodedBytes: 500000,
	}
}

// Normalized is the canonical representation of one input image.
type Normalized struct {
	Data           []byte // JPEG bytes
	Width          int
	Height         int
	SourceWidth    int
	SourceHeight   int
	SourceFormat   string // decoder name: "jpeg", "png", ...
	Format         string // always "jpeg"
	EncodedQuality int    // quality the encode loop settled on
}

// Normalizer turns arbitrary input images into the canonical on-disk form.
// It performs no I/O; callers own persistence.
type Normalizer struct {
	config Config
}

// NewNormalizer creates a normalizer
func NewNormalizer(config Config) *Normalizer {
	if config.TargetWidth <= 0 || config.TargetHeight <= 0 {
		def := DefaultConfig()
		config.TargetWidth = def.TargetWidth
		config.TargetHeight = def.TargetHeight
	}
	if config.Policy == "" {
		config.Policy = PolicyFit
	}
	if config.InitialQuality <= 0 {
		config.InitialQuality = 90
	}
	if config.QualityFloor <= 0 {
		config.QualityFloor = 20
	}
	if config.QualityStep <= 0 {
		config.QualityStep = 5
	}
	if config.MaxEncodedBytes <= 0 {
		config.MaxEncodedBytes = 500000
	}
	return &Normalizer{config: config}
}

// Decode decodes raw image bytes, reporting the source format.
func Decode(raw []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}

// Normalize decodes raw bytes and produces the canonical JPEG buffer plus
// geometry facts about both the source and the output.
func (n *Normalizer) Normalize(raw []byte) (*Normalized, error) {
	img, format, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()

	// Composite onto opaque white. JPEG has no transparency, and this
	// also reprojects grayscale/paletted inputs to three channels.
	flat := flattenOntoWhite(img)

	// Fit scales by min(tw/sw, th/sh) and never upscales.
	scaled := imaging.Fit(flat, n.config.TargetWidth, n.config.TargetHeight, imaging.Lanczos)

	out := scaled
	if n.config.Policy == PolicyLetterbox {
		canvas := imaging.New(n.config.TargetWidth, n.config.TargetHeight, color.White)
		out = imaging.PasteCenter(canvas, scaled)
	}

	data, quality, err := n.encodeBounded(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode canonical image: %w", err)
	}

	return &Normalized{
		Data:           data,
		Width:          out.Bounds().Dx(),
		Height:         out.Bounds().Dy(),
		SourceWidth:    srcW,
		SourceHeight:   srcH,
		SourceFormat:   format,
		Format:         "jpeg",
		EncodedQuality: quality,
	}, nil
}

// flattenOntoWhite composites the image onto an opaque white background
func flattenOntoWhite(img image.Image) *image.NRGBA {
	bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// encodeBounded re-encodes at decreasing quality until the byte ceiling is
// met or quality reaches the floor. Terminates in at most
// (InitialQuality-QualityFloor)/QualityStep + 1 iterations.
func (n *Normalizer) encodeBounded(img image.Image) ([]byte, int, error) {
	quality := n.config.InitialQuality
	var buf bytes.Buffer
	for {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, 0, err
		}
		if buf.Len() <= n.config.MaxEncodedBytes || quality <= n.config.QualityFloor {
			return buf.Bytes(), quality, nil
		}
		quality -= n.config.QualityStep
		if quality < n.config.QualityFloor {
			quality = n.config.QualityFloor
		}
	}
}
