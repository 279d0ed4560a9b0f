package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// noisy fills the image with a deterministic high-frequency pattern that
// compresses badly, to exercise the quality reduction loop.
func noisy(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*7 + y*13 + x*y) % 256)
			img.Set(x, y, color.NRGBA{R: v, G: 255 - v, B: v ^ 0xAA, A: 255})
		}
	}
	return img
}

func TestNormalizeGeometry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetWidth = 800
	cfg.TargetHeight = 600

	t.Run("fit scales down limited by width", func(t *testing.T) {
		n := NewNormalizer(cfg)
		out, err := n.Normalize(pngBytes(t, solid(2000, 1000, color.Black)))
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if out.Width != 800 || out.Height != 400 {
			t.Fatalf("expected 800x400, got %dx%d", out.Width, out.Height)
		}
		if out.SourceWidth != 2000 || out.SourceHeight != 1000 {
			t.Fatalf("source dimensions not recorded: %dx%d", out.SourceWidth, out.SourceHeight)
		}
		if out.SourceFormat != "png" || out.Format != "jpeg" {
			t.Fatalf("unexpected formats: %s -> %s", out.SourceFormat, out.Format)
		}
	})

	t.Run("letterbox pads to exact target", func(t *testing.T) {
		lb := cfg
		lb.Policy = PolicyLetterbox
		n := NewNormalizer(lb)
		out, err := n.Normalize(pngBytes(t, solid(2000, 1000, color.Black)))
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if out.Width != 800 || out.Height != 600 {
			t.Fatalf("expected exactly 800x600, got %dx%d", out.Width, out.Height)
		}

		decoded, _, err := Decode(out.Data)
		if err != nil {
			t.Fatalf("decode output: %v", err)
		}
		// Top band is padding, center is image content.
		top := color.NRGBAModel.Convert(decoded.At(400, 20)).(color.NRGBA)
		mid := color.NRGBAModel.Convert(decoded.At(400, 300)).(color.NRGBA)
		if top.R < 200 || top.G < 200 || top.B < 200 {
			t.Fatalf("letterbox padding not white: %+v", top)
		}
		if mid.R > 80 || mid.G > 80 || mid.B > 80 {
			t.Fatalf("letterboxed content not centered: %+v", mid)
		}
	})

	t.Run("never upscales", func(t *testing.T) {
		n := NewNormalizer(cfg)
		out, err := n.Normalize(pngBytes(t, solid(400, 300, color.Black)))
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if out.Width != 400 || out.Height != 300 {
			t.Fatalf("small image was rescaled to %dx%d", out.Width, out.Height)
		}
	})

	t.Run("output never exceeds target on either axis", func(t *testing.T) {
		n := NewNormalizer(cfg)
		for _, dims := range [][2]int{{1000, 3000}, {3000, 1000}, {801, 601}} {
			out, err := n.Normalize(pngBytes(t, solid(dims[0], dims[1], color.Black)))
			if err != nil {
				t.Fatalf("normalize %v: %v", dims, err)
			}
			if out.Width > 800 || out.Height > 600 {
				t.Fatalf("source %v produced oversize output %dx%d", dims, out.Width, out.Height)
			}
		}
	})
}

func TestNormalizeAlphaComposite(t *testing.T) {
	// Fully transparent image must come out opaque white, not black.
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	n := NewNormalizer(DefaultConfig())

	out, err := n.Normalize(pngBytes(t, img))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	decoded, _, err := Decode(out.Data)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	px := color.NRGBAModel.Convert(decoded.At(50, 50)).(color.NRGBA)
	if px.R < 240 || px.G < 240 || px.B < 240 {
		t.Fatalf("transparent input not composited onto white: %+v", px)
	}
}

func TestNormalizeDecodeError(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("definitely not an image")},
		{"empty", nil},
		{"truncated png header", []byte{0x89, 'P', 'N', 'G'}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(tc.data)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestEncodeBounded(t *testing.T) {
	t.Run("stops at quality floor under a tiny ceiling", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxEncodedBytes = 2000 // unachievable for a noisy 800x800
		n := NewNormalizer(cfg)

		out, err := n.Normalize(pngBytes(t, noisy(800, 800)))
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if out.EncodedQuality != cfg.QualityFloor {
			t.Fatalf("expected quality floor %d, got %d", cfg.QualityFloor, out.EncodedQuality)
		}
	})

	t.Run("stays at initial quality when already under ceiling", func(t *testing.T) {
		cfg := DefaultConfig()
		n := NewNormalizer(cfg)

		out, err := n.Normalize(pngBytes(t, solid(100, 100, color.White)))
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if out.EncodedQuality != cfg.InitialQuality {
			t.Fatalf("expected initial quality %d, got %d", cfg.InitialQuality, out.EncodedQuality)
		}
		if len(out.Data) > cfg.MaxEncodedBytes {
			t.Fatalf("tiny image exceeds ceiling: %d bytes", len(out.Data))
		}
	})
}
