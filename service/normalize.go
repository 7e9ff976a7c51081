package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// maxSourcePixels mirrors the decompression-bomb ceiling common image
// libraries enforce; larger sources are rejected before full decode.
const maxSourcePixels = 2 * 89478485

// Scaling selects how 0-255 channel values are remapped before inference.
type Scaling string

const (
	ScaleNone        Scaling = "none"
	ScaleUnit        Scaling = "unit"
	ScaleMobileNetV2 Scaling = "mobilenet_v2"
)

func (s Scaling) apply(v uint8) float32 {
	switch s {
	case ScaleUnit:
		return float32(v) / 255
	case ScaleMobileNetV2:
		return float32(v)/127.5 - 1
	default:
		return float32(v)
	}
}

var resampleFilters = map[string]imaging.ResampleFilter{
	"nearest":  imaging.NearestNeighbor,
	"bilinear": imaging.Linear,
	"bicubic":  imaging.CatmullRom,
	"lanczos":  imaging.Lanczos,
}

// Normalizer turns encoded image bytes into the fixed-shape tensor the
// classifier was trained on. It holds no mutable state.
type Normalizer struct {
	width    int
	height   int
	resample string
	filter   imaging.ResampleFilter
	scaling  Scaling
}

func NewNormalizer(width, height int, resample string, scaling Scaling) (*Normalizer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %dx%d", width, height)
	}
	filter, ok := resampleFilters[resample]
	if !ok {
		return nil, fmt.Errorf("unknown resample filter %q", resample)
	}
	switch scaling {
	case ScaleNone, ScaleUnit, ScaleMobileNetV2:
	default:
		return nil, fmt.Errorf("unknown scaling %q", scaling)
	}
	return &Normalizer{width: width, height: height, resample: resample, filter: filter, scaling: scaling}, nil
}

// Fingerprint identifies every setting that changes the tensor produced
// for a given input.
func (n *Normalizer) Fingerprint() string {
	return fmt.Sprintf("%dx%d/%s/%s", n.width, n.height, n.resample, n.scaling)
}

// Normalize decodes raw, converts it to RGB, resizes it and packs it as a
// (1, H, W, 3) tensor. Undecodable input yields a *DecodeError.
func (n *Normalizer) Normalize(raw []byte) (*ImageTensor, error) {
	img, err := decode(raw)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	rgb := toRGB(img)
	resized := imaging.Resize(rgb, n.width, n.height, n.filter)

	t := NewImageTensor(n.width, n.height)
	for y := 0; y < n.height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < n.width; x++ {
			px := row[x*4 : x*4+3]
			o := (y*n.width + x) * Channels
			t.Data[o] = n.scaling.apply(px[0])
			t.Data[o+1] = n.scaling.apply(px[1])
			t.Data[o+2] = n.scaling.apply(px[2])
		}
	}
	return t, nil
}

func decode(raw []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > maxSourcePixels {
		return nil, fmt.Errorf("image size %dx%d exceeds limit of %d pixels", cfg.Width, cfg.Height, maxSourcePixels)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	return img, err
}

// toRGB flattens any colour model to opaque NRGBA. Alpha is discarded, not
// composited, and grey or palette sources expand to three equal channels.
// It always copies, even for RGB sources.
func toRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
