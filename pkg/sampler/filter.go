package sampler

import (
	"bytes"
	"image"

	// Preview decoding: the transport serves JPEG or PNG renditions.
	_ "image/jpeg"
	_ "image/png"

	"gonum.org/v1/gonum/stat"
)

// maxFilterSamples bounds how many pixels the filter inspects; large
// previews are subsampled on a regular grid.
const maxFilterSamples = 1 << 16

// CheckPreview scores a rendered candidate preview and reports whether it
// passes quality filtering. The base test rejects previews whose normalized
// luma variance falls below cfg.VarianceThreshold (blank or near-blank
// slices). Pyramidal tiles additionally need a minimum fraction of
// non-background ("tissue") pixels, since microscopy regions are mostly
// white glass.
//
// Any decode failure is a rejection, never an error: the sampler treats a
// bad preview exactly like an empty one and moves on.
func CheckPreview(preview []byte, cfg Config, pyramidal bool) bool {
	img, _, err := image.Decode(bytes.NewReader(preview))
	if err != nil {
		return false
	}
	lumas := lumaSamples(img)
	if len(lumas) == 0 {
		return false
	}

	if stat.Variance(lumas, nil) < cfg.VarianceThreshold {
		return false
	}

	if pyramidal {
		tissue := 0
		for _, l := range lumas {
			if l < cfg.BackgroundLuma {
				tissue++
			}
		}
		if float64(tissue)/float64(len(lumas)) < cfg.MinTissueFraction {
			return false
		}
	}
	return true
}

// lumaSamples extracts normalized [0,1] luma values on a regular grid.
func lumaSamples(img image.Image) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	stride := 1
	for (w/stride)*(h/stride) > maxFilterSamples {
		stride++
	}

	lumas := make([]float64, 0, (w/stride+1)*(h/stride+1))
	for y := b.Min.Y; y < b.Max.Y; y += stride {
		for x := b.Min.X; x < b.Max.X; x += stride {
			r, g, bl, _ := img.At(x, y).RGBA()
			// Rec. 601 luma over 16-bit channels.
			luma := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 65535.0
			lumas = append(lumas, luma)
		}
	}
	return lumas
}
