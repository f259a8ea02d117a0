// Package mosaic renders a sampled manifest as an irregularly packed image
// mosaic: a randomized treemap assigns every tile a rectangle, base imagery
// is fetched and scaled into place, and segmentation-enabled tiles get
// colored structure overlays decoded from raw mask frames.
package mosaic

import (
	"math/rand/v2"
)

// Rect is one treemap cell. Index is the tile assigned to it.
type Rect struct {
	X, Y, W, H float64
	Index      int
}

// Layout partitions the [0,w]×[0,h] canvas into n disjoint rectangles via
// randomized recursive bisection. Every tile draws a weight in [1,3) so cell
// sizes vary visibly but stay bounded; tile order is shuffled once before
// assignment so repeated layouts of the same manifest differ. Child areas
// always sum exactly to their parent's area, and every cell has positive
// width and height.
func Layout(n int, w, h float64, rng *rand.Rand) []Rect {
	if n <= 0 {
		return nil
	}

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 + 2*rng.Float64()
	}
	order := rng.Perm(n)

	rects := make([]Rect, 0, n)
	var split func(indices []int, r Rect)
	split = func(indices []int, r Rect) {
		if len(indices) == 1 {
			r.Index = indices[0]
			rects = append(rects, r)
			return
		}

		total := 0.0
		for _, i := range indices {
			total += weights[i]
		}

		// Cut where the cumulative weight first crosses a jittered target
		// in the 30–70% band; both halves stay non-empty.
		target := total * (0.3 + 0.4*rng.Float64())
		cut := len(indices) - 1
		cum := 0.0
		for k, i := range indices[:len(indices)-1] {
			cum += weights[i]
			if cum >= target {
				cut = k + 1
				break
			}
		}

		first := 0.0
		for _, i := range indices[:cut] {
			first += weights[i]
		}
		share := first / total

		a, b := r, r
		if r.W >= r.H {
			a.W = r.W * share
			b.X = r.X + a.W
			b.W = r.W - a.W
		} else {
			a.H = r.H * share
			b.Y = r.Y + a.H
			b.H = r.H - a.H
		}
		split(indices[:cut], a)
		split(indices[cut:], b)
	}

	split(order, Rect{W: w, H: h})
	return rects
}
