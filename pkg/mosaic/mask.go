package mosaic

import (
	"bytes"
	"fmt"
	"image"
	"sort"
)

var (
	crlfcrlf = []byte("\r\n\r\n")
	closing  = []byte("\r\n--")
)

// ExtractMultipartPayload pulls the binary part body out of a raw multipart
// response: everything between the first blank line (end of the part
// headers) and the closing CRLF+boundary marker.
func ExtractMultipartPayload(body []byte) ([]byte, error) {
	start := bytes.Index(body, crlfcrlf)
	if start < 0 {
		return nil, fmt.Errorf("multipart: no header terminator")
	}
	payload := body[start+len(crlfcrlf):]
	end := bytes.Index(payload, closing)
	if end < 0 {
		return nil, fmt.Errorf("multipart: no closing boundary")
	}
	return payload[:end], nil
}

// UnpackBits expands a packed 1-bit mask into one byte per pixel, bits taken
// least-significant first within each byte. Segmentation frames are stored
// vertically inverted relative to the base image, so source row r lands on
// destination row height-1-r. The flip is unconditional for this pipeline.
func UnpackBits(data []byte, width, height int) ([]byte, error) {
	n := width * height
	if len(data)*8 < n {
		return nil, fmt.Errorf("packed mask too short: %d bytes for %dx%d", len(data), width, height)
	}

	out := make([]byte, n)
	for i := 0; i < n; i++ {
		bit := (data[i/8] >> (i % 8)) & 1
		row, col := i/width, i%width
		out[(height-1-row)*width+col] = bit
	}
	return out, nil
}

// Composite blends structure overlays into img. Masks are per-pixel 0/1
// buffers matching the image bounds; colors are RGB per structure number.
// Structures apply in ascending number order so later ones layer over
// earlier ones where masks overlap.
func Composite(img *image.RGBA, masks map[int][]byte, colors map[int][3]uint8, opacity float64) {
	numbers := make([]int, 0, len(masks))
	for n := range masks {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for _, n := range numbers {
		mask := masks[n]
		if len(mask) < w*h {
			continue
		}
		color, ok := colors[n]
		if !ok {
			continue
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if mask[y*w+x] == 0 {
					continue
				}
				off := img.PixOffset(b.Min.X+x, b.Min.Y+y)
				for c := 0; c < 3; c++ {
					old := float64(img.Pix[off+c])
					img.Pix[off+c] = uint8(old*(1-opacity) + float64(color[c])*opacity)
				}
			}
		}
	}
}
