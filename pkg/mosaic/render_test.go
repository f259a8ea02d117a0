package mosaic

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"idcmosaic/pkg/dicomweb"
	"idcmosaic/pkg/manifest"
)

// frameServer serves rendered frames as flat gray PNGs and raw frames as
// multipart-packed all-ones masks.
type frameServer struct {
	t        *testing.T
	size     int
	failBase map[string]bool // SOP UIDs whose rendered fetch 404s
}

func (f *frameServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 9 && parts[8] == "rendered":
		if f.failBase[parts[5]] {
			http.NotFound(w, r)
			return
		}
		img := image.NewRGBA(image.Rect(0, 0, f.size, f.size))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 100, 100, 100, 255
		}
		if err := png.Encode(w, img); err != nil {
			f.t.Error(err)
		}
	case len(parts) == 8 && parts[6] == "frames":
		n := f.size * f.size
		packed := make([]byte, (n+7)/8)
		for i := range packed {
			packed[i] = 0xff
		}
		w.Write(multipartBody(packed))
	default:
		f.t.Errorf("unexpected request path %s", r.URL.Path)
		http.NotFound(w, r)
	}
}

func newTestSession(t *testing.T, fs *frameServer, m *manifest.Manifest) *Session {
	t.Helper()
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	client := dicomweb.New(dicomweb.Config{BaseURL: srv.URL, RetryDelay: time.Millisecond})
	return NewSession(m, client, nil, rand.New(rand.NewPCG(3, 3)))
}

func baseTile(uid string) manifest.TileSample {
	return manifest.TileSample{
		SeriesUID: uid, StudyUID: "study." + uid, SOPUID: uid + ".sop",
		Modality: "CT", FrameNumber: 1,
	}
}

func segTile(uid string) manifest.TileSample {
	tile := baseTile(uid)
	tile.Segmentation = &manifest.SegmentationData{
		SeriesUID: uid + ".seg", SOPUID: uid + ".seg.sop",
		Algorithm: "TotalSegmentator",
		FrameMap:  map[int]int{1: 1},
		Segments:  []manifest.SegmentInfo{{Number: 1, Label: "liver", RGB: [3]uint8{255, 0, 0}}},
	}
	return tile
}

func TestSessionRender_BaseAndOverlay(t *testing.T) {
	m := manifest.New("v20", "", []manifest.TileSample{segTile("a"), baseTile("b")})
	s := newTestSession(t, &frameServer{t: t, size: 8}, m)

	canvas, err := s.Render(context.Background(), 2, ModeDiverse, 120, 90)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := canvas.Bounds(); got.Dx() != 120 || got.Dy() != 90 {
		t.Fatalf("canvas bounds = %v", got)
	}

	// The overlaid tile's pixels blend toward red; the plain tile stays
	// gray. Both must be present somewhere on the canvas.
	var sawRed, sawGray bool
	for i := 0; i < len(canvas.Pix); i += 4 {
		r, g := canvas.Pix[i], canvas.Pix[i+1]
		switch {
		case r > uint8(int(g)+40):
			sawRed = true
		case r == 100 && g == 100:
			sawGray = true
		}
	}
	if !sawRed {
		t.Error("no overlay-tinted pixels on canvas")
	}
	if !sawGray {
		t.Error("no plain base pixels on canvas")
	}
}

func TestSessionRender_BaseModeIgnoresOverlays(t *testing.T) {
	m := manifest.New("v20", "", []manifest.TileSample{segTile("a")})
	s := newTestSession(t, &frameServer{t: t, size: 8}, m)

	canvas, err := s.Render(context.Background(), 1, ModeBase, 64, 64)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for i := 0; i < len(canvas.Pix); i += 4 {
		if r, g := canvas.Pix[i], canvas.Pix[i+1]; r > uint8(int(g)+40) {
			t.Fatal("overlay pixels present in base mode")
		}
	}
}

func TestSessionRender_SegmentationModeFrontLoadsSegTiles(t *testing.T) {
	m := manifest.New("v20", "", []manifest.TileSample{baseTile("a"), baseTile("b"), segTile("c")})
	s := newTestSession(t, &frameServer{t: t, size: 8}, m)

	canvas, err := s.Render(context.Background(), 1, ModeSegmentation, 64, 64)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	var sawRed bool
	for i := 0; i < len(canvas.Pix); i += 4 {
		if r, g := canvas.Pix[i], canvas.Pix[i+1]; r > uint8(int(g)+40) {
			sawRed = true
			break
		}
	}
	if !sawRed {
		t.Error("segmentation mode did not select the segmentation tile")
	}
}

func TestSessionRender_BaseFailureLeavesBlankCell(t *testing.T) {
	m := manifest.New("v20", "", []manifest.TileSample{baseTile("a"), baseTile("b")})
	fs := &frameServer{t: t, size: 8, failBase: map[string]bool{"b.sop": true}}
	s := newTestSession(t, fs, m)

	canvas, err := s.Render(context.Background(), 2, ModeDiverse, 100, 100)
	if err != nil {
		t.Fatalf("Render() error = %v, want nil (per-tile fallback)", err)
	}

	// The failed tile keeps the background fill; the healthy one renders.
	var sawBackground, sawGray bool
	for i := 0; i < len(canvas.Pix); i += 4 {
		switch (color.RGBA{canvas.Pix[i], canvas.Pix[i+1], canvas.Pix[i+2], canvas.Pix[i+3]}) {
		case background:
			sawBackground = true
		case color.RGBA{100, 100, 100, 255}:
			sawGray = true
		}
	}
	if !sawBackground || !sawGray {
		t.Errorf("sawBackground=%v sawGray=%v, want both", sawBackground, sawGray)
	}
}

func TestSessionRender_TileCountClamped(t *testing.T) {
	m := manifest.New("v20", "", []manifest.TileSample{baseTile("a")})
	s := newTestSession(t, &frameServer{t: t, size: 8}, m)

	if _, err := s.Render(context.Background(), 50, ModeDiverse, 64, 64); err != nil {
		t.Errorf("Render() error = %v, want clamp to manifest size", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"diverse", ModeDiverse, false},
		{"base", ModeBase, false},
		{"segmentation", ModeSegmentation, false},
		{"", ModeDiverse, false},
		{"fancy", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionRender_InvalidInputs(t *testing.T) {
	s := NewSession(manifest.New("v20", "", nil), dicomweb.New(dicomweb.Config{}), nil, rand.New(rand.NewPCG(1, 1)))
	if _, err := s.Render(context.Background(), 1, ModeDiverse, 0, 100); err == nil {
		t.Error("Render() with zero width succeeded")
	}
	if _, err := s.Render(context.Background(), 1, ModeDiverse, 100, 100); err == nil {
		t.Error("Render() with empty manifest succeeded")
	}
}

func TestCellBounds_PartitionCanvasExactly(t *testing.T) {
	const w, h = 1920, 1080
	canvas := image.Rect(0, 0, w, h)

	for _, n := range []int{1, 2, 7, 37, 100} {
		rng := rand.New(rand.NewPCG(uint64(n), uint64(n)))
		rects := Layout(n, w, h, rng)

		bounds := make([]image.Rectangle, len(rects))
		area := 0
		for i, r := range rects {
			b := cellBounds(r)
			if b.Empty() {
				t.Fatalf("n=%d: cell %d has empty pixel bounds %v", n, i, b)
			}
			if !b.In(canvas) {
				t.Fatalf("n=%d: cell %d bounds %v exceed canvas", n, i, b)
			}
			bounds[i] = b
			area += b.Dx() * b.Dy()
		}
		for i := range bounds {
			for j := i + 1; j < len(bounds); j++ {
				if bounds[i].Overlaps(bounds[j]) {
					t.Errorf("n=%d: cells %d and %d overlap: %v and %v", n, i, j, bounds[i], bounds[j])
				}
			}
		}
		if area != w*h {
			t.Errorf("n=%d: cell areas sum to %d, want %d (gaps or overlaps)", n, area, w*h)
		}
	}
}
