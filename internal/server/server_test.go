package server

import (
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"idcmosaic/pkg/dicomweb"
	"idcmosaic/pkg/manifest"
)

// newTestServer wires a Server over a one-tile manifest and a frame
// endpoint serving flat PNGs.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	frames := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/rendered") {
			http.NotFound(w, r)
			return
		}
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		if err := png.Encode(w, img); err != nil {
			t.Error(err)
		}
	}))
	t.Cleanup(frames.Close)

	m := manifest.New("v20", frames.URL, []manifest.TileSample{{
		SeriesUID: "s1", StudyUID: "st1", SOPUID: "i1", Modality: "CT", FrameNumber: 1,
	}})
	client := dicomweb.New(dicomweb.Config{BaseURL: frames.URL, RetryDelay: time.Millisecond})

	srv := httptest.NewServer(New(m, client, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleManifest(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var m manifest.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.TotalTiles != 1 || m.CatalogVersion != "v20" {
		t.Errorf("manifest = %+v", m)
	}
}

func TestHandleMosaic(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/mosaic.png?width=64&height=48&mode=diverse&seed=7")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %s", ct)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("bounds = %v", b)
	}
}

func TestHandleMosaic_BadParams(t *testing.T) {
	srv := newTestServer(t)

	for _, query := range []string{
		"mode=sideways",
		"width=0",
		"width=notanumber",
		"height=-5",
		"width=100000",
		"seed=xyz",
		"tiles=abc",
	} {
		resp, err := http.Get(srv.URL + "/mosaic.png?" + query)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", query, resp.StatusCode)
		}
	}
}

func TestHandleHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
		Tiles  int    `json:"tiles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Tiles != 1 {
		t.Errorf("healthz = %+v", body)
	}
}
