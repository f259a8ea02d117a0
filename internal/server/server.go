// Package server exposes a generated manifest over HTTP: the raw manifest
// document, rendered mosaic images with runtime view parameters, and a
// liveness endpoint.
package server

import (
	"encoding/json"
	"image/png"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"idcmosaic/pkg/dicomweb"
	"idcmosaic/pkg/manifest"
	"idcmosaic/pkg/mosaic"
)

const (
	defaultWidth  = 1920
	defaultHeight = 1080
	maxDimension  = 8192
)

// Server serves one manifest. Rendering state never crosses requests: each
// mosaic request gets its own session and generator, so layouts vary per
// request unless a seed parameter pins them.
type Server struct {
	manifest *manifest.Manifest
	client   *dicomweb.Client
	logger   *log.Logger
}

// New creates a Server over m, fetching imagery through client.
func New(m *manifest.Manifest, client *dicomweb.Client, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{manifest: m, client: client, logger: logger}
}

// Handler builds the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/manifest.json", s.handleManifest)
	r.Get("/mosaic.png", s.handleMosaic)
	r.Get("/healthz", s.handleHealthz)

	return r
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.manifest); err != nil {
		s.logger.Errorf("encode manifest: %v", err)
	}
}

// handleMosaic renders a mosaic from query parameters: tiles (count, 0 =
// all), mode (diverse|base|segmentation), width/height, and an optional
// seed for reproducible layouts.
func (s *Server) handleMosaic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, err := mosaic.ParseMode(q.Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tiles, err := intParam(q.Get("tiles"), 0)
	if err != nil {
		http.Error(w, "bad tiles parameter", http.StatusBadRequest)
		return
	}
	width, err := intParam(q.Get("width"), defaultWidth)
	if err != nil || width <= 0 || width > maxDimension {
		http.Error(w, "bad width parameter", http.StatusBadRequest)
		return
	}
	height, err := intParam(q.Get("height"), defaultHeight)
	if err != nil || height <= 0 || height > maxDimension {
		http.Error(w, "bad height parameter", http.StatusBadRequest)
		return
	}

	seed := uint64(time.Now().UnixNano())
	if v := q.Get("seed"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "bad seed parameter", http.StatusBadRequest)
			return
		}
		seed = parsed
	}

	session := mosaic.NewSession(s.manifest, s.client, s.logger, rand.New(rand.NewPCG(seed, seed)))
	img, err := session.Render(r.Context(), tiles, mode, width, height)
	if err != nil {
		s.logger.Errorf("render mosaic: %v", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		s.logger.Errorf("encode mosaic: %v", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"tiles":  s.manifest.TotalTiles,
	})
}

func intParam(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
