package mosaic

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"
	"sync"

	// Base frames arrive as JPEG or PNG at the server's discretion.
	_ "image/jpeg"
	_ "image/png"

	"github.com/charmbracelet/log"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"idcmosaic/pkg/dicomweb"
	"idcmosaic/pkg/manifest"
)

// Mode selects which tiles a render draws and whether overlays apply.
type Mode string

const (
	// ModeDiverse draws tiles in manifest order, overlays where available.
	ModeDiverse Mode = "diverse"
	// ModeBase draws base imagery only, ignoring segmentation data.
	ModeBase Mode = "base"
	// ModeSegmentation prefers segmentation-enabled tiles and draws overlays.
	ModeSegmentation Mode = "segmentation"
)

// ParseMode validates a mode string from a query parameter or flag.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDiverse, ModeBase, ModeSegmentation:
		return Mode(s), nil
	case "":
		return ModeDiverse, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want diverse, base, or segmentation)", s)
	}
}

const (
	// tileConcurrency bounds in-flight frame fetches per render.
	tileConcurrency = 5
	defaultOpacity  = 0.5
)

// background fills cells whose base image could not be fetched.
var background = color.RGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff}

// Session renders mosaics from one manifest. Each tile owns its own surface
// during a render; failures stay local to their tile and degrade to the base
// image or a blank cell, never failing the render.
type Session struct {
	manifest *manifest.Manifest
	client   *dicomweb.Client
	logger   *log.Logger
	rng      *rand.Rand
	opacity  float64
}

// NewSession creates a renderer over m, fetching imagery through client.
func NewSession(m *manifest.Manifest, client *dicomweb.Client, logger *log.Logger, rng *rand.Rand) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		manifest: m,
		client:   client,
		logger:   logger,
		rng:      rng,
		opacity:  defaultOpacity,
	}
}

// Render produces a w×h mosaic of up to n tiles. Tile selection follows
// mode, placement follows a fresh randomized treemap layout.
func (s *Session) Render(ctx context.Context, n int, mode Mode, w, h int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", w, h)
	}
	tiles := s.selectTiles(n, mode)
	if len(tiles) == 0 {
		return nil, fmt.Errorf("manifest has no tiles for mode %s", mode)
	}

	rects := Layout(len(tiles), float64(w), float64(h), s.rng)

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	surfaces := make([]*image.RGBA, len(tiles))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tileConcurrency)
	for i, tile := range tiles {
		g.Go(func() error {
			surface := s.renderTile(gctx, tile, mode)
			mu.Lock()
			surfaces[i] = surface
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range rects {
		dst := cellBounds(r)
		surface := surfaces[r.Index]
		if surface == nil {
			continue
		}
		draw.ApproxBiLinear.Scale(canvas, dst, surface, surface.Bounds(), draw.Src, nil)
	}
	return canvas, nil
}

// cellBounds converts a layout cell to pixel bounds. All four edges round
// the same way, so cells sharing an edge in the layout share it in pixels
// and the canvas partitions without gaps or overlaps.
func cellBounds(r Rect) image.Rectangle {
	return image.Rect(int(r.X+0.5), int(r.Y+0.5), int(r.X+r.W+0.5), int(r.Y+r.H+0.5))
}

// selectTiles picks up to n tiles for mode. ModeSegmentation front-loads
// segmentation-enabled tiles; the other modes keep manifest order.
func (s *Session) selectTiles(n int, mode Mode) []manifest.TileSample {
	all := s.manifest.Tiles
	if mode == ModeSegmentation {
		var withSeg, without []manifest.TileSample
		for _, t := range all {
			if t.Segmentation != nil {
				withSeg = append(withSeg, t)
			} else {
				without = append(without, t)
			}
		}
		all = append(withSeg, without...)
	}
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// renderTile builds one tile's surface: base image, plus overlays when the
// mode wants them. Never returns nil errors upward; any failure degrades to
// a plainer surface (or nil for a blank cell) and is logged at debug level.
func (s *Session) renderTile(ctx context.Context, tile manifest.TileSample, mode Mode) *image.RGBA {
	base, err := s.fetchBase(ctx, tile)
	if err != nil {
		s.logger.Debugf("tile %s: base image unavailable: %v", tile.SeriesUID, err)
		return nil
	}
	if mode == ModeBase || tile.Segmentation == nil {
		return base
	}
	if err := s.overlay(ctx, tile, base); err != nil {
		s.logger.Debugf("tile %s: overlay skipped: %v", tile.SeriesUID, err)
	}
	return base
}

func (s *Session) fetchBase(ctx context.Context, tile manifest.TileSample) (*image.RGBA, error) {
	data, err := s.client.RenderedFrame(ctx, tile.StudyUID, tile.SeriesUID, tile.SOPUID, tile.FrameNumber)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode base image: %w", err)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// overlay fetches the tile's mask frames in a bounded batch, decodes them,
// and composites colored structures onto base. A failure on any frame drops
// the whole overlay for this tile; the base image stays intact.
func (s *Session) overlay(ctx context.Context, tile manifest.TileSample, base *image.RGBA) error {
	segData := tile.Segmentation
	w, h := base.Bounds().Dx(), base.Bounds().Dy()

	masks := make(map[int][]byte, len(segData.FrameMap))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tileConcurrency)
	for structure, frame := range segData.FrameMap {
		g.Go(func() error {
			body, err := s.client.RawFrame(gctx, tile.StudyUID, segData.SeriesUID, segData.SOPUID, frame)
			if err != nil {
				return fmt.Errorf("frame %d: %w", frame, err)
			}
			packed, err := ExtractMultipartPayload(body)
			if err != nil {
				return fmt.Errorf("frame %d: %w", frame, err)
			}
			mask, err := UnpackBits(packed, w, h)
			if err != nil {
				return fmt.Errorf("frame %d: %w", frame, err)
			}
			mu.Lock()
			masks[structure] = mask
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	colors := make(map[int][3]uint8, len(segData.Segments))
	for _, seg := range segData.Segments {
		colors[seg.Number] = seg.RGB
	}
	Composite(base, masks, colors, s.opacity)
	return nil
}
