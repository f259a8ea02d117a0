package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"idcmosaic/pkg/catalog"
	"idcmosaic/pkg/dicomweb"
	"idcmosaic/pkg/manifest"
	"idcmosaic/pkg/observability"
	"idcmosaic/pkg/seg"
)

// errRejected marks a candidate dropped by the content quality filter or by
// pyramidal layer exhaustion. It is never surfaced past the sampling loop.
var errRejected = errors.New("candidate rejected")

// Sampler draws stratified tile samples from the catalog. All randomness
// flows through the explicit rng, so a fixed seed against an unchanged
// catalog snapshot reproduces the exact same ordered tile list.
type Sampler struct {
	catalog  catalog.Catalog
	client   *dicomweb.Client
	resolver *seg.Resolver // nil disables segmentation attachment
	cfg      Config
	logger   *log.Logger
	rng      *rand.Rand
}

// New creates a Sampler. Pass a nil resolver to skip segmentation lookup
// regardless of cfg.WithSegmentations.
func New(cat catalog.Catalog, client *dicomweb.Client, resolver *seg.Resolver, cfg Config, logger *log.Logger, rng *rand.Rand) *Sampler {
	if logger == nil {
		logger = log.Default()
	}
	return &Sampler{
		catalog:  cat,
		client:   client,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		rng:      rng,
	}
}

// Sample returns up to n tiles, stratified by modality. It may return fewer
// than n when candidate queues run dry; that is a logged shortfall, not an
// error. Only catalog query failures (after transport retries) abort a run.
func (s *Sampler) Sample(ctx context.Context, n int) ([]manifest.TileSample, error) {
	start := time.Now()
	observability.Sampling().OnSampleStart(ctx, n)

	rows, err := s.eligibleRows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		s.logger.Warn("no eligible series in catalog")
		return nil, nil
	}

	strata := BuildStrata(rows)
	quotas := Quotas(strata, n)

	byModality := make(map[string][]catalog.SeriesRow)
	for _, row := range rows {
		byModality[row.Modality] = append(byModality[row.Modality], row)
	}

	modalities := make([]string, 0, len(byModality))
	for m := range byModality {
		modalities = append(modalities, m)
	}
	slices.Sort(modalities)

	var tiles []manifest.TileSample
	for _, modality := range modalities {
		quota := quotas[modality]
		if quota == 0 {
			continue
		}
		got := s.sampleModality(ctx, modality, byModality[modality], quota, &tiles)
		if got < quota {
			s.logger.Warnf("modality %s: filled %d of %d slots (candidates exhausted)", modality, got, quota)
		}
	}

	// One global shuffle so modalities interleave in the persisted order.
	s.rng.Shuffle(len(tiles), func(i, j int) {
		tiles[i], tiles[j] = tiles[j], tiles[i]
	})
	observability.Sampling().OnSampleComplete(ctx, len(tiles), n, time.Since(start))
	return tiles, nil
}

// eligibleRows runs the three class-specific catalog queries: radiology
// (higher minimum instance count), other planar modalities, and pyramidal
// modalities (pixel-spacing window plus non-diagnostic image-type
// exclusion). Scout/localizer series are excluded everywhere.
func (s *Sampler) eligibleRows(ctx context.Context) ([]catalog.SeriesRow, error) {
	var radiology, planar, pyramidal []string
	for _, m := range s.cfg.Modalities {
		switch {
		case s.cfg.isPyramidal(m):
			pyramidal = append(pyramidal, m)
		case s.cfg.isRadiology(m):
			radiology = append(radiology, m)
		default:
			planar = append(planar, m)
		}
	}

	var rows []catalog.SeriesRow
	for _, q := range []catalog.Query{
		{
			Modalities:          radiology,
			MinInstances:        s.cfg.RadiologyMinInstances,
			ExcludeDescriptions: s.cfg.ScoutPatterns,
		},
		{
			Modalities:          planar,
			MinInstances:        s.cfg.MinInstances,
			ExcludeDescriptions: s.cfg.ScoutPatterns,
		},
		{
			Modalities:        pyramidal,
			MinInstances:      s.cfg.MinInstances,
			MinPixelSpacing:   s.cfg.MinPixelSpacing,
			MaxPixelSpacing:   s.cfg.MaxPixelSpacing,
			ExcludeImageTypes: s.cfg.ExcludeImageTypes,
		},
	} {
		if len(q.Modalities) == 0 {
			continue
		}
		batch, err := s.catalog.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("catalog query (%s): %w", strings.Join(q.Modalities, ","), err)
		}
		rows = append(rows, batch...)
	}
	return rows, nil
}

// sampleModality works through one modality's shuffled candidate queue
// until its quota is filled or the oversampled pull is exhausted. Returns
// the number of tiles produced.
func (s *Sampler) sampleModality(ctx context.Context, modality string, candidates []catalog.SeriesRow, quota int, tiles *[]manifest.TileSample) int {
	queue := slices.Clone(candidates)
	s.rng.Shuffle(len(queue), func(i, j int) {
		queue[i], queue[j] = queue[j], queue[i]
	})

	pull := int(math.Ceil(float64(quota) * s.cfg.oversample(modality)))
	if pull > len(queue) {
		pull = len(queue)
	}

	got := 0
	for _, row := range queue[:pull] {
		if got == quota {
			break
		}
		var (
			tile *manifest.TileSample
			err  error
		)
		if s.cfg.isPyramidal(modality) {
			tile, err = s.buildPyramidalTile(ctx, row)
		} else {
			tile, err = s.buildVolumetricTile(ctx, row)
		}
		if err != nil {
			s.logger.Debugf("skip %s series %s: %v", modality, row.SeriesUID, err)
			observability.Sampling().OnTileRejected(ctx, modality)
			continue
		}
		*tiles = append(*tiles, *tile)
		observability.Sampling().OnTileAccepted(ctx, modality)
		got++
	}
	return got
}

// buildVolumetricTile selects a slice from the middle band of a series,
// resolves it to a concrete instance, and runs the content filter.
func (s *Sampler) buildVolumetricTile(ctx context.Context, row catalog.SeriesRow) (*manifest.TileSample, error) {
	idx := s.bandIndex(row.InstanceCount)
	inst, err := s.client.ResolveInstance(ctx, row.StudyUID, row.SeriesUID, idx)
	if err != nil {
		return nil, fmt.Errorf("resolve instance: %w", err)
	}

	const frame = 1
	if s.cfg.ContentFilter {
		preview, err := s.client.RenderedFrame(ctx, row.StudyUID, row.SeriesUID, inst.SOPInstanceUID, frame)
		if err != nil || !CheckPreview(preview, s.cfg, false) {
			return nil, errRejected
		}
	}

	tile := s.newTile(row, inst.SOPInstanceUID, frame)
	s.attachSegmentation(ctx, row, tile)
	return tile, nil
}

// buildPyramidalTile attempts regions from the central band of the finest
// resolution layer, escalating one layer per LayerRejectLimit consecutive
// rejections, bounded by MaxLayerAttempts layers.
func (s *Sampler) buildPyramidalTile(ctx context.Context, row catalog.SeriesRow) (*manifest.TileSample, error) {
	instances, err := s.client.Instances(ctx, row.StudyUID, row.SeriesUID, 0)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	if len(instances) == 0 {
		return nil, errors.New("series has no instances")
	}

	// Finest layer first: more tiles means higher resolution.
	slices.SortStableFunc(instances, func(a, b dicomweb.Instance) int {
		return b.NumberOfFrames - a.NumberOfFrames
	})

	layers := min(len(instances), s.cfg.MaxLayerAttempts)
	for _, inst := range instances[:layers] {
		for rejects := 0; rejects < s.cfg.LayerRejectLimit; rejects++ {
			frame := s.bandIndex(inst.NumberOfFrames) + 1
			if !s.cfg.ContentFilter {
				return s.newTile(row, inst.SOPInstanceUID, frame), nil
			}
			preview, err := s.client.RenderedFrame(ctx, row.StudyUID, row.SeriesUID, inst.SOPInstanceUID, frame)
			if err == nil && CheckPreview(preview, s.cfg, true) {
				return s.newTile(row, inst.SOPInstanceUID, frame), nil
			}
		}
	}
	return nil, errRejected
}

// bandIndex draws a zero-based index uniformly from the central MidBand
// fraction of [0, count). Uniform within the band rather than the exact
// center: diversity without edge slices.
func (s *Sampler) bandIndex(count int) int {
	if count <= 1 {
		return 0
	}
	lo := int(float64(count) * (1.0 - s.cfg.MidBand) / 2.0)
	hi := int(float64(count) * (1.0 + s.cfg.MidBand) / 2.0)
	if hi > count {
		hi = count
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo + s.rng.IntN(hi-lo)
}

func (s *Sampler) newTile(row catalog.SeriesRow, sopUID string, frame int) *manifest.TileSample {
	bodyPart := row.BodyPart
	if bodyPart == "" {
		bodyPart = "UNKNOWN"
	}
	return &manifest.TileSample{
		SeriesUID:     row.SeriesUID,
		StudyUID:      row.StudyUID,
		SOPUID:        sopUID,
		Modality:      row.Modality,
		BodyPart:      bodyPart,
		Collection:    row.Collection,
		InstanceCount: row.InstanceCount,
		FrameNumber:   frame,
		TileURL:       s.client.TileURL(row.StudyUID, row.SeriesUID, sopUID, frame),
		ViewerURL:     s.client.ViewerURL(row.StudyUID, row.SeriesUID),
	}
}

// attachSegmentation adds overlay data to CT tiles when enabled. Any
// resolution failure leaves the tile without an overlay.
func (s *Sampler) attachSegmentation(ctx context.Context, row catalog.SeriesRow, tile *manifest.TileSample) {
	if !s.cfg.WithSegmentations || s.resolver == nil || row.Modality != "CT" {
		return
	}
	data, err := s.resolver.Resolve(ctx, row.SeriesUID, tile.SOPUID)
	if err != nil {
		if !errors.Is(err, catalog.ErrNoSegmentation) {
			s.logger.Debugf("no segmentation for series %s: %v", row.SeriesUID, err)
		}
		return
	}
	tile.Segmentation = data
}
