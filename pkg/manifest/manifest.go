// Package manifest defines the persisted mosaic manifest document: the
// ordered set of sampled tiles, each optionally carrying segmentation
// overlay data. The manifest is the only artifact the sampling pipeline
// persists; the runtime renderer consumes it as-is.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SegmentInfo describes one labeled anatomical structure of a segmentation
// object. Number is 1-based and unique within the object.
type SegmentInfo struct {
	Number int      `json:"number"`
	Label  string   `json:"label"`
	RGB    [3]uint8 `json:"rgb"`
}

// SegmentationData links a tile to its AI-segmentation series and records
// which frame of the segmentation object holds each structure's mask for
// the selected slice. FrameMap values are 1-based frame indices.
type SegmentationData struct {
	SeriesUID string        `json:"series_uid"`
	SOPUID    string        `json:"sop_uid"`
	Algorithm string        `json:"algorithm"`
	FrameMap  map[int]int   `json:"frame_map"`
	Segments  []SegmentInfo `json:"segments"`
	ViewerURL string        `json:"viewer_url"`
}

// TileSample is one sampled tile. Immutable once written to a manifest,
// except for the derived viewer URLs which [Manifest.RefreshViewerURLs]
// may recompute.
type TileSample struct {
	SeriesUID     string            `json:"series_uid"`
	StudyUID      string            `json:"study_uid"`
	SOPUID        string            `json:"sop_uid"`
	Modality      string            `json:"modality"`
	BodyPart      string            `json:"body_part"`
	Collection    string            `json:"collection_id"`
	InstanceCount int               `json:"instance_count"`
	FrameNumber   int               `json:"frame_number"`
	TileURL       string            `json:"tile_url"`
	ViewerURL     string            `json:"viewer_url"`
	Segmentation  *SegmentationData `json:"segmentation,omitempty"`
}

// Manifest is the versioned document produced by a generation run.
// TotalTiles always equals len(Tiles) and may be less than the requested
// sample size when candidates ran out.
type Manifest struct {
	Generated        time.Time    `json:"generated"`
	CatalogVersion   string       `json:"catalog_version"`
	TotalTiles       int          `json:"total_tiles"`
	BaseFrameURL     string       `json:"base_frame_url"`
	HasSegmentations bool         `json:"has_segmentations"`
	Tiles            []TileSample `json:"tiles"`
}

// New assembles a manifest from sampled tiles, setting the derived fields
// (tile count, segmentation flag, generation timestamp).
func New(catalogVersion, baseFrameURL string, tiles []TileSample) *Manifest {
	m := &Manifest{
		Generated:      time.Now().UTC(),
		CatalogVersion: catalogVersion,
		TotalTiles:     len(tiles),
		BaseFrameURL:   baseFrameURL,
		Tiles:          tiles,
	}
	for _, t := range tiles {
		if t.Segmentation != nil {
			m.HasSegmentations = true
			break
		}
	}
	return m
}

// Load reads and validates a manifest from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the manifest to path as indented JSON, creating parent
// directories as needed.
func (m *Manifest) Save(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the manifest invariants: the tile count matches, frame-map
// values are 1-based, and every frame-map key has a matching segment record.
func (m *Manifest) Validate() error {
	if m.TotalTiles != len(m.Tiles) {
		return fmt.Errorf("total_tiles %d does not match %d tiles", m.TotalTiles, len(m.Tiles))
	}
	for i, t := range m.Tiles {
		if t.Segmentation == nil {
			continue
		}
		if err := t.Segmentation.validate(); err != nil {
			return fmt.Errorf("tile %d (%s): %w", i, t.SeriesUID, err)
		}
	}
	return nil
}

func (s *SegmentationData) validate() error {
	known := make(map[int]bool, len(s.Segments))
	for _, seg := range s.Segments {
		if seg.Number < 1 {
			return fmt.Errorf("segment number %d is not positive", seg.Number)
		}
		if known[seg.Number] {
			return fmt.Errorf("duplicate segment number %d", seg.Number)
		}
		known[seg.Number] = true
	}
	for num, frame := range s.FrameMap {
		if num < 1 {
			return fmt.Errorf("frame_map key %d is not positive", num)
		}
		if frame < 1 {
			return fmt.Errorf("frame_map[%d] = %d, frame indices are 1-based", num, frame)
		}
		if !known[num] {
			return fmt.Errorf("frame_map references structure %d with no segment record", num)
		}
	}
	return nil
}

// RefreshViewerURLs recomputes every derived viewer link using build,
// leaving all sampled content untouched. This is the fast path behind the
// update-viewer-urls command: no re-sampling, no re-resolution.
func (m *Manifest) RefreshViewerURLs(build func(studyUID, seriesUID string) string) {
	for i := range m.Tiles {
		t := &m.Tiles[i]
		t.ViewerURL = build(t.StudyUID, t.SeriesUID)
		if t.Segmentation != nil {
			t.Segmentation.ViewerURL = build(t.StudyUID, t.Segmentation.SeriesUID)
		}
	}
}
