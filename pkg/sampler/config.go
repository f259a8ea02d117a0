// Package sampler draws a bounded, representative, quality-filtered tile
// sample from the imaging catalog.
//
// Sampling is stratified by modality: per-modality quotas are proportional
// to catalog population, candidates are pulled with class-specific
// oversampling to absorb downstream rejection, and every candidate passes
// through instance resolution and an optional content quality filter before
// it becomes a tile. Pyramidal (tiled microscopy) series additionally walk
// resolution layers, escalating to coarser layers when the content filter
// keeps rejecting regions of the current one.
package sampler

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds every sampling tunable. Construct it with [DefaultConfig]
// and override fields, or load overrides from a TOML file with [LoadConfig].
//
// Defaults:
//
//	Modalities             CT MR PT CR DX MG US SM XA NM
//	RadiologyModalities    CT MR PT
//	PyramidalModalities    SM
//	ScoutPatterns          (?i)scout, (?i)localizer, (?i)topogram
//	MinInstances           1
//	RadiologyMinInstances  20
//	RadiologyOversample    1.3
//	PyramidalOversample    3.0
//	MidBand                0.6
//	VarianceThreshold      0.015
//	BackgroundLuma         0.88
//	MinTissueFraction      0.15
//	LayerRejectLimit       3
//	MaxLayerAttempts       3
//	MinPixelSpacing        0.0001 mm
//	MaxPixelSpacing        0.002 mm
//	ExcludeImageTypes      THUMBNAIL LABEL OVERVIEW
type Config struct {
	// Modalities is the full set of included modality codes.
	Modalities []string `toml:"modalities"`

	// RadiologyModalities are volumetric radiology classes held to a higher
	// minimum instance count and a modest oversample.
	RadiologyModalities []string `toml:"radiology_modalities"`

	// PyramidalModalities are tiled multi-resolution classes (microscopy).
	PyramidalModalities []string `toml:"pyramidal_modalities"`

	// ScoutPatterns are regexps matched against series descriptions;
	// matching series (scouts, localizers) are excluded.
	ScoutPatterns []string `toml:"scout_patterns"`

	MinInstances          int     `toml:"min_instances"`
	RadiologyMinInstances int     `toml:"radiology_min_instances"`
	RadiologyOversample   float64 `toml:"radiology_oversample"`
	PyramidalOversample   float64 `toml:"pyramidal_oversample"`

	// MidBand is the central fraction of the instance (or frame) range that
	// slice selection draws from, avoiding edge slices prone to be empty.
	MidBand float64 `toml:"mid_band"`

	// VarianceThreshold is the minimum normalized intensity variance a
	// preview must show to be accepted.
	VarianceThreshold float64 `toml:"variance_threshold"`

	// BackgroundLuma and MinTissueFraction drive the extra pyramidal check:
	// pixels with luma >= BackgroundLuma count as background, and at least
	// MinTissueFraction of pixels must be non-background.
	BackgroundLuma    float64 `toml:"background_luma"`
	MinTissueFraction float64 `toml:"min_tissue_fraction"`

	// LayerRejectLimit consecutive rejections at a pyramidal layer trigger
	// escalation to the next coarser layer; at most MaxLayerAttempts layers
	// are tried before the candidate is abandoned.
	LayerRejectLimit int `toml:"layer_reject_limit"`
	MaxLayerAttempts int `toml:"max_layer_attempts"`

	// Pixel-spacing window for pyramidal base layers (mm).
	MinPixelSpacing float64 `toml:"min_pixel_spacing"`
	MaxPixelSpacing float64 `toml:"max_pixel_spacing"`

	// ExcludeImageTypes drops non-diagnostic pyramidal series.
	ExcludeImageTypes []string `toml:"exclude_image_types"`

	// WithSegmentations attaches AI-segmentation data to CT tiles.
	WithSegmentations bool `toml:"with_segmentations"`

	// ContentFilter enables the quality filter on candidate previews.
	ContentFilter bool `toml:"content_filter"`
}

// DefaultConfig returns the tuned defaults documented on [Config].
func DefaultConfig() Config {
	return Config{
		Modalities:            []string{"CT", "MR", "PT", "CR", "DX", "MG", "US", "SM", "XA", "NM"},
		RadiologyModalities:   []string{"CT", "MR", "PT"},
		PyramidalModalities:   []string{"SM"},
		ScoutPatterns:         []string{"(?i)scout", "(?i)localizer", "(?i)topogram"},
		MinInstances:          1,
		RadiologyMinInstances: 20,
		RadiologyOversample:   1.3,
		PyramidalOversample:   3.0,
		MidBand:               0.6,
		VarianceThreshold:     0.015,
		BackgroundLuma:        0.88,
		MinTissueFraction:     0.15,
		LayerRejectLimit:      3,
		MaxLayerAttempts:      3,
		MinPixelSpacing:       0.0001,
		MaxPixelSpacing:       0.002,
		ExcludeImageTypes:     []string{"THUMBNAIL", "LABEL", "OVERVIEW"},
		WithSegmentations:     true,
		ContentFilter:         true,
	}
}

// LoadConfig reads TOML overrides from path on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) isRadiology(modality string) bool {
	for _, m := range c.RadiologyModalities {
		if m == modality {
			return true
		}
	}
	return false
}

func (c Config) isPyramidal(modality string) bool {
	for _, m := range c.PyramidalModalities {
		if m == modality {
			return true
		}
	}
	return false
}

// oversample returns the candidate-pull multiplier for a modality.
// Pyramidal classes need the largest cushion because their tiles are
// rejected most often; radiology gets a modest one.
func (c Config) oversample(modality string) float64 {
	switch {
	case c.isPyramidal(modality):
		return c.PyramidalOversample
	case c.isRadiology(modality):
		return c.RadiologyOversample
	default:
		return 1.0
	}
}
