// Package catalog defines the imaging metadata catalog interface used by the
// sampler, along with two backends: a local JSON snapshot for offline and
// test runs, and a MongoDB collection for deployments that mirror the index
// into a database.
//
// The catalog answers row-returning queries over series metadata. It is
// deliberately narrow: the sampler only needs filtering by modality, minimum
// instance count, description-pattern exclusion, pixel-spacing range, and
// image-type exclusion, plus a join from a CT series to its AI-segmentation
// series.
package catalog

import (
	"context"
	"errors"
)

// ErrNoSegmentation is returned by SegmentationFor when no segmentation
// series is linked to the given source series. Callers treat this as
// "no overlay available", never as a failure.
var ErrNoSegmentation = errors.New("no segmentation series for source")

// SeriesRow is one series record from the catalog index.
type SeriesRow struct {
	Collection    string   `json:"collection_id" bson:"collection_id"`
	StudyUID      string   `json:"study_uid" bson:"study_uid"`
	SeriesUID     string   `json:"series_uid" bson:"series_uid"`
	Modality      string   `json:"modality" bson:"modality"`
	BodyPart      string   `json:"body_part" bson:"body_part"`
	Description   string   `json:"description" bson:"description"`
	InstanceCount int      `json:"instance_count" bson:"instance_count"`
	PixelSpacing  float64  `json:"pixel_spacing,omitempty" bson:"pixel_spacing,omitempty"` // mm, 0 when unknown
	ImageType     []string `json:"image_type,omitempty" bson:"image_type,omitempty"`
}

// Query selects series rows. Zero values mean "no constraint".
type Query struct {
	Modalities          []string // include only these modality codes
	MinInstances        int      // minimum instance count (inclusive)
	ExcludeDescriptions []string // regexp patterns; matching series are dropped
	MinPixelSpacing     float64  // mm, inclusive; 0 = unconstrained
	MaxPixelSpacing     float64  // mm, inclusive; 0 = unconstrained
	ExcludeImageTypes   []string // series containing any of these flags are dropped
	Limit               int      // 0 = unlimited
}

// SegmentationRef points at the AI-segmentation series derived from a
// source CT series.
type SegmentationRef struct {
	StudyUID  string `json:"study_uid" bson:"study_uid"`
	SeriesUID string `json:"series_uid" bson:"series_uid"`
	Algorithm string `json:"algorithm" bson:"algorithm"`
}

// Catalog is the queryable series index.
//
// Query must return rows in a deterministic order for an unchanged snapshot
// so that seeded sampling runs are reproducible.
type Catalog interface {
	// Version identifies the catalog snapshot (e.g. "v20").
	Version(ctx context.Context) (string, error)

	// Query returns series rows matching q.
	Query(ctx context.Context, q Query) ([]SeriesRow, error)

	// SegmentationFor returns the segmentation series linked to the given
	// source CT series, or ErrNoSegmentation.
	SegmentationFor(ctx context.Context, sourceSeriesUID string) (*SegmentationRef, error)
}
