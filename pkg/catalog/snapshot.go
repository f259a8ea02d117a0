package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

// Snapshot is a Catalog backed by a local JSON index file. It filters rows
// in memory and always returns them sorted by series UID, so a fixed seed
// reproduces a sampling run exactly.
type Snapshot struct {
	version       string
	series        []SeriesRow
	segmentations map[string]SegmentationRef // keyed by source series UID
}

// snapshotFile is the on-disk layout of a catalog snapshot.
type snapshotFile struct {
	Version       string      `json:"version"`
	Series        []SeriesRow `json:"series"`
	Segmentations []struct {
		SourceSeriesUID string `json:"source_series_uid"`
		StudyUID        string `json:"study_uid"`
		SeriesUID       string `json:"series_uid"`
		Algorithm       string `json:"algorithm"`
	} `json:"segmentations,omitempty"`
}

// LoadSnapshot reads a catalog snapshot from path.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog snapshot: %w", err)
	}
	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog snapshot %s: %w", path, err)
	}
	return NewSnapshot(f.Version, f.Series, segRefs(f)), nil
}

func segRefs(f snapshotFile) map[string]SegmentationRef {
	refs := make(map[string]SegmentationRef, len(f.Segmentations))
	for _, s := range f.Segmentations {
		refs[s.SourceSeriesUID] = SegmentationRef{
			StudyUID:  s.StudyUID,
			SeriesUID: s.SeriesUID,
			Algorithm: s.Algorithm,
		}
	}
	return refs
}

// NewSnapshot builds an in-memory snapshot. Rows are copied and sorted by
// series UID. Pass nil for segmentations when no join table is available.
func NewSnapshot(version string, series []SeriesRow, segmentations map[string]SegmentationRef) *Snapshot {
	rows := slices.Clone(series)
	slices.SortFunc(rows, func(a, b SeriesRow) int {
		return strings.Compare(a.SeriesUID, b.SeriesUID)
	})
	if segmentations == nil {
		segmentations = map[string]SegmentationRef{}
	}
	return &Snapshot{version: version, series: rows, segmentations: segmentations}
}

// Version returns the snapshot's catalog version string.
func (s *Snapshot) Version(ctx context.Context) (string, error) {
	return s.version, nil
}

// Query filters the snapshot rows in memory.
func (s *Snapshot) Query(ctx context.Context, q Query) ([]SeriesRow, error) {
	exclude, err := compilePatterns(q.ExcludeDescriptions)
	if err != nil {
		return nil, err
	}

	var out []SeriesRow
	for _, row := range s.series {
		if !matches(row, q, exclude) {
			continue
		}
		out = append(out, row)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// SegmentationFor looks up the segmentation join table.
func (s *Snapshot) SegmentationFor(ctx context.Context, sourceSeriesUID string) (*SegmentationRef, error) {
	ref, ok := s.segmentations[sourceSeriesUID]
	if !ok {
		return nil, ErrNoSegmentation
	}
	return &ref, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad exclusion pattern %q: %w", p, err)
		}
		res = append(res, re)
	}
	return res, nil
}

func matches(row SeriesRow, q Query, exclude []*regexp.Regexp) bool {
	if len(q.Modalities) > 0 && !slices.Contains(q.Modalities, row.Modality) {
		return false
	}
	if row.InstanceCount < q.MinInstances {
		return false
	}
	for _, re := range exclude {
		if re.MatchString(row.Description) {
			return false
		}
	}
	if q.MinPixelSpacing > 0 && row.PixelSpacing < q.MinPixelSpacing {
		return false
	}
	if q.MaxPixelSpacing > 0 && row.PixelSpacing > q.MaxPixelSpacing {
		return false
	}
	for _, flag := range q.ExcludeImageTypes {
		if slices.Contains(row.ImageType, flag) {
			return false
		}
	}
	return true
}

// Ensure Snapshot implements Catalog.
var _ Catalog = (*Snapshot)(nil)
