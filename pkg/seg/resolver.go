// Package seg resolves AI-segmentation overlays for sampled CT tiles.
//
// Given a CT series and the concrete instance selected for a tile, the
// resolver finds the linked segmentation series through the catalog join,
// downloads the segmentation object's metadata once, and extracts exactly
// two things from it: the structure→frame map for the selected slice and
// the structure dictionary (labels and display colors).
//
// Every failure mode resolves to "no segmentation for this tile"; nothing
// here may abort a sampling run.
package seg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"idcmosaic/pkg/catalog"
	"idcmosaic/pkg/dicomweb"
	"idcmosaic/pkg/manifest"
)

// ErrNoMatchingFrames is returned when the segmentation object holds no
// frame referencing the selected CT instance.
var ErrNoMatchingFrames = errors.New("no segmentation frames reference the selected instance")

// Resolver attaches segmentation data to sampled CT tiles.
type Resolver struct {
	catalog catalog.Catalog
	client  *dicomweb.Client
}

// NewResolver creates a Resolver over the given catalog and transport.
func NewResolver(cat catalog.Catalog, client *dicomweb.Client) *Resolver {
	return &Resolver{catalog: cat, client: client}
}

// Resolve looks up the segmentation series for a CT series and builds the
// per-tile segmentation block for the selected instance.
//
// Callers must treat any error as "no overlay available" for the tile;
// catalog.ErrNoSegmentation simply means no segmentation series exists.
func (r *Resolver) Resolve(ctx context.Context, ctSeriesUID, ctInstanceUID string) (*manifest.SegmentationData, error) {
	ref, err := r.catalog.SegmentationFor(ctx, ctSeriesUID)
	if err != nil {
		return nil, err
	}

	body, err := r.client.SeriesMetadata(ctx, ref.StudyUID, ref.SeriesUID)
	if err != nil {
		return nil, fmt.Errorf("download segmentation metadata: %w", err)
	}

	var records []dataset
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("parse segmentation metadata: %w", err)
	}

	obj, ok := findSegmentationObject(records)
	if !ok {
		return nil, errors.New("metadata holds no multi-frame segmentation object")
	}

	frameMap := buildFrameMap(obj, ctInstanceUID)
	if len(frameMap) == 0 {
		return nil, ErrNoMatchingFrames
	}

	segments, err := extractSegments(obj, frameMap)
	if err != nil {
		return nil, err
	}

	sopUID, _ := obj.str(tagSOPInstanceUID)
	return &manifest.SegmentationData{
		SeriesUID: ref.SeriesUID,
		SOPUID:    sopUID,
		Algorithm: ref.Algorithm,
		FrameMap:  frameMap,
		Segments:  segments,
		ViewerURL: r.client.ViewerURL(ref.StudyUID, ref.SeriesUID),
	}, nil
}

// findSegmentationObject picks the first instance record carrying per-frame
// functional groups. Production segmentation series hold a single
// multi-frame object.
func findSegmentationObject(records []dataset) (dataset, bool) {
	for _, rec := range records {
		if _, ok := rec[tagPerFrameFunctionalGroups]; ok {
			return rec, true
		}
	}
	return nil, false
}

// buildFrameMap walks the per-frame functional groups and records, for each
// structure, the first frame whose source image is the selected CT instance.
// Frame indices are 1-based. First-seen wins: the segmentations targeted
// here encode exactly one frame per structure per slice, so later matches
// for an already-mapped structure are ignored.
func buildFrameMap(obj dataset, ctInstanceUID string) map[int]int {
	frameMap := make(map[int]int)
	for i, frame := range obj.seq(tagPerFrameFunctionalGroups) {
		sourceUID, ok := frameSourceUID(frame)
		if !ok || sourceUID != ctInstanceUID {
			continue
		}
		segNum, ok := frameSegmentNumber(frame)
		if !ok || segNum < 1 {
			continue
		}
		if _, seen := frameMap[segNum]; seen {
			continue
		}
		frameMap[segNum] = i + 1
	}
	return frameMap
}

func frameSourceUID(frame dataset) (string, bool) {
	derivation, ok := frame.firstSeq(tagDerivationImageSequence)
	if !ok {
		return "", false
	}
	source, ok := derivation.firstSeq(tagSourceImageSequence)
	if !ok {
		return "", false
	}
	return source.str(tagReferencedSOPInstanceUID)
}

func frameSegmentNumber(frame dataset) (int, bool) {
	ident, ok := frame.firstSeq(tagSegmentIdentification)
	if !ok {
		return 0, false
	}
	return ident.intVal(tagReferencedSegmentNumber)
}

// extractSegments builds SegmentInfo records for the structures present in
// frameMap, ordered by structure number.
func extractSegments(obj dataset, frameMap map[int]int) ([]manifest.SegmentInfo, error) {
	byNumber := make(map[int]manifest.SegmentInfo)
	for _, item := range obj.seq(tagSegmentSequence) {
		num, ok := item.intVal(tagSegmentNumber)
		if !ok {
			continue
		}
		label, _ := item.str(tagSegmentLabel)
		info := manifest.SegmentInfo{Number: num, Label: label}
		if lab := item.ints(tagRecommendedCIELabValue); len(lab) == 3 {
			info.RGB = PCSToRGB(uint16(lab[0]), uint16(lab[1]), uint16(lab[2]))
		}
		byNumber[num] = info
	}

	numbers := make([]int, 0, len(frameMap))
	for num := range frameMap {
		numbers = append(numbers, num)
	}
	slices.Sort(numbers)

	segments := make([]manifest.SegmentInfo, 0, len(numbers))
	for _, num := range numbers {
		info, ok := byNumber[num]
		if !ok {
			return nil, fmt.Errorf("frame map references structure %d missing from segment sequence", num)
		}
		segments = append(segments, info)
	}
	return segments, nil
}
