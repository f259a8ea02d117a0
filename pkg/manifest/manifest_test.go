package manifest

import (
	"path/filepath"
	"strings"
	"testing"
)

func sampleTiles() []TileSample {
	return []TileSample{
		{
			SeriesUID: "1.2.3", StudyUID: "1.1", SOPUID: "1.2.3.4",
			Modality: "CT", BodyPart: "CHEST", Collection: "nlst",
			InstanceCount: 120, FrameNumber: 1,
			TileURL:   "https://dw.example/.../rendered",
			ViewerURL: "https://viewer.example/1.1?seriesInstanceUID=1.2.3",
			Segmentation: &SegmentationData{
				SeriesUID: "9.9", SOPUID: "9.9.1", Algorithm: "TotalSegmentator",
				FrameMap: map[int]int{1: 17, 2: 42},
				Segments: []SegmentInfo{
					{Number: 1, Label: "liver", RGB: [3]uint8{221, 130, 101}},
					{Number: 2, Label: "spleen", RGB: [3]uint8{144, 238, 144}},
				},
				ViewerURL: "https://viewer.example/1.1?seriesInstanceUID=9.9",
			},
		},
		{
			SeriesUID: "2.3.4", StudyUID: "2.2", SOPUID: "2.3.4.5",
			Modality: "MR", BodyPart: "BRAIN", Collection: "upenn",
			InstanceCount: 40, FrameNumber: 1,
		},
	}
}

func TestNew_DerivedFields(t *testing.T) {
	m := New("v20", "https://dw.example", sampleTiles())
	if m.TotalTiles != 2 {
		t.Errorf("TotalTiles = %d, want 2", m.TotalTiles)
	}
	if !m.HasSegmentations {
		t.Error("HasSegmentations = false, want true")
	}
	if m.Generated.IsZero() {
		t.Error("Generated not set")
	}

	plain := New("v20", "https://dw.example", sampleTiles()[1:])
	if plain.HasSegmentations {
		t.Error("HasSegmentations = true for manifest without segmentations")
	}
}

func TestManifest_SaveLoadRoundTrip(t *testing.T) {
	m := New("v20", "https://dw.example", sampleTiles())
	path := filepath.Join(t.TempDir(), "data", "manifest.json")

	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got.CatalogVersion != "v20" || got.TotalTiles != 2 {
		t.Errorf("loaded manifest header = %+v", got)
	}
	seg := got.Tiles[0].Segmentation
	if seg == nil {
		t.Fatal("segmentation lost in round trip")
	}
	if seg.FrameMap[2] != 42 {
		t.Errorf("FrameMap[2] = %d, want 42", seg.FrameMap[2])
	}
	if got.Tiles[1].Segmentation != nil {
		t.Error("tile without segmentation gained one")
	}
}

func TestManifest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Manifest)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(m *Manifest) {},
		},
		{
			name:    "count mismatch",
			mutate:  func(m *Manifest) { m.TotalTiles = 7 },
			wantErr: "total_tiles",
		},
		{
			name: "frame map value zero",
			mutate: func(m *Manifest) {
				m.Tiles[0].Segmentation.FrameMap[1] = 0
			},
			wantErr: "1-based",
		},
		{
			name: "frame map key without segment",
			mutate: func(m *Manifest) {
				m.Tiles[0].Segmentation.FrameMap[9] = 3
			},
			wantErr: "no segment record",
		},
		{
			name: "duplicate segment number",
			mutate: func(m *Manifest) {
				s := m.Tiles[0].Segmentation
				s.Segments = append(s.Segments, SegmentInfo{Number: 1, Label: "dup"})
			},
			wantErr: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New("v20", "https://dw.example", sampleTiles())
			tt.mutate(m)
			err := m.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestManifest_RefreshViewerURLs(t *testing.T) {
	m := New("v20", "https://dw.example", sampleTiles())
	origTileURL := m.Tiles[0].TileURL
	origFrameMap := m.Tiles[0].Segmentation.FrameMap[1]

	m.RefreshViewerURLs(func(study, series string) string {
		return "https://new.example/" + study + "/" + series
	})

	if m.Tiles[0].ViewerURL != "https://new.example/1.1/1.2.3" {
		t.Errorf("tile viewer URL = %s", m.Tiles[0].ViewerURL)
	}
	if m.Tiles[0].Segmentation.ViewerURL != "https://new.example/1.1/9.9" {
		t.Errorf("segmentation viewer URL = %s", m.Tiles[0].Segmentation.ViewerURL)
	}

	// Sampled content must be untouched.
	if m.Tiles[0].TileURL != origTileURL {
		t.Error("tile URL changed during viewer refresh")
	}
	if m.Tiles[0].Segmentation.FrameMap[1] != origFrameMap {
		t.Error("frame map changed during viewer refresh")
	}
}
