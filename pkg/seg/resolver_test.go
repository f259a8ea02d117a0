package seg

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"idcmosaic/pkg/catalog"
	"idcmosaic/pkg/dicomweb"
)

// segFrame renders one per-frame functional group referencing sourceUID and
// structure segNum.
func segFrame(sourceUID string, segNum int) map[string]any {
	return map[string]any{
		"00089124": map[string]any{"vr": "SQ", "Value": []any{
			map[string]any{
				"00082112": map[string]any{"vr": "SQ", "Value": []any{
					map[string]any{
						"00081155": map[string]any{"vr": "UI", "Value": []any{sourceUID}},
					},
				}},
			},
		}},
		"0062000A": map[string]any{"vr": "SQ", "Value": []any{
			map[string]any{
				"0062000B": map[string]any{"vr": "US", "Value": []any{segNum}},
			},
		}},
	}
}

func segDictEntry(num int, label string, lab [3]int) map[string]any {
	return map[string]any{
		"00620004": map[string]any{"vr": "US", "Value": []any{num}},
		"00620005": map[string]any{"vr": "LO", "Value": []any{label}},
		"0062000D": map[string]any{"vr": "US", "Value": []any{lab[0], lab[1], lab[2]}},
	}
}

func segMetadata(frames []map[string]any, dict []map[string]any) []byte {
	obj := map[string]any{
		"00080018": map[string]any{"vr": "UI", "Value": []any{"seg.sop.1"}},
		"52009230": map[string]any{"vr": "SQ", "Value": frames},
		"00620002": map[string]any{"vr": "SQ", "Value": dict},
	}
	data, _ := json.Marshal([]any{obj})
	return data
}

func newTestResolver(t *testing.T, metadata []byte) *Resolver {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(metadata)
	}))
	t.Cleanup(srv.Close)

	client := dicomweb.New(dicomweb.Config{BaseURL: srv.URL, RetryDelay: time.Millisecond})
	cat := catalog.NewSnapshot("v20", nil, map[string]catalog.SegmentationRef{
		"ct.series.1": {StudyUID: "study.1", SeriesUID: "seg.series.1", Algorithm: "TotalSegmentator"},
	})
	return NewResolver(cat, client)
}

func TestResolve_TwoStructures(t *testing.T) {
	lLiver, aLiver, bLiver := RGBToPCS([3]uint8{221, 130, 101})
	lSpleen, aSpleen, bSpleen := RGBToPCS([3]uint8{144, 238, 144})

	frames := []map[string]any{
		segFrame("ct.sop.other", 1), // frame 1: different slice
		segFrame("ct.sop.42", 1),    // frame 2: liver on selected slice
		segFrame("ct.sop.42", 2),    // frame 3: spleen on selected slice
	}
	dict := []map[string]any{
		segDictEntry(1, "liver", [3]int{int(lLiver), int(aLiver), int(bLiver)}),
		segDictEntry(2, "spleen", [3]int{int(lSpleen), int(aSpleen), int(bSpleen)}),
	}

	r := newTestResolver(t, segMetadata(frames, dict))
	data, err := r.Resolve(context.Background(), "ct.series.1", "ct.sop.42")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if data.SeriesUID != "seg.series.1" || data.SOPUID != "seg.sop.1" {
		t.Errorf("identity = %s/%s", data.SeriesUID, data.SOPUID)
	}
	if data.Algorithm != "TotalSegmentator" {
		t.Errorf("Algorithm = %s", data.Algorithm)
	}

	if len(data.FrameMap) != 2 {
		t.Fatalf("FrameMap has %d entries, want 2", len(data.FrameMap))
	}
	if data.FrameMap[1] != 2 || data.FrameMap[2] != 3 {
		t.Errorf("FrameMap = %v, want {1:2 2:3}", data.FrameMap)
	}

	if len(data.Segments) != 2 {
		t.Fatalf("Segments has %d entries, want 2", len(data.Segments))
	}
	for i, want := range []struct {
		num   int
		label string
	}{{1, "liver"}, {2, "spleen"}} {
		if data.Segments[i].Number != want.num || data.Segments[i].Label != want.label {
			t.Errorf("Segments[%d] = %+v, want %d/%s", i, data.Segments[i], want.num, want.label)
		}
		if _, ok := data.FrameMap[data.Segments[i].Number]; !ok {
			t.Errorf("segment %d has no frame map entry", data.Segments[i].Number)
		}
	}

	// Colors survive the PCS round trip within 1 unit per channel.
	wantLiver := [3]uint8{221, 130, 101}
	for i := range wantLiver {
		diff := int(data.Segments[0].RGB[i]) - int(wantLiver[i])
		if diff < -1 || diff > 1 {
			t.Errorf("liver RGB = %v, want ~%v", data.Segments[0].RGB, wantLiver)
		}
	}
}

func TestResolve_FirstSeenWins(t *testing.T) {
	frames := []map[string]any{
		segFrame("ct.sop.42", 1), // frame 1
		segFrame("ct.sop.42", 1), // duplicate frame for same structure: ignored
	}
	dict := []map[string]any{segDictEntry(1, "liver", [3]int{30000, 35000, 34000})}

	r := newTestResolver(t, segMetadata(frames, dict))
	data, err := r.Resolve(context.Background(), "ct.series.1", "ct.sop.42")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if data.FrameMap[1] != 1 {
		t.Errorf("FrameMap[1] = %d, want 1 (first seen)", data.FrameMap[1])
	}
}

func TestResolve_NoMatchingFrames(t *testing.T) {
	frames := []map[string]any{segFrame("ct.sop.other", 1)}
	dict := []map[string]any{segDictEntry(1, "liver", [3]int{30000, 35000, 34000})}

	r := newTestResolver(t, segMetadata(frames, dict))
	_, err := r.Resolve(context.Background(), "ct.series.1", "ct.sop.42")
	if !errors.Is(err, ErrNoMatchingFrames) {
		t.Errorf("Resolve() error = %v, want ErrNoMatchingFrames", err)
	}
}

func TestResolve_NoLinkedSeries(t *testing.T) {
	r := newTestResolver(t, segMetadata(nil, nil))
	_, err := r.Resolve(context.Background(), "unlinked.series", "ct.sop.42")
	if !errors.Is(err, catalog.ErrNoSegmentation) {
		t.Errorf("Resolve() error = %v, want ErrNoSegmentation", err)
	}
}

func TestResolve_MalformedMetadata(t *testing.T) {
	r := newTestResolver(t, []byte("not json"))
	if _, err := r.Resolve(context.Background(), "ct.series.1", "ct.sop.42"); err == nil {
		t.Error("Resolve() with malformed metadata succeeded, want error")
	}
}

func TestResolve_DownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	client := dicomweb.New(dicomweb.Config{BaseURL: srv.URL, RetryDelay: time.Millisecond})
	cat := catalog.NewSnapshot("v20", nil, map[string]catalog.SegmentationRef{
		"ct.series.1": {StudyUID: "study.1", SeriesUID: "seg.series.1", Algorithm: "TotalSegmentator"},
	})
	r := NewResolver(cat, client)

	if _, err := r.Resolve(context.Background(), "ct.series.1", "ct.sop.42"); err == nil {
		t.Error("Resolve() with failing download succeeded, want error")
	}
}
