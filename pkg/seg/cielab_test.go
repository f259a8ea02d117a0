package seg

import (
	"math"
	"testing"
)

func TestPCSToRGB_Black(t *testing.T) {
	// CIELab(0,0,0) in PCS scaling: L=0, a and b at the midpoint for 0.
	l, a, b := RGBToPCS([3]uint8{0, 0, 0})
	rgb := PCSToRGB(l, a, b)
	for i, c := range rgb {
		if c > 1 {
			t.Errorf("channel %d = %d, want <= 1", i, c)
		}
	}
}

func TestLabToRGB_KnownValues(t *testing.T) {
	tests := []struct {
		name    string
		L, a, b float64
		want    [3]uint8
		tol     int
	}{
		{"black", 0, 0, 0, [3]uint8{0, 0, 0}, 1},
		{"white", 100, 0, 0, [3]uint8{255, 255, 255}, 1},
		{"mid gray", 53.39, 0, 0, [3]uint8{128, 128, 128}, 2},
		{"red-ish", 53.24, 80.09, 67.20, [3]uint8{255, 0, 0}, 2},
		{"green-ish", 87.73, -86.18, 83.18, [3]uint8{0, 255, 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LabToRGB(tt.L, tt.a, tt.b)
			for i := range got {
				diff := int(got[i]) - int(tt.want[i])
				if diff < 0 {
					diff = -diff
				}
				if diff > tt.tol {
					t.Errorf("channel %d = %d, want %d (±%d)", i, got[i], tt.want[i], tt.tol)
				}
			}
		})
	}
}

func TestLabRGB_RoundTripInteriorPoints(t *testing.T) {
	colors := [][3]uint8{
		{221, 130, 101}, // liver
		{144, 238, 144}, // spleen
		{64, 64, 200},
		{180, 90, 30},
		{120, 120, 120},
	}
	for _, rgb := range colors {
		L, a, b := RGBToLab(rgb)
		back := LabToRGB(L, a, b)
		for i := range rgb {
			diff := int(back[i]) - int(rgb[i])
			if diff < -1 || diff > 1 {
				t.Errorf("round trip of %v changed channel %d: got %v", rgb, i, back)
			}
		}
	}
}

func TestPCSRoundTrip(t *testing.T) {
	colors := [][3]uint8{
		{221, 130, 101},
		{144, 238, 144},
		{10, 200, 40},
	}
	for _, rgb := range colors {
		l, a, b := RGBToPCS(rgb)
		back := PCSToRGB(l, a, b)
		for i := range rgb {
			diff := int(back[i]) - int(rgb[i])
			if diff < -1 || diff > 1 {
				t.Errorf("PCS round trip of %v changed channel %d: got %v", rgb, i, back)
			}
		}
	}
}

func TestLabF_Continuity(t *testing.T) {
	// The piecewise Lab helper must be continuous at the junction point.
	lo := labF(labDelta3 - 1e-12)
	hi := labF(labDelta3 + 1e-12)
	if math.Abs(lo-hi) > 1e-6 {
		t.Errorf("labF discontinuous at delta^3: %v vs %v", lo, hi)
	}
}
