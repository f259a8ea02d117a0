package seg

import "math"

// Segmentation objects store display colors as CIELab triplets scaled into
// the 16-bit PCS range. Conversion to sRGB goes Lab → XYZ (D65 white point)
// → linear sRGB → gamma-encoded sRGB.

// D65 reference white.
const (
	refX = 0.95047
	refY = 1.00000
	refZ = 1.08883
)

// PCSToRGB converts a 16-bit PCS-scaled CIELab triplet to 8-bit sRGB.
// L is scaled from [0,65535] to [0,100]; a and b to [-128,127].
func PCSToRGB(l, a, b uint16) [3]uint8 {
	L := float64(l) / 65535.0 * 100.0
	A := float64(a)/65535.0*255.0 - 128.0
	B := float64(b)/65535.0*255.0 - 128.0
	return LabToRGB(L, A, B)
}

// RGBToPCS is the encoding counterpart of [PCSToRGB], used to build
// snapshot fixtures and verify round trips.
func RGBToPCS(rgb [3]uint8) (l, a, b uint16) {
	L, A, B := RGBToLab(rgb)
	clamp16 := func(v float64) uint16 {
		return uint16(math.Round(math.Max(0, math.Min(65535, v))))
	}
	l = clamp16(L / 100.0 * 65535.0)
	a = clamp16((A + 128.0) / 255.0 * 65535.0)
	b = clamp16((B + 128.0) / 255.0 * 65535.0)
	return
}

// LabToRGB converts standard-range CIELab (L in [0,100], a,b in [-128,127])
// to 8-bit sRGB with clamping.
func LabToRGB(L, a, b float64) [3]uint8 {
	// Lab -> XYZ
	fy := (L + 16.0) / 116.0
	fx := fy + a/500.0
	fz := fy - b/200.0
	x := refX * labFInv(fx)
	y := refY * labFInv(fy)
	z := refZ * labFInv(fz)

	// XYZ -> linear sRGB
	r := 3.2406*x - 1.5372*y - 0.4986*z
	g := -0.9689*x + 1.8758*y + 0.0415*z
	bl := 0.0557*x - 0.2040*y + 1.0570*z

	return [3]uint8{srgbEncode(r), srgbEncode(g), srgbEncode(bl)}
}

// RGBToLab converts 8-bit sRGB to standard-range CIELab.
func RGBToLab(rgb [3]uint8) (L, a, b float64) {
	r := srgbDecode(float64(rgb[0]) / 255.0)
	g := srgbDecode(float64(rgb[1]) / 255.0)
	bl := srgbDecode(float64(rgb[2]) / 255.0)

	x := (0.4124*r + 0.3576*g + 0.1805*bl) / refX
	y := (0.2126*r + 0.7152*g + 0.0722*bl) / refY
	z := (0.0193*r + 0.1192*g + 0.9505*bl) / refZ

	fx, fy, fz := labF(x), labF(y), labF(z)
	L = 116.0*fy - 16.0
	a = 500.0 * (fx - fy)
	b = 200.0 * (fy - fz)
	return
}

const (
	labDelta  = 6.0 / 29.0
	labDelta3 = labDelta * labDelta * labDelta
)

func labF(t float64) float64 {
	if t > labDelta3 {
		return math.Cbrt(t)
	}
	return t/(3.0*labDelta*labDelta) + 4.0/29.0
}

func labFInv(t float64) float64 {
	if t > labDelta {
		return t * t * t
	}
	return 3.0 * labDelta * labDelta * (t - 4.0/29.0)
}

// srgbEncode applies the piecewise sRGB transfer function and scales the
// linear channel value to a clamped 8-bit integer.
func srgbEncode(c float64) uint8 {
	var v float64
	if c <= 0.0031308 {
		v = 12.92 * c
	} else {
		v = 1.055*math.Pow(c, 1.0/2.4) - 0.055
	}
	return uint8(math.Round(math.Max(0, math.Min(255, v*255.0))))
}

func srgbDecode(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}
