package sampler

import (
	"math"
	"slices"
	"strings"

	"idcmosaic/pkg/catalog"
)

// Stratum aggregates the catalog population of one modality. Strata are
// ephemeral: recomputed per sampling run, used only to derive quotas.
type Stratum struct {
	Modality       string
	SeriesCount    int
	TotalInstances int
}

// BuildStrata groups eligible series rows by modality, sorted by modality
// code. Modalities with zero eligible series simply do not appear.
func BuildStrata(rows []catalog.SeriesRow) []Stratum {
	byModality := make(map[string]*Stratum)
	for _, row := range rows {
		s, ok := byModality[row.Modality]
		if !ok {
			s = &Stratum{Modality: row.Modality}
			byModality[row.Modality] = s
		}
		s.SeriesCount++
		s.TotalInstances += row.InstanceCount
	}

	strata := make([]Stratum, 0, len(byModality))
	for _, s := range byModality {
		strata = append(strata, *s)
	}
	slices.SortFunc(strata, func(a, b Stratum) int {
		return strings.Compare(a.Modality, b.Modality)
	})
	return strata
}

// Quotas computes the per-modality tile quota: round(share × n), with a
// floor of one slot per modality when n covers the modality count.
//
// Rounding remainders are not redistributed; the sampler accepts a total
// within ±len(strata) of n and an undersupply is never an error.
func Quotas(strata []Stratum, n int) map[string]int {
	total := 0
	for _, s := range strata {
		total += s.SeriesCount
	}
	quotas := make(map[string]int, len(strata))
	if total == 0 || n <= 0 {
		return quotas
	}

	floorOne := n >= len(strata)
	for _, s := range strata {
		q := int(math.Round(float64(s.SeriesCount) / float64(total) * float64(n)))
		if q < 1 && floorOne {
			q = 1
		}
		quotas[s.Modality] = q
	}
	return quotas
}
