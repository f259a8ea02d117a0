package seg

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DICOM tags read by the resolver. Per-frame functional groups and the
// segment dictionary are the only two sequences this pipeline understands;
// general DICOM parsing is explicitly out of scope.
const (
	tagSOPInstanceUID           = "00080018"
	tagDerivationImageSequence  = "00089124"
	tagSourceImageSequence      = "00082112"
	tagReferencedSOPInstanceUID = "00081155"
	tagSegmentSequence          = "00620002"
	tagSegmentNumber            = "00620004"
	tagSegmentLabel             = "00620005"
	tagRecommendedCIELabValue   = "0062000D"
	tagSegmentIdentification    = "0062000A"
	tagReferencedSegmentNumber  = "0062000B"
	tagPerFrameFunctionalGroups = "52009230"
)

// dataset is one DICOM JSON record: hex tag → attribute.
type dataset map[string]element

// element is one DICOM JSON attribute. Numeric strings (IS values) may
// arrive as JSON numbers or strings depending on the server.
type element struct {
	VR    string            `json:"vr"`
	Value []json.RawMessage `json:"Value"`
}

func (d dataset) str(tag string) (string, bool) {
	e, ok := d[tag]
	if !ok || len(e.Value) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e.Value[0], &s); err != nil {
		return "", false
	}
	return s, true
}

func (d dataset) intVal(tag string) (int, bool) {
	ints := d.ints(tag)
	if len(ints) == 0 {
		return 0, false
	}
	return ints[0], true
}

func (d dataset) ints(tag string) []int {
	e, ok := d[tag]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(e.Value))
	for _, raw := range e.Value {
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				out = append(out, n)
			}
		}
	}
	return out
}

func (d dataset) seq(tag string) []dataset {
	e, ok := d[tag]
	if !ok {
		return nil
	}
	out := make([]dataset, 0, len(e.Value))
	for _, raw := range e.Value {
		var item dataset
		if err := json.Unmarshal(raw, &item); err == nil {
			out = append(out, item)
		}
	}
	return out
}

// firstSeq returns the first item of a sequence attribute, if any.
func (d dataset) firstSeq(tag string) (dataset, bool) {
	items := d.seq(tag)
	if len(items) == 0 {
		return nil, false
	}
	return items[0], true
}
