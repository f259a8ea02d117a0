package dicomweb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DICOM tags used by the instance listing. Only these two are read; full
// DICOM parsing is out of scope.
const (
	tagSOPInstanceUID = "00080018"
	tagNumberOfFrames = "00280008"
)

// Instance is one entry of a QIDO instance listing.
type Instance struct {
	SOPInstanceUID string
	NumberOfFrames int // 1 when the instance is single-frame or the tag is absent
}

// Instances lists the instances of a series in server order.
// A limit > 0 is forwarded as the QIDO limit parameter, so resolving the
// k-th instance only transfers k records.
func (c *Client) Instances(ctx context.Context, studyUID, seriesUID string, limit int) ([]Instance, error) {
	url := fmt.Sprintf("%s/studies/%s/series/%s/instances", c.baseURL, studyUID, seriesUID)
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}

	body, err := c.get(ctx, url, "application/dicom+json")
	if err != nil {
		return nil, err
	}

	var records []map[string]jsonElement
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("parse instance listing: %w", err)
	}

	instances := make([]Instance, 0, len(records))
	for _, rec := range records {
		uid, ok := rec[tagSOPInstanceUID].firstString()
		if !ok {
			continue
		}
		frames := 1
		if n, ok := rec[tagNumberOfFrames].firstInt(); ok && n > 0 {
			frames = n
		}
		instances = append(instances, Instance{SOPInstanceUID: uid, NumberOfFrames: frames})
	}
	return instances, nil
}

// ResolveInstance returns the instance at the given zero-based index within
// a series, using a bounded listing request.
func (c *Client) ResolveInstance(ctx context.Context, studyUID, seriesUID string, index int) (*Instance, error) {
	instances, err := c.Instances(ctx, studyUID, seriesUID, index+1)
	if err != nil {
		return nil, err
	}
	if index >= len(instances) {
		return nil, fmt.Errorf("%w: instance %d of series %s", ErrNotFound, index, seriesUID)
	}
	return &instances[index], nil
}

// jsonElement is one attribute of a DICOM JSON record. Values may arrive as
// strings or numbers depending on the server's rendering of IS values.
type jsonElement struct {
	Value []json.RawMessage `json:"Value"`
}

func (e jsonElement) firstString() (string, bool) {
	if len(e.Value) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e.Value[0], &s); err != nil {
		return "", false
	}
	return s, true
}

func (e jsonElement) firstInt() (int, bool) {
	if len(e.Value) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(e.Value[0], &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(e.Value[0], &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}
