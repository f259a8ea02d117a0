package dicomweb

import (
	"context"
	"fmt"
	"net/url"
)

// RenderedFrame fetches a server-rendered preview of one frame as encoded
// image bytes (JPEG or PNG, at the server's discretion).
func (c *Client) RenderedFrame(ctx context.Context, studyUID, seriesUID, sopUID string, frame int) ([]byte, error) {
	return c.get(ctx, c.TileURL(studyUID, seriesUID, sopUID, frame), "image/jpeg, image/png")
}

// RawFrame fetches the raw binary payload of one frame. The response is a
// multipart/related body returned verbatim; use mosaic.ExtractMultipartPayload
// to isolate the packed pixel data.
func (c *Client) RawFrame(ctx context.Context, studyUID, seriesUID, sopUID string, frame int) ([]byte, error) {
	u := fmt.Sprintf("%s/studies/%s/series/%s/instances/%s/frames/%d",
		c.baseURL, studyUID, seriesUID, sopUID, frame)
	return c.get(ctx, u, `multipart/related; type="application/octet-stream"`)
}

// SeriesMetadata downloads the DICOM JSON metadata of every instance in a
// series. The body is returned raw for the caller to walk; the segmentation
// resolver only reads two sequences out of it.
func (c *Client) SeriesMetadata(ctx context.Context, studyUID, seriesUID string) ([]byte, error) {
	u := fmt.Sprintf("%s/studies/%s/series/%s/metadata", c.baseURL, studyUID, seriesUID)
	return c.get(ctx, u, "application/dicom+json")
}

// TileURL builds the rendered-frame URL recorded in the manifest.
func (c *Client) TileURL(studyUID, seriesUID, sopUID string, frame int) string {
	return fmt.Sprintf("%s/studies/%s/series/%s/instances/%s/frames/%d/rendered",
		c.baseURL, studyUID, seriesUID, sopUID, frame)
}

// ViewerURL builds the interactive viewer link for a series.
func (c *Client) ViewerURL(studyUID, seriesUID string) string {
	return fmt.Sprintf("%s/%s?seriesInstanceUID=%s",
		c.viewerBaseURL, studyUID, url.QueryEscape(seriesUID))
}

// BaseURL returns the DICOMweb root this client talks to. The manifest
// records it so the runtime renderer can fetch raw frames itself.
func (c *Client) BaseURL() string { return c.baseURL }
