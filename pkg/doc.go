// Package pkg provides the core libraries for idcmosaic.
//
// The pipeline flows catalog → sampler → manifest → mosaic:
//
//	imaging catalog (catalog)
//	         ↓
//	stratified sampling + quality filtering (sampler)
//	         ↓
//	segmentation resolution for CT tiles (seg)
//	         ↓
//	persisted manifest document (manifest)
//	         ↓
//	treemap layout + overlay compositing (mosaic)
//
// Supporting packages: dicomweb (the DICOMweb transport client), cache
// (response cache backends), httputil (retry with backoff), and
// observability (optional instrumentation hooks).
package pkg
