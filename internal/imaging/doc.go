// Package imaging loads Kuzushiji page scans and maps them into the fixed
// working frame the detector runs on.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner.
// Boxes are (x1, y1, x2, y2) with x1 <= x2 and y1 <= y2. A crop transform
// records its window and per-axis scale in CropParams so detections made in
// the working frame can be mapped back to source-image pixels:
//
//	working = (source - window.Min) * scale
//	source  = working / scale + window.Min
//
// # Crop Transforms
//
// RandomCropAndResize draws a resize factor from a ScaleRange and places
// the window at a random position; it is used while training.
// CenterCropAndResize uses one fixed factor and centers the window; it is
// used for evaluation and inference. In both, the window covers size/scale
// source pixels per axis, clamped to the image, and is resized to exactly
// the configured output size. Boxes are clipped to the window and dropped
// when less than the minimum visibility fraction of their area survives.
//
// # Rendering
//
// HeatmapImage, OverlayHeatmap and DrawDetections produce debug images for
// inspecting predictions. EncodePNG wraps them for transport as base64.
//
// # Thread Safety
//
// ImageCache and RandomCropAndResize are safe for concurrent use.
// CenterCropAndResize is stateless. Rendering functions never mutate their
// inputs.
package imaging
