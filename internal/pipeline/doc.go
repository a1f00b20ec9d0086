// Package pipeline wires the crop transform, heatmap codec and evaluator
// into the flows used around a trained detector.
//
// A Preprocessor turns an annotated page into a training Sample: the page
// is cropped and resized into the 416x416 working frame, normalised into a
// CHW float32 tensor, and its boxes are encoded into a 104x104 heatmap
// target. A Detector runs the inverse flow for inference: center crop,
// model prediction, peak decoding and mapping back to page pixels.
// MapEvaluator runs a Detector over a dataset and reports detection mAP.
//
// The model itself is outside this module; it is reached through the
// Predictor interface.
package pipeline
