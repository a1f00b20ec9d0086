// Package detection implements the CenterNet-style heatmap scheme used by
// the Kuzushiji character detector.
//
// The package covers both directions of the protocol plus its metric:
//
//   - Encoder: ground-truth boxes -> (heatmap, indices, labels) training target
//   - Decoder: predicted heatmap -> scored boxes
//   - Evaluator: scored boxes vs ground truth -> mean average precision
//
// # Coordinate Spaces
//
// Three frames are involved:
//
//  1. Original page pixels, as annotated in the dataset.
//  2. Working-frame pixels, after the crop transform in package imaging.
//  3. Heatmap cells, working-frame pixels divided by Stride.
//
// The Encoder takes boxes in heatmap cells; the Decoder returns boxes in
// working-frame pixels; the Evaluator expects both sides in the same frame,
// normally original page pixels after the inverse crop.
//
// # Heatmap Target
//
// Each ground-truth box contributes an unnormalized Gaussian peaking at 1.0
// on its floored center. The radius comes from GaussianRadius and shrinks
// with the box, so small characters produce tight peaks. Contributions in
// the same class channel combine with max.
//
// # Peak Decoding
//
// A cell is a peak when no neighbour inside the kernel window is larger and
// its value is at least the threshold. Both comparisons are inclusive: equal
// neighbours are all reported, and a value equal to the threshold passes.
//
// # Thread Safety
//
// Encoder and Decoder hold no mutable state and are safe to share across
// goroutines. Evaluator accumulates and must be fed from one goroutine.
package detection
