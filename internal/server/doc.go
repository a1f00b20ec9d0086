// Package server implements the MCP (Model Context Protocol) server that
// exposes the Kuzushiji detection core as tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Page Information:
//   - image_load: Load a page and get metadata
//   - image_dimensions: Get width and height
//
// Working Frame:
//   - kuzushiji_crop: Crop and resize a page into the working frame
//
// Heatmap Codec:
//   - kuzushiji_encode_heatmap: Boxes to center heatmap
//   - kuzushiji_decode_heatmap: Center heatmap to scored boxes
//
// Evaluation:
//   - kuzushiji_evaluate: Detection mAP over a set of images
//
// Rendering:
//   - kuzushiji_render_detections: Draw boxes and heatmaps on a page
//
// Dataset:
//   - kuzushiji_dataset_example: Read an annotated page
//
// # Coordinate Frames
//
// Page pixels are the source image. Working-frame pixels are the 416x416
// crop produced by kuzushiji_crop. Heatmap cells are working-frame pixels
// divided by the stride (4). Tools say which frame their boxes are in;
// kuzushiji_decode_heatmap maps back to page pixels when given the
// crop_params returned by kuzushiji_crop.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    logrus.Fatal(err)
//	}
//	srv := server.New(cfg, server.WithLogger(logger))
//	if err := srv.Run(); err != nil {
//	    logrus.Fatal(err)
//	}
//
// Serve handles one request at a time. Evaluate may be called from other
// goroutines while Serve runs; the lazily opened datasets are shared under
// a mutex.
package server
