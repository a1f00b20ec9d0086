package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// boxSchema describes a detection.Box argument.
var boxSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"x1": map[string]interface{}{"type": "number", "description": "Left edge"},
		"y1": map[string]interface{}{"type": "number", "description": "Top edge"},
		"x2": map[string]interface{}{"type": "number", "description": "Right edge"},
		"y2": map[string]interface{}{"type": "number", "description": "Bottom edge"},
	},
	"required": []string{"x1", "y1", "x2", "y2"},
}

// detectionSchema describes a detection.Detection argument.
var detectionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"box":   boxSchema,
		"label": map[string]interface{}{"type": "integer", "description": "Class index (0 for characters)"},
		"score": map[string]interface{}{"type": "number", "description": "Confidence in [0, 1]"},
	},
	"required": []string{"box", "score"},
}

// heatmapSchema accepts either a single-class grid or a flat tensor.
var heatmapSchema = map[string]interface{}{
	"type":        "object",
	"description": "Either {grid: [[...]]} for one class, or {classes, height, width, data} with data row-major per class",
	"properties": map[string]interface{}{
		"grid": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}},
		},
		"classes": map[string]interface{}{"type": "integer"},
		"height":  map[string]interface{}{"type": "integer"},
		"width":   map[string]interface{}{"type": "integer"},
		"data":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}},
	},
}

// cropParamsSchema describes imaging.CropParams as returned by kuzushiji_crop.
var cropParamsSchema = map[string]interface{}{
	"type":        "object",
	"description": "Crop parameters returned by kuzushiji_crop; maps results back to page pixels",
	"properties": map[string]interface{}{
		"window": map[string]interface{}{
			"type":        "object",
			"description": "{Min: {X, Y}, Max: {X, Y}} in page pixels",
		},
		"scale_x": map[string]interface{}{"type": "number"},
		"scale_y": map[string]interface{}{"type": "number"},
	},
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Page Information
		{
			Name:        "image_load",
			Description: "Load a page image and return its dimensions, format and MIME type. The decoded page stays cached for later calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},

		// Working Frame
		{
			Name:        "kuzushiji_crop",
			Description: "Crop and resize a page into the detector's square working frame. Boxes are clipped to the crop window and dropped when too little of them remains. Returns the surviving boxes in working-frame pixels and the crop parameters needed to map detections back.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the page image",
					},
					"boxes": map[string]interface{}{
						"type":        "array",
						"items":       boxSchema,
						"description": "Character boxes in page pixels",
					},
					"labels": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Codepoint of each box (e.g. U+3042). Defaults to empty strings",
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Resize factor from page to working frame. Default is the midpoint of the configured scale range",
					},
					"size": map[string]interface{}{
						"type":        "integer",
						"description": "Working-frame edge length in pixels. Default 416",
					},
					"min_visibility": map[string]interface{}{
						"type":        "number",
						"description": "Fraction of a box that must survive clipping. Default 0.5",
					},
					"random": map[string]interface{}{
						"type":        "boolean",
						"description": "Use a random scale from the configured range and a random window position",
						"default":     false,
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Seed for the random crop",
					},
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the working-frame image as base64 PNG",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},

		// Heatmap Codec
		{
			Name:        "kuzushiji_encode_heatmap",
			Description: "Encode character boxes into a CenterNet-style center heatmap: one Gaussian per box with a size-adaptive radius, merged by maximum. Returns the flat center indices and optionally the dense heatmap or a PNG rendering.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"boxes": map[string]interface{}{
						"type":        "array",
						"items":       boxSchema,
						"description": "Boxes in working-frame pixels; divided by stride before encoding",
					},
					"labels": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "integer"},
						"description": "Class of each box. Defaults to 0 for every box",
					},
					"num_classes": map[string]interface{}{
						"type":        "integer",
						"description": "Number of heatmap channels. Default 1",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Heatmap height in cells. Default input_size / stride",
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Heatmap width in cells. Default input_size / stride",
					},
					"stride": map[string]interface{}{
						"type":        "integer",
						"description": "Working-frame pixels per heatmap cell. Default 4",
					},
					"min_overlap": map[string]interface{}{
						"type":        "number",
						"description": "IoU the radius must preserve. Default 0.7",
					},
					"include_data": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the dense heatmap values",
						"default":     false,
					},
					"render": map[string]interface{}{
						"type":        "boolean",
						"description": "Return a colour-mapped PNG of channel 0",
						"default":     false,
					},
				},
				"required": []string{"boxes"},
			},
		},
		{
			Name:        "kuzushiji_decode_heatmap",
			Description: "Decode a predicted center heatmap into scored boxes: local maxima at or above the threshold, sorted by score and truncated to top_k. With crop_params the boxes are mapped back to page pixels.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"heatmap": heatmapSchema,
					"threshold": map[string]interface{}{
						"type":        "number",
						"description": "Inclusive minimum peak score. Default from configuration (0.3)",
					},
					"top_k": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum detections; 0 or less returns all. Default from configuration",
					},
					"kernel_size": map[string]interface{}{
						"type":        "integer",
						"description": "Odd side of the local-maximum window. Default 3",
					},
					"stride": map[string]interface{}{
						"type":        "integer",
						"description": "Working-frame pixels per heatmap cell. Default 4",
					},
					"box_size": map[string]interface{}{
						"type":        "number",
						"description": "Nominal box edge in heatmap cells. Default 10",
					},
					"crop_params": cropParamsSchema,
				},
				"required": []string{"heatmap"},
			},
		},

		// Evaluation
		{
			Name:        "kuzushiji_evaluate",
			Description: "Compute detection mean average precision over a set of images. Detections are matched greedily to ground truth per image; precision and recall are pooled across images.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"images": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"detections": map[string]interface{}{
									"type":  "array",
									"items": detectionSchema,
								},
								"ground_truth": map[string]interface{}{
									"type":  "array",
									"items": boxSchema,
								},
								"ground_truth_labels": map[string]interface{}{
									"type":        "array",
									"items":       map[string]interface{}{"type": "integer"},
									"description": "Class of each ground-truth box. Defaults to 0",
								},
							},
						},
					},
					"iou_threshold": map[string]interface{}{
						"type":        "number",
						"description": "Minimum IoU for a match. Default 0.5",
					},
					"interpolation": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"all-point", "11-point"},
						"description": "Precision-recall integration. Default all-point",
					},
				},
				"required": []string{"images"},
			},
		},

		// Rendering
		{
			Name:        "kuzushiji_render_detections",
			Description: "Draw detection boxes (and optionally a heatmap overlay) on a page image and return it as base64 PNG, optionally also saving it to disk.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image to draw on",
					},
					"detections": map[string]interface{}{
						"type":        "array",
						"items":       detectionSchema,
						"description": "Detections in the image's pixel coordinates",
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Box color as hex (#RRGGBB or #RRGGBBAA). Default #FF0000",
						"default":     "#FF0000",
					},
					"show_scores": map[string]interface{}{
						"type":        "boolean",
						"description": "Print each score above its box",
						"default":     true,
					},
					"heatmap": heatmapSchema,
					"opacity": map[string]interface{}{
						"type":        "number",
						"description": "Heatmap overlay opacity in [0, 1]. Default 0.5",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional path to also save the PNG",
					},
				},
				"required": []string{"path"},
			},
		},

		// Dataset
		{
			Name:        "kuzushiji_dataset_example",
			Description: "Read one annotated page from the Kaggle Kuzushiji Recognition dataset: page id, size, character boxes and codepoints. Optionally runs the training preprocessor and reports the heatmap target.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"split": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"trainval", "train", "val"},
						"description": "Dataset split. Default trainval",
					},
					"index": map[string]interface{}{
						"type":        "integer",
						"description": "0-based page index within the split",
					},
					"preprocess": map[string]interface{}{
						"type":        "boolean",
						"description": "Center-crop the page and encode its heatmap target",
						"default":     false,
					},
				},
				"required": []string{"index"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
