package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math/rand"
	"time"

	"github.com/ironsheep/kuzushiji-mcp/internal/dataset"
	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
	"github.com/ironsheep/kuzushiji-mcp/internal/imaging"
	"github.com/ironsheep/kuzushiji-mcp/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "kuzushiji_crop").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.executeTool(params.Name, params.Arguments)
	log := s.log.WithField("tool", params.Name).WithField("duration", time.Since(start))
	if err != nil {
		log.WithError(err).Warn("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	log.Debug("tool finished")

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies configured defaults for optional parameters
//  3. Loads pages from the cache as needed
//  4. Calls into imaging, detection, dataset or pipeline
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Page Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Working Frame
	case "kuzushiji_crop":
		return s.handleCrop(args)

	// Heatmap Codec
	case "kuzushiji_encode_heatmap":
		return s.handleEncodeHeatmap(args)
	case "kuzushiji_decode_heatmap":
		return s.handleDecodeHeatmap(args)

	// Evaluation
	case "kuzushiji_evaluate":
		return s.handleEvaluate(args)

	// Rendering
	case "kuzushiji_render_detections":
		return s.handleRenderDetections(args)

	// Dataset
	case "kuzushiji_dataset_example":
		return s.handleDatasetExample(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// heatmapArg is the wire form of a heatmap argument.
type heatmapArg struct {
	Grid    [][]float32 `json:"grid"`
	Classes int         `json:"classes"`
	Height  int         `json:"height"`
	Width   int         `json:"width"`
	Data    []float32   `json:"data"`
}

func (h *heatmapArg) toHeatmap() (*detection.Heatmap, error) {
	if h == nil {
		return nil, fmt.Errorf("heatmap is required")
	}
	if len(h.Grid) > 0 {
		return detection.HeatmapFromGrid(h.Grid)
	}
	hm := &detection.Heatmap{Classes: h.Classes, Height: h.Height, Width: h.Width, Data: h.Data}
	if hm.Classes == 0 {
		hm.Classes = 1
	}
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm, nil
}

// === Page Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Working Frame Handlers ===

type cropArgs struct {
	Path          string          `json:"path"`
	Boxes         []detection.Box `json:"boxes"`
	Labels        []string        `json:"labels"`
	Scale         float64         `json:"scale"`
	Size          int             `json:"size"`
	MinVisibility *float64        `json:"min_visibility"`
	Random        bool            `json:"random"`
	Seed          *int64          `json:"seed"`
	IncludeImage  bool            `json:"include_image"`
}

type cropResult struct {
	Boxes  []detection.Box       `json:"boxes"`
	Labels []string              `json:"labels"`
	Keep   []int                 `json:"keep"`
	Params imaging.CropParams    `json:"params"`
	Image  *imaging.RenderResult `json:"image,omitempty"`
}

func (s *Server) handleCrop(args json.RawMessage) (interface{}, error) {
	var a cropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	det := s.cfg.Detector
	if a.Size == 0 {
		a.Size = det.InputSize
	}
	minVis := det.MinVisibility
	if a.MinVisibility != nil {
		minVis = *a.MinVisibility
	}
	if a.Labels == nil {
		a.Labels = make([]string, len(a.Boxes))
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	size := image.Pt(a.Size, a.Size)
	var crop imaging.CropTransform
	if a.Random {
		scales := det.ScaleRange()
		if a.Scale != 0 {
			scales = imaging.ScaleRange{Min: a.Scale, Max: a.Scale}
		}
		var rng *rand.Rand
		if a.Seed != nil {
			rng = rand.New(rand.NewSource(*a.Seed))
		}
		crop, err = imaging.NewRandomCropAndResize(scales, size, minVis, rng)
	} else {
		scale := a.Scale
		if scale == 0 {
			scale = det.ScaleRange().Mid()
		}
		crop, err = imaging.NewCenterCropAndResize(scale, size, minVis)
	}
	if err != nil {
		return nil, err
	}

	res, err := crop.Apply(img, a.Boxes, a.Labels)
	if err != nil {
		return nil, err
	}

	out := &cropResult{Boxes: res.Boxes, Labels: res.Labels, Keep: res.Keep, Params: res.Params}
	if a.IncludeImage {
		if out.Image, err = imaging.EncodePNG(res.Image); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// === Heatmap Codec Handlers ===

type encodeArgs struct {
	Boxes       []detection.Box `json:"boxes"`
	Labels      []int           `json:"labels"`
	NumClasses  int             `json:"num_classes"`
	Height      int             `json:"height"`
	Width       int             `json:"width"`
	Stride      int             `json:"stride"`
	MinOverlap  float64         `json:"min_overlap"`
	IncludeData bool            `json:"include_data"`
	Render      bool            `json:"render"`
}

type encodeResult struct {
	Classes int                   `json:"classes"`
	Height  int                   `json:"height"`
	Width   int                   `json:"width"`
	Indices []int                 `json:"indices"`
	Labels  []int                 `json:"labels"`
	Sizes   []detection.Size      `json:"sizes"`
	Max     float32               `json:"max"`
	Data    []float32             `json:"data,omitempty"`
	Image   *imaging.RenderResult `json:"image,omitempty"`
}

func (s *Server) handleEncodeHeatmap(args json.RawMessage) (interface{}, error) {
	var a encodeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.NumClasses == 0 {
		a.NumClasses = 1
	}
	if a.Height == 0 {
		a.Height = s.cfg.Detector.HeatmapSize()
	}
	if a.Width == 0 {
		a.Width = s.cfg.Detector.HeatmapSize()
	}
	if a.Stride == 0 {
		a.Stride = detection.Stride
	}
	if a.Stride < 0 {
		return nil, fmt.Errorf("stride must be positive, got %d", a.Stride)
	}
	if a.MinOverlap == 0 {
		a.MinOverlap = s.cfg.Detector.MinOverlap
	}
	if a.Labels == nil {
		a.Labels = make([]int, len(a.Boxes))
	}

	enc, err := detection.NewEncoder(a.NumClasses, a.Height, a.Width)
	if err != nil {
		return nil, err
	}
	enc.MinOverlap = a.MinOverlap

	scaled := make([]detection.Box, len(a.Boxes))
	for i, b := range a.Boxes {
		scaled[i] = b.Scale(1 / float64(a.Stride))
	}
	target, err := enc.Encode(scaled, a.Labels)
	if err != nil {
		return nil, err
	}

	out := &encodeResult{
		Classes: target.Heatmap.Classes,
		Height:  target.Heatmap.Height,
		Width:   target.Heatmap.Width,
		Indices: target.Indices,
		Labels:  target.Labels,
		Sizes:   target.Sizes,
		Max:     target.Heatmap.Max(),
	}
	if a.IncludeData {
		out.Data = target.Heatmap.Data
	}
	if a.Render {
		img, err := imaging.HeatmapImage(target.Heatmap, 0)
		if err != nil {
			return nil, err
		}
		if out.Image, err = imaging.EncodePNG(img); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type decodeArgs struct {
	Heatmap    *heatmapArg         `json:"heatmap"`
	Threshold  *float64            `json:"threshold"`
	TopK       *int                `json:"top_k"`
	KernelSize int                 `json:"kernel_size"`
	Stride     int                 `json:"stride"`
	BoxSize    float64             `json:"box_size"`
	CropParams *imaging.CropParams `json:"crop_params"`
}

type decodeResult struct {
	Count      int                   `json:"count"`
	Detections []detection.Detection `json:"detections"`
	PageFrame  bool                  `json:"page_frame"` // Boxes are in page pixels rather than the working frame
}

func (s *Server) handleDecodeHeatmap(args json.RawMessage) (interface{}, error) {
	var a decodeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	hm, err := a.Heatmap.toHeatmap()
	if err != nil {
		return nil, err
	}

	dec := s.cfg.Detector.Decoder()
	if a.Threshold != nil {
		dec.Threshold = *a.Threshold
	}
	if a.TopK != nil {
		dec.TopK = *a.TopK
	}
	if a.KernelSize != 0 {
		dec.KernelSize = a.KernelSize
	}
	if a.Stride != 0 {
		dec.Stride = a.Stride
	}
	if a.BoxSize != 0 {
		dec.Sizes = detection.FixedSize{W: a.BoxSize, H: a.BoxSize}
	}

	dets, err := dec.Decode(hm)
	if err != nil {
		return nil, err
	}

	out := &decodeResult{Count: len(dets), Detections: dets}
	if a.CropParams != nil {
		if a.CropParams.ScaleX <= 0 || a.CropParams.ScaleY <= 0 {
			return nil, fmt.Errorf("crop_params scales must be positive")
		}
		out.Detections = a.CropParams.DetectionsToOriginal(dets)
		out.PageFrame = true
	}
	return out, nil
}

// === Evaluation Handlers ===

type evalImage struct {
	Detections        []detection.Detection `json:"detections"`
	GroundTruth       []detection.Box       `json:"ground_truth"`
	GroundTruthLabels []int                 `json:"ground_truth_labels"`
}

type evaluateArgs struct {
	Images        []evalImage `json:"images"`
	IoUThreshold  float64     `json:"iou_threshold"`
	Interpolation string      `json:"interpolation"`
}

func (s *Server) handleEvaluate(args json.RawMessage) (interface{}, error) {
	var a evaluateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	evalCfg := s.cfg.Eval
	if a.IoUThreshold != 0 {
		evalCfg.IoUThreshold = a.IoUThreshold
	}
	switch detection.Interpolation(a.Interpolation) {
	case "":
	case detection.AllPoint, detection.ElevenPoint:
		evalCfg.Interpolation = a.Interpolation
	default:
		return nil, fmt.Errorf("unknown interpolation %q", a.Interpolation)
	}

	ev, err := evalCfg.Evaluator()
	if err != nil {
		return nil, err
	}
	for i, img := range a.Images {
		labels := img.GroundTruthLabels
		if labels == nil {
			labels = make([]int, len(img.GroundTruth))
		}
		if err := ev.Add(img.Detections, img.GroundTruth, labels); err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
	}
	return ev.Report(), nil
}

// === Rendering Handlers ===

type renderArgs struct {
	Path       string                `json:"path"`
	Detections []detection.Detection `json:"detections"`
	Color      string                `json:"color"`
	ShowScores *bool                 `json:"show_scores"`
	Heatmap    *heatmapArg           `json:"heatmap"`
	Opacity    *float64              `json:"opacity"`
	OutputPath string                `json:"output_path"`
}

type renderResult struct {
	*imaging.RenderResult
	SavedTo string `json:"saved_to,omitempty"`
}

func (s *Server) handleRenderDetections(args json.RawMessage) (interface{}, error) {
	var a renderArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Color == "" {
		a.Color = "#FF0000"
	}
	showScores := true
	if a.ShowScores != nil {
		showScores = *a.ShowScores
	}
	opacity := 0.5
	if a.Opacity != nil {
		opacity = *a.Opacity
	}

	base, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	if a.Heatmap != nil {
		hm, err := a.Heatmap.toHeatmap()
		if err != nil {
			return nil, err
		}
		if base, err = imaging.OverlayHeatmap(base, hm, 0, opacity); err != nil {
			return nil, err
		}
	}
	drawn := imaging.DrawDetections(base, a.Detections, a.Color, showScores)

	encoded, err := imaging.EncodePNG(drawn)
	if err != nil {
		return nil, err
	}
	out := &renderResult{RenderResult: encoded}
	if a.OutputPath != "" {
		if err := imaging.SavePNG(a.OutputPath, drawn); err != nil {
			return nil, err
		}
		out.SavedTo = a.OutputPath
	}
	return out, nil
}

// === Dataset Handlers ===

type datasetExampleArgs struct {
	Split      string `json:"split"`
	Index      int    `json:"index"`
	Preprocess bool   `json:"preprocess"`
}

type sampleSummary struct {
	Indices    []int              `json:"indices"`
	Labels     []int              `json:"labels"`
	Unicodes   []string           `json:"unicodes"`
	HeatmapMax float32            `json:"heatmap_max"`
	Params     imaging.CropParams `json:"params"`
}

type datasetExampleResult struct {
	ImageID  string          `json:"image_id"`
	Split    dataset.Split   `json:"split"`
	Index    int             `json:"index"`
	Total    int             `json:"total"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Boxes    []detection.Box `json:"boxes"`
	Unicodes []string        `json:"unicodes"`
	Chars    []string        `json:"chars,omitempty"`
	Sample   *sampleSummary  `json:"sample,omitempty"`
}

func (s *Server) handleDatasetExample(args json.RawMessage) (interface{}, error) {
	var a datasetExampleArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	split, err := dataset.ParseSplit(a.Split)
	if err != nil {
		return nil, err
	}
	ds, err := s.recognitionDataset(split)
	if err != nil {
		return nil, err
	}
	ex, err := ds.Example(a.Index)
	if err != nil {
		return nil, err
	}

	b := ex.Image.Bounds()
	out := &datasetExampleResult{
		ImageID:  ex.ImageID,
		Split:    split,
		Index:    a.Index,
		Total:    ds.Len(),
		Width:    b.Dx(),
		Height:   b.Dy(),
		Boxes:    ex.Boxes,
		Unicodes: ex.Unicodes,
	}
	if m := s.unicodeMapping(); m != nil {
		out.Chars = make([]string, len(ex.Unicodes))
		for i, u := range ex.Unicodes {
			out.Chars[i], _ = m.Char(u)
		}
	}

	if a.Preprocess {
		det := s.cfg.Detector
		pre, err := pipeline.NewPreprocessor(det.Pipeline(), false, nil)
		if err != nil {
			return nil, err
		}
		sample, err := pre.Process(ex)
		if err != nil {
			return nil, err
		}
		out.Sample = &sampleSummary{
			Indices:    sample.Indices,
			Labels:     sample.Labels,
			Unicodes:   sample.Unicodes,
			HeatmapMax: sample.Heatmap.Max(),
			Params:     sample.Params,
		}
	}
	return out, nil
}

func (s *Server) recognitionDataset(split dataset.Split) (*dataset.RecognitionDataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds, ok := s.datasets[split]; ok {
		return ds, nil
	}
	ds, err := dataset.NewRecognitionDataset(s.cfg.Dataset, split, s.cache)
	if err != nil {
		return nil, err
	}
	s.datasets[split] = ds
	s.log.WithField("split", split).WithField("pages", ds.Len()).Info("dataset opened")
	return ds, nil
}

// unicodeMapping loads the codepoint table once. A missing table only
// disables character lookups.
func (s *Server) unicodeMapping() *dataset.UnicodeMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unicodes != nil {
		return s.unicodes
	}
	m, err := dataset.LoadUnicodeMapping(s.cfg.Dataset.UnicodeCSV())
	if err != nil {
		s.log.WithError(err).Debug("unicode table unavailable")
		return nil
	}
	s.unicodes = m
	return m
}

// Evaluate runs a MapEvaluator over a split of the configured dataset,
// drawing ValSize pages with the configured seed.
func (s *Server) Evaluate(ctx context.Context, p pipeline.Predictor, split dataset.Split) (*detection.EvalReport, error) {
	ds, err := s.recognitionDataset(split)
	if err != nil {
		return nil, err
	}
	var pages dataset.Dataset = ds
	if n := s.cfg.Eval.ValSize; n > 0 && n < ds.Len() {
		first, _, err := dataset.RandomSplit(ds, n, s.cfg.Eval.Seed)
		if err != nil {
			return nil, err
		}
		pages = first
	}

	det := s.cfg.Detector
	d, err := pipeline.NewDetector(p, det.Decoder(), det.Pipeline())
	if err != nil {
		return nil, err
	}
	m := &pipeline.MapEvaluator{
		Detector:      d,
		IoUThreshold:  s.cfg.Eval.IoUThreshold,
		Interpolation: detection.Interpolation(s.cfg.Eval.Interpolation),
		Workers:       s.cfg.Eval.Workers,
		Log:           s.log,
	}
	return m.Evaluate(ctx, pages)
}
