package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ironsheep/vessel-seg/internal/dataset"
	"github.com/ironsheep/vessel-seg/internal/filter"
	"github.com/ironsheep/vessel-seg/internal/imaging"
	"github.com/ironsheep/vessel-seg/internal/metrics"
	"github.com/ironsheep/vessel-seg/internal/mlp"
	"github.com/ironsheep/vessel-seg/internal/report"
	"github.com/ironsheep/vessel-seg/internal/segment"
	"github.com/ironsheep/vessel-seg/internal/train"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "vessel_segment").
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
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Warn().Str("tool", params.Name).Err(err).Msg("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	s.log.Debug().Str("tool", params.Name).Dur("elapsed", time.Since(start)).Msg("tool call")

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
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "vessel_features":
		return s.handleVesselFeatures(args)
	case "vessel_segment":
		return s.handleVesselSegment(args)
	case "vessel_evaluate":
		return s.handleVesselEvaluate(ctx, args)
	case "vessel_histogram":
		return s.handleVesselHistogram(args)
	case "model_info":
		return s.handleModelInfo(args)
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
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return errors.New("missing arguments")
	}
	return json.Unmarshal(args, v)
}

// model returns the classifier at path, loading it once, or the default
// model when path is empty.
func (s *Server) model(path string) (*mlp.Network, error) {
	if m, ok := s.models[path]; ok {
		return m, nil
	}
	if path == "" {
		return nil, fmt.Errorf("%w: pass a model path or start the server with one", segment.ErrNoModel)
	}
	m, err := mlp.LoadFile(path)
	if err != nil {
		return nil, err
	}
	s.models[path] = m
	return m, nil
}

// features loads the image at path and runs pipeline on it.
func (s *Server) features(path string, pipeline filter.Pipeline) (*imaging.Grid, *filter.Features, error) {
	if path == "" {
		return nil, nil, errors.New("path is required")
	}
	raw, err := s.cache.LoadGrid(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := pipeline.Apply(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, f, nil
}

// === Feature extraction ===

type vesselFeaturesArgs struct {
	Path          string    `json:"path"`
	Sigmas        []float64 `json:"sigmas"`
	Threshold     *float64  `json:"threshold"`
	MinSize       *int      `json:"min_size"`
	IncludeImages bool      `json:"include_images"`
}

// FeaturesResult describes the feature map of one image.
type FeaturesResult struct {
	Image           *imaging.ImageInfo `json:"image"`
	Sigmas          []float64          `json:"sigmas"`
	VesselnessMin   float64            `json:"vesselness_min"`
	VesselnessMax   float64            `json:"vesselness_max"`
	ThresholdPixels int                `json:"threshold_pixels"`
	ObjectPixels    int                `json:"object_pixels"`
	Components      int                `json:"components"`

	FeatureImage *imaging.EncodedImage `json:"feature_image,omitempty"`
	ObjectImage  *imaging.EncodedImage `json:"object_image,omitempty"`
}

func (s *Server) handleVesselFeatures(args json.RawMessage) (interface{}, error) {
	var a vesselFeaturesArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	p := s.pipeline
	if len(a.Sigmas) > 0 {
		p.Ridge.Sigmas = a.Sigmas
	}
	if a.Threshold != nil {
		p.Prune.Threshold = *a.Threshold
	}
	if a.MinSize != nil {
		p.Prune.MinSize = *a.MinSize
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	_, f, err := s.features(a.Path, p)
	if err != nil {
		return nil, err
	}
	regions, err := f.ObjectMask.Components(p.Prune.Connectivity)
	if err != nil {
		return nil, err
	}
	info, err := imaging.LoadImageInfo(s.cache, a.Path)
	if err != nil {
		return nil, err
	}
	lo, hi := f.Vesselness.MinMax()
	res := &FeaturesResult{
		Image:           info,
		Sigmas:          p.Ridge.Sigmas,
		VesselnessMin:   lo,
		VesselnessMax:   hi,
		ThresholdPixels: f.ThresholdMask.Count(),
		ObjectPixels:    f.ObjectMask.Count(),
		Components:      len(regions),
	}
	if a.IncludeImages {
		if res.FeatureImage, err = imaging.EncodePNG(report.Stretch(f.Feature)); err != nil {
			return nil, err
		}
		if res.ObjectImage, err = imaging.EncodePNG(f.ObjectMask.ToGray()); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// === Segmentation ===

type vesselSegmentArgs struct {
	Path          string `json:"path"`
	Model         string `json:"model"`
	Truth         string `json:"truth"`
	IncludeImages bool   `json:"include_images"`
}

// SegmentResult is the segmentation of one image.
type SegmentResult struct {
	Width              int     `json:"width"`
	Height             int     `json:"height"`
	Threshold          float64 `json:"threshold"`
	ForegroundPixels   int     `json:"foreground_pixels"`
	ForegroundFraction float64 `json:"foreground_fraction"`

	// Metrics is set when a ground truth was given.
	Metrics *metrics.ImageMetrics `json:"metrics,omitempty"`

	MaskImage        *imaging.EncodedImage `json:"mask_image,omitempty"`
	ProbabilityImage *imaging.EncodedImage `json:"probability_image,omitempty"`
	OverlayImage     *imaging.EncodedImage `json:"overlay_image,omitempty"`
}

func (s *Server) handleVesselSegment(args json.RawMessage) (interface{}, error) {
	var a vesselSegmentArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	model, err := s.model(a.Model)
	if err != nil {
		return nil, err
	}
	raw, f, err := s.features(a.Path, s.pipeline)
	if err != nil {
		return nil, err
	}
	seg, err := segment.Segmenter{Model: model}.Segment(f.Feature)
	if err != nil {
		return nil, err
	}

	n := seg.Mask.Count()
	res := &SegmentResult{
		Width:              raw.Width,
		Height:             raw.Height,
		Threshold:          seg.Threshold,
		ForegroundPixels:   n,
		ForegroundFraction: float64(n) / float64(raw.Len()),
	}

	var truth *imaging.Mask
	if a.Truth != "" {
		g, err := s.cache.LoadGrid(a.Truth)
		if err != nil {
			return nil, fmt.Errorf("ground truth: %w", err)
		}
		truth = imaging.MaskFromGrid(g, dataset.TruthLevel)
		if res.Metrics, err = metrics.Evaluate(seg.Mask, truth, seg.Foreground); err != nil {
			return nil, err
		}
	}

	if a.IncludeImages {
		if res.MaskImage, err = imaging.EncodePNG(seg.Mask.ToGray()); err != nil {
			return nil, err
		}
		if res.ProbabilityImage, err = imaging.EncodePNG(seg.Foreground.ToGray(0, 1)); err != nil {
			return nil, err
		}
		if truth != nil {
			overlay, err := report.Overlay(raw, seg.Mask, truth, report.DefaultPalette(), report.DefaultOpacity)
			if err != nil {
				return nil, err
			}
			if res.OverlayImage, err = imaging.EncodePNG(overlay); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

// === Evaluation ===

type vesselEvaluateArgs struct {
	DataDir   string `json:"data_dir"`
	ModelsDir string `json:"models_dir"`
	Fold      int    `json:"fold"`
	Folds     int    `json:"folds"`
	Augment   *bool  `json:"augment"`
}

// EvaluateResult is the validation report of one fold.
type EvaluateResult struct {
	Fold int `json:"fold"`
	*train.Evaluation
}

func (s *Server) handleVesselEvaluate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a vesselEvaluateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.DataDir == "" || a.ModelsDir == "" {
		return nil, errors.New("data_dir and models_dir are required")
	}
	k := a.Folds
	if k == 0 {
		k = s.folds
	}
	augment := s.augment
	if a.Augment != nil {
		augment = *a.Augment
	}

	ds, err := dataset.Open(a.DataDir, s.pipeline, augment)
	if err != nil {
		return nil, err
	}
	model, val, err := train.LoadFold(a.ModelsDir, a.Fold, ds, k, s.exec.Seed)
	if err != nil {
		return nil, err
	}
	eval, err := train.Evaluate(ctx, model, ds, val, s.exec)
	if err != nil {
		return nil, err
	}
	return &EvaluateResult{Fold: a.Fold, Evaluation: eval}, nil
}

// === Histograms ===

type vesselHistogramArgs struct {
	Path          string `json:"path"`
	IncludeImages bool   `json:"include_images"`
}

// HistogramResult holds the before/after filter histograms of one image.
type HistogramResult struct {
	*report.FilterHistograms
	Plots map[string]*imaging.EncodedImage `json:"plots,omitempty"`
}

func (s *Server) handleVesselHistogram(args json.RawMessage) (interface{}, error) {
	var a vesselHistogramArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	raw, f, err := s.features(a.Path, s.pipeline)
	if err != nil {
		return nil, err
	}
	h := report.CompareFilter(raw, f)
	res := &HistogramResult{FilterHistograms: h}
	if a.IncludeImages {
		res.Plots = make(map[string]*imaging.EncodedImage, 3)
		for name, hist := range map[string]*report.Histogram{
			"raw":        h.Raw,
			"vesselness": h.Vesselness,
			"feature":    h.Feature,
		} {
			enc, err := imaging.EncodePNG(hist.Plot())
			if err != nil {
				return nil, err
			}
			res.Plots[name] = enc
		}
	}
	return res, nil
}

// === Model information ===

type modelInfoArgs struct {
	Model string `json:"model"`
}

// ParamInfo is the name and shape of one trainable tensor.
type ParamInfo struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// ModelInfo describes a classifier.
type ModelInfo struct {
	Path      string      `json:"path,omitempty"`
	Layers    []int       `json:"layers"`
	NumParams int         `json:"num_params"`
	Params    []ParamInfo `json:"params"`
}

func (s *Server) handleModelInfo(args json.RawMessage) (interface{}, error) {
	var a modelInfoArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
	}
	m, err := s.model(a.Model)
	if err != nil {
		return nil, err
	}
	info := &ModelInfo{
		Path:      a.Model,
		Layers:    []int{mlp.InputSize, mlp.HiddenSize, mlp.HiddenSize, mlp.OutputSize},
		NumParams: m.NumParams(),
	}
	for _, p := range m.Params() {
		r, c := p.Value.Dims()
		info.Params = append(info.Params, ParamInfo{Name: p.Name, Rows: r, Cols: c})
	}
	return info, nil
}
