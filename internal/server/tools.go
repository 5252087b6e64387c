package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the angiogram (PNG, JPEG, PGM, BMP or TIFF)",
	}
}

func modelProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Path to a saved classifier (mlp_fold<N>.json). Defaults to the model the server was started with",
	}
}

func includeImagesProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": "Return the rendered maps as base64 PNG. Default false",
		"default":     false,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "vessel_features",
			Description: "Run the multiscale Frangi filter and small-object pruning on an angiogram and report the resulting vessel feature map.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"sigmas": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"description": "Gaussian scales in pixels, ascending. Default 1.8 to 4.0 step 0.1",
					},
					"threshold": map[string]interface{}{
						"type":        "number",
						"description": "Vesselness threshold before pruning (strictly greater). Default 0.3",
						"default":     0.3,
					},
					"min_size": map[string]interface{}{
						"type":        "integer",
						"description": "Smallest connected component kept, in pixels. Default 5000",
						"default":     5000,
					},
					"include_images": includeImagesProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "vessel_segment",
			Description: "Segment vessels in an angiogram with a trained classifier and a per-image Otsu threshold. With a ground-truth path, also score the result.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":  pathProperty(),
					"model": modelProperty(),
					"truth": map[string]interface{}{
						"type":        "string",
						"description": "Optional ground-truth mask (foreground > 127) to evaluate against",
					},
					"include_images": includeImagesProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "vessel_evaluate",
			Description: "Evaluate a trained fold on its validation images: Dice, sensitivity, specificity, precision, IoU, AUROC and SNR per image and aggregated.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"data_dir": map[string]interface{}{
						"type":        "string",
						"description": "Dataset directory with <name>.<ext> and <name>_gt.<ext> pairs",
					},
					"models_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory holding mlp_fold<N>.json files",
					},
					"fold": map[string]interface{}{
						"type":        "integer",
						"description": "Fold number, starting at 1",
					},
					"folds": map[string]interface{}{
						"type":        "integer",
						"description": "Number of folds used in training. Defaults to the server setting",
					},
					"augment": map[string]interface{}{
						"type":        "boolean",
						"description": "Whether training used flip augmentation. Defaults to the server setting",
					},
				},
				"required": []string{"data_dir", "models_dir", "fold"},
			},
		},
		{
			Name:        "vessel_histogram",
			Description: "Intensity histograms of an angiogram before filtering and of its vesselness and pruned feature maps.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"include_images": map[string]interface{}{
						"type":        "boolean",
						"description": "Return bar-chart renderings of the histograms as base64 PNG. Default false",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "model_info",
			Description: "Describe a saved classifier: layer sizes, parameter count and parameter shapes.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"model": modelProperty(),
				},
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
