// Package server implements an MCP (Model Context Protocol) server exposing
// vessel segmentation as tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Logs go to stderr so they never interleave with protocol output.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - vessel_features: Frangi vesselness and pruned feature map of an image
//   - vessel_segment: Classify pixels, threshold with Otsu, optionally score
//     against a ground truth
//   - vessel_evaluate: Validation metrics of one trained fold
//   - vessel_histogram: Intensity histograms before and after filtering
//   - model_info: Layer sizes and parameter shapes of a saved classifier
//
// # Caching
//
// Decoded images are cached by path, and classifiers are loaded once per
// path, for the lifetime of the server process.
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
//	srv, err := server.New(server.Options{Pipeline: cfg.Pipeline(), Exec: exec})
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx)
package server
