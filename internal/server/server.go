package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ironsheep/vessel-seg/internal/filter"
	"github.com/ironsheep/vessel-seg/internal/imaging"
	"github.com/ironsheep/vessel-seg/internal/logging"
	"github.com/ironsheep/vessel-seg/internal/mlp"
	"github.com/ironsheep/vessel-seg/internal/train"
)

// Name identifies the server in the initialize handshake.
const Name = "vessel-seg"

// Version is overridden at build time with -ldflags "-X ...server.Version=...".
var Version = "0.1.0"

// Options configure a Server.
type Options struct {
	// Pipeline is the feature pipeline used by every tool.
	Pipeline filter.Pipeline

	// ModelPath optionally preloads a classifier used when a tool call
	// names no model.
	ModelPath string

	// Folds is the cross-validation k used by vessel_evaluate when the call
	// does not override it. Zero means 5. The split seed comes from Exec.
	Folds int

	// Augment is whether training used flip augmentation. vessel_evaluate
	// uses it when the call does not override it, so the split it rebuilds
	// matches the one the models were trained on.
	Augment bool

	Exec train.Exec
}

// Server handles MCP protocol communication
type Server struct {
	cache    *imaging.ImageCache
	pipeline filter.Pipeline
	folds    int
	augment  bool
	exec     train.Exec
	log      zerolog.Logger

	// models caches loaded classifiers by path. The empty path holds the
	// default model, if any.
	models map[string]*mlp.Network
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a server. When opts.ModelPath is set the model is loaded
// immediately so a bad path fails at startup rather than on first use.
func New(opts Options) (*Server, error) {
	if err := opts.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Exec.Validate(); err != nil {
		return nil, err
	}
	if opts.Folds == 0 {
		opts.Folds = 5
	}
	s := &Server{
		cache:    imaging.NewImageCache(),
		pipeline: opts.Pipeline,
		folds:    opts.Folds,
		augment:  opts.Augment,
		exec:     opts.Exec,
		log:      logging.Component(opts.Exec.Log, "server"),
		models:   make(map[string]*mlp.Network),
	}
	if opts.ModelPath != "" {
		m, err := mlp.LoadFile(opts.ModelPath)
		if err != nil {
			return nil, err
		}
		s.models[""] = m
		s.log.Info().Str("path", opts.ModelPath).Msg("default model loaded")
	}
	return s, nil
}

// Run serves MCP on stdin and stdout until stdin closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses to
// w. ctx is checked between requests.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn().Err(err).Msg("failed to parse request")
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.log.Error().Err(err).Msg("failed to encode response")
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    Name,
				"version": Version,
			},
		},
	}
}
