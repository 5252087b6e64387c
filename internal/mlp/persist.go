package mlp

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// formatVersion is bumped whenever the on-disk layout changes.
const formatVersion = 1

// FoldArtifact returns the file name used for the model of a fold.
func FoldArtifact(fold int) string {
	return fmt.Sprintf("mlp_fold%d.json", fold)
}

type tensorJSON struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type modelJSON struct {
	Version int          `json:"version"`
	Layers  []int        `json:"layers"`
	Params  []tensorJSON `json:"params"`
}

// Save writes the network weights as JSON. float64 values are written in
// shortest round-trip form, so Load restores them bit for bit.
func (n *Network) Save(w io.Writer) error {
	doc := modelJSON{
		Version: formatVersion,
		Layers:  []int{InputSize, HiddenSize, HiddenSize, OutputSize},
	}
	for _, p := range n.Params() {
		r, c := p.Value.Dims()
		data := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			data = append(data, mat.Row(nil, i, p.Value)...)
		}
		doc.Params = append(doc.Params, tensorJSON{Name: p.Name, Rows: r, Cols: c, Data: data})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load reads weights written by Save into a new network.
func Load(r io.Reader) (*Network, error) {
	var doc modelJSON
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("unsupported model version %d", doc.Version)
	}

	n := New(0)
	params := n.Params()
	if len(doc.Params) != len(params) {
		return nil, fmt.Errorf("model has %d tensors, want %d: %w", len(doc.Params), len(params), ErrShape)
	}
	for i, p := range params {
		t := doc.Params[i]
		r, c := p.Value.Dims()
		if t.Name != p.Name || t.Rows != r || t.Cols != c || len(t.Data) != r*c {
			return nil, fmt.Errorf("tensor %q (%dx%d) does not match %q (%dx%d): %w",
				t.Name, t.Rows, t.Cols, p.Name, r, c, ErrShape)
		}
		p.Value.Copy(mat.NewDense(r, c, t.Data))
	}
	return n, nil
}

// SaveFile writes the network to path, creating parent directories.
func (n *Network) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := n.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a network saved with SaveFile.
func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()
	n, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return n, nil
}
