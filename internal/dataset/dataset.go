package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ironsheep/vessel-seg/internal/filter"
	"github.com/ironsheep/vessel-seg/internal/imaging"
)

// TruthSuffix marks ground-truth files: "12.pgm" pairs with "12_gt.pgm".
const TruthSuffix = "_gt"

// TruthLevel binarises ground-truth images: gray values above it are vessel.
const TruthLevel = 127

// ErrIndex is returned for an index outside [0, Len()).
var ErrIndex = errors.New("dataset: index out of range")

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true,
	".pgm": true, ".ppm": true, ".pbm": true, ".pnm": true,
}

// Pair is one angiogram and its ground-truth file.
type Pair struct {
	Name      string `json:"name"`
	ImagePath string `json:"image_path"`
	TruthPath string `json:"truth_path"`
}

// Scan pairs every image in dir with its ground truth. Pairs are ordered by
// name, numerically when both names are integers. An image without ground
// truth, or ground truth without an image, is an error.
func Scan(dir string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset directory: %w", err)
	}

	images := make(map[string]string)
	truths := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if e.IsDir() || strings.HasPrefix(name, ".") || !imageExts[ext] {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		path := filepath.Join(dir, name)
		if base, ok := strings.CutSuffix(stem, TruthSuffix); ok {
			truths[base] = path
		} else {
			images[stem] = path
		}
	}

	pairs := make([]Pair, 0, len(images))
	for stem, img := range images {
		gt, ok := truths[stem]
		if !ok {
			return nil, fmt.Errorf("image %s has no %s ground truth", filepath.Base(img), TruthSuffix)
		}
		pairs = append(pairs, Pair{Name: stem, ImagePath: img, TruthPath: gt})
	}
	for stem, gt := range truths {
		if _, ok := images[stem]; !ok {
			return nil, fmt.Errorf("ground truth %s has no image", filepath.Base(gt))
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no image pairs in %s", dir)
	}

	sort.Slice(pairs, func(i, j int) bool { return naturalLess(pairs[i].Name, pairs[j].Name) })
	return pairs, nil
}

func naturalLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil && na != nb {
		return na < nb
	}
	return a < b
}

// Sample is one item of the dataset after the feature pipeline.
type Sample struct {
	Index   int
	Name    string
	Flipped bool

	// Image holds the raw intensities, flipped for augmented indices.
	Image *imaging.Grid

	// Truth is the binarised ground truth, flipped along with Image.
	Truth *imaging.Mask

	Features *filter.Features
}

// Target returns the one-hot (background, foreground) ground truth.
func (s *Sample) Target() *imaging.ClassMap {
	return imaging.OneHot(s.Truth)
}

// Dataset serves angiogram/ground-truth pairs through a fixed feature
// pipeline. With augmentation on, indices [N, 2N) return the pairs of
// [0, N) flipped vertically; the flip is applied to the raw image before
// filtering. Feature maps are computed once per index.
//
// A Dataset is safe for concurrent use.
type Dataset struct {
	Pairs    []Pair
	Augment  bool
	Pipeline filter.Pipeline

	images *imaging.ImageCache

	mu      sync.Mutex
	samples map[int]*Sample
}

// Open scans dir and returns a dataset using pipeline.
func Open(dir string, pipeline filter.Pipeline, augment bool) (*Dataset, error) {
	pairs, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	return New(pairs, pipeline, augment), nil
}

// New returns a dataset over explicit pairs.
func New(pairs []Pair, pipeline filter.Pipeline, augment bool) *Dataset {
	return &Dataset{
		Pairs:    pairs,
		Augment:  augment,
		Pipeline: pipeline,
		images:   imaging.NewImageCache(),
		samples:  make(map[int]*Sample),
	}
}

// Len returns the number of samples, twice the number of pairs when
// augmenting.
func (d *Dataset) Len() int {
	if d.Augment {
		return 2 * len(d.Pairs)
	}
	return len(d.Pairs)
}

// Source returns the pair behind index i and whether it is flipped.
func (d *Dataset) Source(i int) (Pair, bool, error) {
	if i < 0 || i >= d.Len() {
		return Pair{}, false, fmt.Errorf("%w: %d of %d", ErrIndex, i, d.Len())
	}
	if i >= len(d.Pairs) {
		return d.Pairs[i-len(d.Pairs)], true, nil
	}
	return d.Pairs[i], false, nil
}

// Get returns sample i, computing its features on first access.
func (d *Dataset) Get(i int) (*Sample, error) {
	d.mu.Lock()
	if s, ok := d.samples[i]; ok {
		d.mu.Unlock()
		return s, nil
	}
	d.mu.Unlock()

	s, err := d.load(i)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.samples[i]; ok {
		return prev, nil
	}
	d.samples[i] = s
	return s, nil
}

func (d *Dataset) load(i int) (*Sample, error) {
	pair, flipped, err := d.Source(i)
	if err != nil {
		return nil, err
	}
	img, err := d.images.LoadGrid(pair.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pair.Name, err)
	}
	gt, err := d.images.LoadGrid(pair.TruthPath)
	if err != nil {
		return nil, fmt.Errorf("%s ground truth: %w", pair.Name, err)
	}
	if !img.SameShape(gt) {
		return nil, fmt.Errorf("%s: image %dx%d vs ground truth %dx%d: %w",
			pair.Name, img.Width, img.Height, gt.Width, gt.Height, imaging.ErrShapeMismatch)
	}

	truth := imaging.MaskFromGrid(gt, TruthLevel)
	if flipped {
		img = img.FlipV()
		truth = truth.FlipV()
	}

	feats, err := d.Pipeline.Apply(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pair.Name, err)
	}
	return &Sample{
		Index:    i,
		Name:     pair.Name,
		Flipped:  flipped,
		Image:    img,
		Truth:    truth,
		Features: feats,
	}, nil
}

// Prefetch computes the samples at indices with up to workers goroutines.
// It stops at the first error or when ctx is cancelled.
func (d *Dataset) Prefetch(ctx context.Context, indices []int, workers int) error {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if _, err := d.Get(i); err != nil {
					errs <- err
					cancel()
					return
				}
			}
		}()
	}

feed:
	for _, i := range indices {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return err
	}
	return ctx.Err()
}

// Evict drops cached samples and decoded images.
func (d *Dataset) Evict() {
	d.mu.Lock()
	d.samples = make(map[int]*Sample)
	d.mu.Unlock()
	d.images.Clear()
}
