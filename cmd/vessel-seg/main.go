package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ironsheep/vessel-seg/internal/config"
	"github.com/ironsheep/vessel-seg/internal/dataset"
	"github.com/ironsheep/vessel-seg/internal/imaging"
	"github.com/ironsheep/vessel-seg/internal/logging"
	"github.com/ironsheep/vessel-seg/internal/metrics"
	"github.com/ironsheep/vessel-seg/internal/mlp"
	"github.com/ironsheep/vessel-seg/internal/report"
	"github.com/ironsheep/vessel-seg/internal/segment"
	"github.com/ironsheep/vessel-seg/internal/server"
	"github.com/ironsheep/vessel-seg/internal/train"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// errUsage marks errors that should be followed by the usage text.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "vessel-seg: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return nil
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "features":
		return runFeatures(rest, stdout, stderr)
	case "train":
		return runTrain(ctx, rest, stdout, stderr)
	case "segment":
		return runSegment(rest, stdout, stderr)
	case "evaluate":
		return runEvaluate(ctx, rest, stdout, stderr)
	case "serve":
		return runServe(ctx, rest, stderr)
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "vessel-seg %s\n", Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
		return nil
	case "--help", "-h", "help":
		printUsage(stdout)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "vessel-seg - coronary angiogram vessel segmentation")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: vessel-seg <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  features [-config f] [-out dir] <image>            Frangi feature maps of one image")
	fmt.Fprintln(w, "  train -data dir [-config f] [-out dir]              k-fold training, one model per fold")
	fmt.Fprintln(w, "  segment -model f [-truth f] [-out dir] <image>      Segment one image")
	fmt.Fprintln(w, "  evaluate -data dir -models dir [-fold n] [-json]    Validation metrics per fold")
	fmt.Fprintln(w, "  serve [-model f] [-config f]                        MCP server on stdin/stdout")
	fmt.Fprintln(w, "  version                                             Print version information")
	fmt.Fprintln(w, "  help                                                Print this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintf(w, "  %s=debug    Log level (debug, info, warn, error)\n", logging.EnvLevel)
}

// loadConfig reads path, or the defaults when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func execFor(cfg config.Config, log zerolog.Logger) train.Exec {
	return train.Exec{
		Device:  cfg.Train.Device,
		Seed:    cfg.Train.Seed,
		Workers: runtime.NumCPU(),
		Log:     log,
	}
}

// parse parses args into fs, reporting flag errors as usage errors.
func parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runFeatures(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("features", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML configuration file")
	out := fs.String("out", ".", "output directory")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: features takes one image", errUsage)
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	log := logging.Component(cfg.Logger(stderr), "features")

	path := fs.Arg(0)
	raw, err := imaging.NewImageCache().LoadGrid(path)
	if err != nil {
		return err
	}
	f, err := cfg.Pipeline().Apply(raw)
	if err != nil {
		return err
	}

	name := stem(path)
	saves := map[string]func(string) error{
		"vesselness": func(p string) error { return imaging.SaveGrid(p, f.Vesselness, 0, 1) },
		"feature":    func(p string) error { return imaging.SavePNG(p, report.Stretch(f.Feature)) },
		"objects":    func(p string) error { return imaging.SaveMask(p, f.ObjectMask) },
	}
	for suffix, save := range saves {
		p := filepath.Join(*out, name+"_"+suffix+".png")
		if err := save(p); err != nil {
			return err
		}
		log.Debug().Str("path", p).Msg("saved")
	}

	lo, hi := f.Vesselness.MinMax()
	fmt.Fprintf(stdout, "%s: %dx%d vesselness [%.4f, %.4f], %d above threshold, %d kept\n",
		name, raw.Width, raw.Height, lo, hi, f.ThresholdMask.Count(), f.ObjectMask.Count())
	return nil
}

func runTrain(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML configuration file")
	data := fs.String("data", "", "dataset directory")
	out := fs.String("out", "models", "directory for mlp_fold<N>.json")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *data == "" {
		return fmt.Errorf("%w: train requires -data", errUsage)
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	log := cfg.Logger(stderr)

	ds, err := dataset.Open(*data, cfg.Pipeline(), cfg.Train.Augment)
	if err != nil {
		return err
	}
	log.Info().Int("pairs", len(ds.Pairs)).Int("samples", ds.Len()).Msg("dataset opened")

	t := &train.Trainer{
		Data:    ds,
		Options: train.OptionsFromConfig(cfg),
		Exec:    execFor(cfg, log),
		OutDir:  *out,
	}
	results, err := t.Run(ctx)
	if len(results) > 0 {
		if werr := report.WriteHistory(stdout, results); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func runSegment(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("segment", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML configuration file")
	modelPath := fs.String("model", "", "saved classifier")
	truthPath := fs.String("truth", "", "optional ground-truth mask")
	out := fs.String("out", ".", "output directory")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *modelPath == "" || fs.NArg() != 1 {
		return fmt.Errorf("%w: segment requires -model and one image", errUsage)
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	log := logging.Component(cfg.Logger(stderr), "segment")

	model, err := mlp.LoadFile(*modelPath)
	if err != nil {
		return err
	}
	cache := imaging.NewImageCache()
	path := fs.Arg(0)
	raw, err := cache.LoadGrid(path)
	if err != nil {
		return err
	}
	f, err := cfg.Pipeline().Apply(raw)
	if err != nil {
		return err
	}
	seg, err := segment.Segmenter{Model: model}.Segment(f.Feature)
	if err != nil {
		return err
	}

	name := stem(path)
	if err := imaging.SaveMask(filepath.Join(*out, name+"_mask.png"), seg.Mask); err != nil {
		return err
	}
	if err := imaging.SaveGrid(filepath.Join(*out, name+"_prob.png"), seg.Foreground, 0, 1); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: threshold %.4f, %d vessel pixels of %d\n",
		name, seg.Threshold, seg.Mask.Count(), raw.Len())

	if *truthPath == "" {
		return nil
	}
	g, err := cache.LoadGrid(*truthPath)
	if err != nil {
		return fmt.Errorf("ground truth: %w", err)
	}
	truth := imaging.MaskFromGrid(g, dataset.TruthLevel)
	m, err := metrics.Evaluate(seg.Mask, truth, seg.Foreground)
	if err != nil {
		return err
	}
	overlay, err := report.Overlay(raw, seg.Mask, truth, report.DefaultPalette(), report.DefaultOpacity)
	if err != nil {
		return err
	}
	if err := imaging.SavePNG(filepath.Join(*out, name+"_overlay.png"), overlay); err != nil {
		return err
	}
	if !m.AUROC.Defined() {
		log.Warn().Msg("single-class ground truth, AUROC undefined")
	}
	s := m.Scores
	fmt.Fprintf(stdout, "dice %.4f  sensitivity %.4f  specificity %.4f  precision %.4f  iou %.4f  auroc %s  snr %s\n",
		s.Dice, s.Sensitivity, s.Specificity, s.Precision, s.IoU, m.AUROC, m.SNR)
	return nil
}

func runEvaluate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML configuration file")
	data := fs.String("data", "", "dataset directory")
	models := fs.String("models", "models", "directory holding mlp_fold<N>.json")
	fold := fs.Int("fold", 0, "fold to evaluate (0 = all)")
	asJSON := fs.Bool("json", false, "write JSON instead of tables")
	render := fs.String("render", "", "write overlays and maps to this directory")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *data == "" {
		return fmt.Errorf("%w: evaluate requires -data", errUsage)
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	exec := execFor(cfg, cfg.Logger(stderr))

	ds, err := dataset.Open(*data, cfg.Pipeline(), cfg.Train.Augment)
	if err != nil {
		return err
	}
	folds := []int{*fold}
	if *fold == 0 {
		folds = folds[:0]
		for k := 1; k <= cfg.Train.Folds; k++ {
			folds = append(folds, k)
		}
	}

	type foldEvaluation struct {
		Fold int `json:"fold"`
		*train.Evaluation
	}
	var all []foldEvaluation
	for _, k := range folds {
		model, val, err := train.LoadFold(*models, k, ds, cfg.Train.Folds, cfg.Train.Seed)
		if err != nil {
			return err
		}
		eval, err := train.Evaluate(ctx, model, ds, val, exec)
		if err != nil {
			return fmt.Errorf("fold %d: %w", k, err)
		}
		if *render != "" {
			if err := report.Render(filepath.Join(*render, fmt.Sprintf("fold%d", k)), eval, ds); err != nil {
				return err
			}
		}
		if *asJSON {
			all = append(all, foldEvaluation{Fold: k, Evaluation: eval})
			continue
		}
		fmt.Fprintf(stdout, "== fold %d ==\n", k)
		if err := report.WriteText(stdout, eval); err != nil {
			return err
		}
		fmt.Fprintln(stdout)
	}
	if *asJSON {
		return report.WriteJSON(stdout, all)
	}
	return nil
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML configuration file")
	modelPath := fs.String("model", "", "default classifier")
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	// stdout is reserved for the protocol.
	log := cfg.Logger(stderr)
	log.Info().Str("version", Version).Str("commit", GitCommit).Msg("starting MCP server")

	server.Version = Version
	srv, err := server.New(server.Options{
		Pipeline:  cfg.Pipeline(),
		ModelPath: *modelPath,
		Folds:     cfg.Train.Folds,
		Augment:   cfg.Train.Augment,
		Exec:      execFor(cfg, log),
	})
	if err != nil {
		return err
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
