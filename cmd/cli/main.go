package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"speccoh/adapters/excel"
	"speccoh/adapters/fits"
	"speccoh/adapters/plot"
	"speccoh/adapters/postgres"
	"speccoh/app"
	"speccoh/domain/coherence"
	"speccoh/domain/spectrum"
	"speccoh/internal"
	"speccoh/internal/cindex"
	"speccoh/internal/config"
	apperrors "speccoh/internal/errors"
	"speccoh/internal/report"
	"speccoh/internal/testkit"
	"speccoh/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "speccoh",
		Short: "Windowed coherence analysis for 1-D spectra",
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newBatchCmd(),
		newGenerateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// analyzeOptions carries the flags shared by analyze and batch
type analyzeOptions struct {
	window        int
	step          int
	threshold     float64
	autoThreshold bool
	format        string
	winered       bool
	save          bool
	jsonOut       bool
}

func addAnalyzeFlags(cmd *cobra.Command, opts *analyzeOptions) {
	cmd.Flags().IntVarP(&opts.window, "window", "w", 200, "Window length in samples")
	cmd.Flags().IntVarP(&opts.step, "step", "s", 100, "Step between window starts")
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", 0.5, "Anomaly threshold in [0,1]")
	cmd.Flags().BoolVar(&opts.autoThreshold, "auto-threshold", false, "Derive the threshold from the series instead of --threshold")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "auto", "Input format: fits, csv, xlsx or auto (by extension)")
	cmd.Flags().BoolVar(&opts.winered, "winered", false, "Use the WINERED FITS reader (mask and order handling)")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Persist the run (requires DATABASE_URL)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the full report as JSON")
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions
	var plotPath, histPath, reportPath string

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one spectrum file",
		Long: `Analyze computes the windowed coherence index of a spectrum file
(FITS, CSV or XLSX) and prints a summary.

Example: speccoh analyze order44.fits --window 200 --step 100 --auto-threshold --plot order44.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), args[0], opts, plotPath, histPath, reportPath)
		},
	}

	addAnalyzeFlags(cmd, &opts)
	cmd.Flags().StringVar(&plotPath, "plot", "", "Write the c-index series chart to this image file")
	cmd.Flags().StringVar(&histPath, "histogram", "", "Write the c-index distribution chart to this image file")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a report to this file (.md or .html)")

	return cmd
}

func newBatchCmd() *cobra.Command {
	var opts analyzeOptions
	var pattern string
	var workers int

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Analyze every matching spectrum file in a directory",
		Long: `Batch analyzes all files in a directory that match the pattern.
Failures are reported per file and do not stop the rest of the batch.

Example: speccoh batch ./night_042 --pattern "*.fits" --workers 8 --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), args[0], pattern, workers, opts)
		},
	}

	addAnalyzeFlags(cmd, &opts)
	defaults := config.BatchDefaults()
	cmd.Flags().StringVarP(&pattern, "pattern", "p", defaults.Pattern, "Glob pattern relative to the directory")
	cmd.Flags().IntVar(&workers, "workers", defaults.Workers, "Concurrent analyses")

	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		samples   int
		seed      int64
		lines     int
		noise     float64
		badPixels int
		rough     bool
	)

	cmd := &cobra.Command{
		Use:   "generate <file>",
		Short: "Write a synthetic spectrum as CSV for testing",
		Long: `Generate writes a deterministic synthetic spectrum to a CSV file.
The same seed always produces the same spectrum.

Example: speccoh generate demo.csv --samples 4096 --seed 7 --rough`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(args[0], samples, seed, lines, noise, badPixels, rough)
		},
	}

	cmd.Flags().IntVarP(&samples, "samples", "n", 2048, "Number of flux samples")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().IntVar(&lines, "lines", 12, "Absorption lines to inject")
	cmd.Flags().Float64Var(&noise, "noise", 10.0, "Gaussian noise sigma")
	cmd.Flags().IntVar(&badPixels, "bad-pixels", 4, "Samples replaced with NaN")
	cmd.Flags().BoolVar(&rough, "rough", false, "Inject an incoherent chunk for anomaly testing")

	return cmd
}

func runAnalyze(ctx context.Context, path string, opts analyzeOptions, plotPath, histPath, reportPath string) error {
	batch, cleanup, err := buildBatchService(opts, 1)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := batch.AnalyzeFile(ctx, path, app.BatchRequest{
		Params:        coherence.Params{Window: opts.window, Step: opts.step},
		Threshold:     opts.threshold,
		AutoThreshold: opts.autoThreshold,
		Save:          opts.save,
	})
	if err != nil {
		return err
	}

	if opts.jsonOut {
		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(out))
	} else {
		printReport(rep)
	}

	if plotPath != "" {
		if err := plot.NewRenderer().Series(rep, plotPath); err != nil {
			return apperrors.RenderFailed("series chart", err)
		}
		fmt.Printf("Wrote series chart to %s\n", plotPath)
	}
	if histPath != "" {
		if err := plot.NewRenderer().Histogram(rep, histPath, 20); err != nil {
			return apperrors.RenderFailed("histogram", err)
		}
		fmt.Printf("Wrote histogram to %s\n", histPath)
	}
	if reportPath != "" {
		if err := writeReportFile(rep, reportPath); err != nil {
			return err
		}
		fmt.Printf("Wrote report to %s\n", reportPath)
	}

	return nil
}

func runBatch(ctx context.Context, dir, pattern string, workers int, opts analyzeOptions) error {
	batch, cleanup, err := buildBatchService(opts, workers)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := batch.RunBatch(ctx, app.BatchRequest{
		Dir:           dir,
		Pattern:       pattern,
		Params:        coherence.Params{Window: opts.window, Step: opts.step},
		Threshold:     opts.threshold,
		AutoThreshold: opts.autoThreshold,
		Save:          opts.save,
	})
	if err != nil {
		return err
	}

	if opts.jsonOut {
		out, jsonErr := json.MarshalIndent(result, "", "  ")
		if jsonErr != nil {
			return fmt.Errorf("failed to encode batch result: %w", jsonErr)
		}
		fmt.Println(string(out))
		return nil
	}

	for _, item := range result.Items {
		if item.Err != nil {
			fmt.Printf("FAIL  %-40s %v\n", filepath.Base(item.Path), item.Err)
			continue
		}
		fmt.Printf("OK    %-40s %-9s mean=%.4f windows=%d regions=%d\n",
			filepath.Base(item.Path), item.Report.Grade,
			item.Report.Summary.Mean, item.Report.Summary.N, len(item.Report.Regions))
	}

	fmt.Printf("\nAnalyzed %d, failed %d (%d ms)\n", result.Analyzed, result.Failed, result.RuntimeMs)

	if result.Analyzed == 0 && result.Failed > 0 {
		return fmt.Errorf("all %d files failed", result.Failed)
	}
	return nil
}

func runGenerate(path string, samples int, seed int64, lines int, noise float64, badPixels int, rough bool) error {
	cfg := testkit.DefaultSpectrumConfig()
	cfg.Length = samples
	cfg.Seed = seed
	cfg.LineCount = lines
	cfg.NoiseSigma = noise
	cfg.BadPixels = badPixels

	gen := testkit.NewSpectrumGenerator(cfg)
	var spec spectrum.Spectrum
	if rough {
		spec = gen.GenerateRough()
	} else {
		spec = gen.Generate()
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"wavelength", "flux", "flux_err"}); err != nil {
		return err
	}
	for i, flux := range spec.Flux {
		row := []string{
			strconv.FormatFloat(spec.Wavelength[i], 'g', -1, 64),
			strconv.FormatFloat(flux, 'g', -1, 64),
			"",
		}
		if len(spec.FluxErr) == len(spec.Flux) {
			row[2] = strconv.FormatFloat(spec.FluxErr[i], 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("Wrote %s: %d samples, target %s, seed %d\n", path, len(spec.Flux), spec.Target, seed)
	return nil
}

// buildBatchService wires loaders, the engine and optional persistence into
// a batch service. The cleanup func closes the database connection if one
// was opened.
func buildBatchService(opts analyzeOptions, workers int) (*app.BatchService, func(), error) {
	cleanup := func() {}

	var repo ports.RunRepository
	if opts.save {
		db, err := openDatabase()
		if err != nil {
			return nil, nil, err
		}
		repo = postgres.NewRunRepository(db)
		cleanup = func() { db.Close() }
	}

	logger := internal.NewLogger(internal.LogLevelWarn)
	analysis := app.NewAnalysisService(cindex.NewEngine(), repo, logger)

	loaders, err := buildLoaders(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return app.NewBatchService(analysis, loaders, workers, logger), cleanup, nil
}

// buildLoaders maps --format to a loader registry. "auto" dispatches by
// extension; anything else forces one reader for every file.
func buildLoaders(opts analyzeOptions) (*app.LoaderRegistry, error) {
	var fitsReader ports.SpectrumLoader = fits.NewReader()
	if opts.winered {
		fitsReader = fits.NewWineredReader()
	}

	switch strings.ToLower(opts.format) {
	case "", "auto":
		return app.NewLoaderRegistry(excel.NewReader(), fitsReader), nil
	case "fits":
		return app.NewForcedRegistry(fitsReader), nil
	case "csv", "xlsx":
		return app.NewForcedRegistry(excel.NewFormatReader(opts.format)), nil
	default:
		return nil, fmt.Errorf("unknown format %q (expected fits, csv, xlsx or auto)", opts.format)
	}
}

func openDatabase() (*sqlx.DB, error) {
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded environment from .env")
	}

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, fmt.Errorf("--save requires DATABASE_URL to be set")
	}

	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func printReport(rep *coherence.Report) {
	name := rep.Target
	if name == "" {
		name = rep.Source
	}

	fmt.Printf("Target:     %s\n", name)
	if rep.Instrument != "" {
		fmt.Printf("Instrument: %s\n", rep.Instrument)
	}
	if rep.SNR > 0 {
		fmt.Printf("Est. SNR:   %.1f\n", rep.SNR)
	}
	fmt.Printf("Grade:      %s\n", rep.Grade)
	fmt.Printf("Windows:    %d (window=%d step=%d)\n", rep.Summary.N, rep.Params.Window, rep.Params.Step)
	fmt.Printf("C-Index:    mean=%.4f std=%.4f min=%.4f max=%.4f\n",
		rep.Summary.Mean, rep.Summary.Std, rep.Summary.Min, rep.Summary.Max)
	fmt.Printf("Threshold:  %.4f\n", rep.Threshold)

	if len(rep.Regions) == 0 {
		fmt.Println("Regions:    none")
	} else {
		fmt.Printf("Regions:    %d\n", len(rep.Regions))
		for _, r := range rep.Regions {
			fmt.Printf("  [%d..%d] windows=%d min=%.4f mean=%.4f\n",
				r.Start, r.End, r.WindowCount, r.MinCIndex, r.MeanCIndex)
		}
	}

	for _, warn := range rep.Warnings {
		fmt.Printf("Warning:    %s at %d: %s\n", warn.Code, warn.Position, warn.Message)
	}
}

func writeReportFile(rep *coherence.Report, path string) error {
	md := report.Markdown(rep)

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		data = report.RenderHTML([]byte(md))
	default:
		data = []byte(md)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
