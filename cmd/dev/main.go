package main

import (
	"context"
	"fmt"
	"os"

	"speccoh/app"
	"speccoh/domain/coherence"
	"speccoh/domain/spectrum"
	"speccoh/internal"
	"speccoh/internal/cindex"
	"speccoh/internal/report"
	"speccoh/internal/testkit"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "speccoh-dev",
		Short: "Development tools for the coherence pipeline",
	}

	rootCmd.AddCommand(
		newDemoCmd(),
		newSmokeCmd(),
		newDeterminismCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newDemoCmd() *cobra.Command {
	var seed int64
	var samples int
	var rough bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a synthetic spectrum through the full pipeline and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), seed, samples, rough)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for the synthetic spectrum")
	cmd.Flags().IntVarP(&samples, "samples", "n", 2048, "Number of flux samples")
	cmd.Flags().BoolVar(&rough, "rough", true, "Inject an incoherent chunk so regions show up")

	return cmd
}

func newSmokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run quick end-to-end checks across several window/step combinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmoke(cmd.Context())
		},
	}
	return cmd
}

func newDeterminismCmd() *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "determinism",
		Short: "Verify that the same seed yields identical analysis results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeterminism(cmd.Context(), seed)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for the synthetic spectra")

	return cmd
}

func newAnalysisService() *app.AnalysisService {
	return app.NewAnalysisService(cindex.NewEngine(), nil, internal.NewLogger(internal.LogLevelWarn))
}

func runDemo(ctx context.Context, seed int64, samples int, rough bool) error {
	cfg := testkit.DefaultSpectrumConfig()
	cfg.Seed = seed
	cfg.Length = samples

	gen := testkit.NewSpectrumGenerator(cfg)
	var spec spectrum.Spectrum
	if rough {
		spec = gen.GenerateRough()
	} else {
		spec = gen.Generate()
	}

	rep, err := newAnalysisService().Analyze(ctx, app.AnalyzeRequest{
		Spectrum:      spec,
		Params:        coherence.Params{Window: 200, Step: 100},
		AutoThreshold: true,
	})
	if err != nil {
		return err
	}

	fmt.Println(report.Markdown(rep))
	return nil
}

func runSmoke(ctx context.Context) error {
	cfg := testkit.DefaultSpectrumConfig()
	cfg.Length = 4096
	spec := testkit.NewSpectrumGenerator(cfg).Generate()

	service := newAnalysisService()
	combos := []coherence.Params{
		{Window: 64, Step: 32},
		{Window: 200, Step: 100},
		{Window: 512, Step: 256},
		{Window: 1024, Step: 512},
	}

	fmt.Printf("%-18s %-8s %-10s %-10s %s\n", "params", "windows", "mean", "std", "grade")
	for _, p := range combos {
		rep, err := service.Analyze(ctx, app.AnalyzeRequest{
			Spectrum:      spec,
			Params:        p,
			AutoThreshold: true,
		})
		if err != nil {
			return fmt.Errorf("smoke failed for window=%d step=%d: %w", p.Window, p.Step, err)
		}
		fmt.Printf("w=%-5d s=%-8d %-8d %-10.4f %-10.4f %s\n",
			p.Window, p.Step, rep.Summary.N, rep.Summary.Mean, rep.Summary.Std, rep.Grade)
	}

	fmt.Println("\nSmoke checks passed")
	return nil
}

func runDeterminism(ctx context.Context, seed int64) error {
	service := newAnalysisService()

	run := func() (*coherence.Report, error) {
		cfg := testkit.DefaultSpectrumConfig()
		cfg.Seed = seed
		spec := testkit.NewSpectrumGenerator(cfg).Generate()
		return service.Analyze(ctx, app.AnalyzeRequest{
			Spectrum:  spec,
			Params:    coherence.Params{Window: 200, Step: 100},
			Threshold: 0.5,
		})
	}

	first, err := run()
	if err != nil {
		return err
	}
	second, err := run()
	if err != nil {
		return err
	}

	if first.Fingerprint != second.Fingerprint {
		return fmt.Errorf("determinism FAILED: fingerprints differ (%s vs %s)", first.Fingerprint, second.Fingerprint)
	}
	if len(first.Series) != len(second.Series) {
		return fmt.Errorf("determinism FAILED: series lengths differ (%d vs %d)", len(first.Series), len(second.Series))
	}
	for i := range first.Series {
		if first.Series[i].CIndex != second.Series[i].CIndex {
			return fmt.Errorf("determinism FAILED: c-index differs at window %d", i)
		}
	}

	fmt.Printf("Determinism OK: %d windows, fingerprint %s\n", len(first.Series), first.Fingerprint)
	return nil
}
