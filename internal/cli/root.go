package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rohmanhakim/spec-harvester/internal/build"
	"github.com/rohmanhakim/spec-harvester/internal/config"
	"github.com/rohmanhakim/spec-harvester/internal/storage"
	"github.com/rohmanhakim/spec-harvester/pkg/fileutil"
)

var (
	cfgFile        string
	category       string
	mode           string
	dataDir        string
	fixturesDir    string
	hostPolicyFile string
	maxRounds      int
	maxDuration    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "spec-harvester",
	Short: "Harvests vetted product specs from the open web.",
	Long: `spec-harvester runs the per-product extraction convergence loop:
plan sources, fetch politely through a tiered fetcher hierarchy, verify
page identity, merge extracted candidates by weighted consensus, and emit
a normalized spec artifact with full evidence provenance.`,
}

var runCmd = &cobra.Command{
	Use:   "run <productId>",
	Short: "Run one product to completion or cancellation.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProduct(args[0], 0)
	},
}

var runUntilCmd = &cobra.Command{
	Use:   "run-until <productId>",
	Short: "Run one product with an explicit round bound.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProduct(args[0], maxRounds)
	},
}

var recompileCmd = &cobra.Command{
	Use:   "recompile",
	Short: "Request a workbook recompile; rules are re-read on the next run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		marker := filepath.Join(cfg.DataDir(), cfg.Category(), "recompile.requested")
		stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
		if writeErr := fileutil.WriteFileAtomic(marker, []byte(stamp)); writeErr != nil {
			return fmt.Errorf("write recompile marker: %w", writeErr)
		}
		fmt.Printf("recompile requested: %s\n", marker)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("spec-harvester %s (built %s)\n", build.FullVersion(), build.BuildTime)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (JSON)")
	rootCmd.PersistentFlags().StringVar(&category, "category", "mice", "product category")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "fetcher mode: dryrun | http | browser-crawler | browser-full")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "root directory for frontier, intel, and artifacts")
	rootCmd.PersistentFlags().StringVar(&fixturesDir, "fixtures-dir", "", "fixture directory for dryrun fetches")
	rootCmd.PersistentFlags().StringVar(&hostPolicyFile, "host-policy-file", "", "per-host policy map (YAML)")
	runUntilCmd.Flags().IntVar(&maxRounds, "max-rounds", 8, "maximum convergence rounds")
	rootCmd.PersistentFlags().DurationVar(&maxDuration, "max-duration", 0, "per-product time budget")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runUntilCmd)
	rootCmd.AddCommand(recompileCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return config.Config{}, err
		}
		return applyFlagOverrides(cfg)
	}
	cfg, err := config.FromEnv(category)
	if err != nil {
		return config.Config{}, err
	}
	return applyFlagOverrides(cfg)
}

func applyFlagOverrides(cfg config.Config) (config.Config, error) {
	builder := &cfg
	if mode != "" {
		builder = builder.WithMode(config.FetchMode(strings.ToLower(mode)))
	}
	if dataDir != "" {
		builder = builder.WithDataDir(dataDir)
	}
	if fixturesDir != "" {
		builder = builder.WithFixturesDir(fixturesDir)
	}
	if maxDuration > 0 {
		builder = builder.WithMaxProductDuration(maxDuration)
	}
	if hostPolicyFile != "" {
		if err := builder.LoadHostPolicies(hostPolicyFile); err != nil {
			return config.Config{}, err
		}
	}
	return builder.Build()
}

func runProduct(productID string, roundBound int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	h, err := buildHarness(cfg, productID)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var summary storage.RunSummary
	if roundBound > 0 {
		summary, err = h.controller.RunUntilComplete(ctx, roundBound)
	} else {
		summary, err = h.controller.RunOne(ctx)
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", productID, err)
	}

	printSummary(productID, summary)
	return nil
}

func printSummary(productID string, summary storage.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("run summary: " + productID)
	t.AppendRows([]table.Row{
		{"validated", summary.Validated},
		{"reason", summary.ValidatedReason},
		{"confidence", fmt.Sprintf("%.2f", summary.Confidence)},
		{"required completeness", fmt.Sprintf("%.1f%%", summary.CompletenessRequiredPercent)},
		{"overall coverage", fmt.Sprintf("%.1f%%", summary.CoverageOverallPercent)},
		{"missing required", strings.Join(summary.MissingRequiredFields, ", ")},
		{"critical below target", strings.Join(summary.CriticalFieldsBelowPassTarget, ", ")},
	})
	t.Render()
}
