package cmd

import (
	"fmt"
	"strings"

	"golang-conciliation-service/internal/testgen"
	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	generateDir    string
	generateConfig = testgen.DefaultConfig()
)

// generateCmd writes a synthetic scenario with known outcome
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write synthetic exports and ledgers for trying a conciliation",
	Long: `Generate writes a status export, a confirmation export, a receipt export
and one ledger per currency into a directory. Records come in groups that end
FULL, AMOUNT_ONLY or UNMATCHED, and the same seed always produces the same files.

Examples:
  conciliator generate --output-dir ./muestra
  conciliator generate --output-dir ./muestra --seed 7 --count 500 --usd-ratio 0.3`,

	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&generateDir, "output-dir", "d", "", "directory for the generated files (required)")
	generateCmd.Flags().Int64Var(&generateConfig.Seed, "seed", generateConfig.Seed, "random seed")
	generateCmd.Flags().IntVarP(&generateConfig.Count, "count", "n", generateConfig.Count, "number of record groups")
	generateCmd.Flags().Float64Var(&generateConfig.FullRatio, "full-ratio", generateConfig.FullRatio, "share of groups matching on every key")
	generateCmd.Flags().Float64Var(&generateConfig.FallbackRatio, "fallback-ratio", generateConfig.FallbackRatio, "share of groups matching on amount only")
	generateCmd.Flags().Float64Var(&generateConfig.USDRatio, "usd-ratio", generateConfig.USDRatio, "share of groups in US dollars")

	generateCmd.MarkFlagRequired("output-dir")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	g, err := testgen.NewGenerator(generateConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "generate", nil, err)
	}
	scenario := g.Generate()

	files, err := testgen.WriteFiles(generateDir, scenario)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, generateDir, err)
	}

	logger.GetGlobalLogger().WithFields(logger.Fields{
		"seed":     scenario.Seed,
		"full":     scenario.Groups[testgen.GroupFull],
		"fallback": scenario.Groups[testgen.GroupFallback],
		"orphan":   scenario.Groups[testgen.GroupOrphan],
	}).Info("Scenario generated")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generated %d groups (seed %d) in %s\n", generateConfig.Count, scenario.Seed, generateDir)
	fmt.Fprintf(out, "\nconciliator reconcile --requests %s --confirmations %s --receipts %s --ledger %s\n",
		files.Status, files.Confirmations, files.Receipts, strings.Join(files.Ledgers, " --ledger "))
	return nil
}
