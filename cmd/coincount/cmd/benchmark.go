package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/coincount/internal/benchmark"
	"github.com/MeKo-Tech/coincount/internal/utils"
	"github.com/spf13/cobra"
)

func newBenchmarkCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark <image>...",
		Short: "Time each counting stage on sample images",
		Long: `Run every stage of the counting pipeline repeatedly on the given images and
report the mean duration and allocation per run.

Examples:
  coincount benchmark coins.jpg
  coincount benchmark coins.jpg table.png --iterations 20`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iterations, _ := cmd.Flags().GetInt("iterations")
			out := cmd.OutOrStdout()
			for _, path := range args {
				img, _, err := utils.LoadImage(path)
				if err != nil {
					return fmt.Errorf("loading %s: %w", path, err)
				}
				suite, closeSuite, err := benchmark.NewStageSuite(img, a.cfg.ToPipelineConfig())
				if err != nil {
					return fmt.Errorf("preparing %s: %w", path, err)
				}
				b := img.Bounds()
				_, _ = fmt.Fprintf(out, "%s (%dx%d)\n", path, b.Dx(), b.Dy())
				suite.RunAll(cmd.Context(), iterations)
				suite.PrintResults(out)
				_, _ = fmt.Fprintln(out)
				_ = closeSuite()
				for _, r := range suite.Results() {
					if r.Error != nil {
						return fmt.Errorf("%s: stage %s: %w", path, r.Name, r.Error)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntP("iterations", "n", 10, "runs per stage")
	addSegmentationFlags(cmd)
	a.register(cmd, segmentationFlagKeys)
	return cmd
}
