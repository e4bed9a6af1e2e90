package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/coincount/internal/batch"
	"github.com/MeKo-Tech/coincount/internal/config"
	"github.com/spf13/cobra"
)

func newBatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <dir|file>...",
		Short: "Count objects in many images in parallel",
		Long: `Count objects in every supported image (jpg, jpeg, png, bmp, tif, tiff, webp)
found in the given files and directories, using a pool of workers.

Examples:
  coincount batch photos/
  coincount batch photos/ --recursive --workers 8 --annotated-dir out/
  coincount batch photos/ --include 'coins_*' --exclude '*_annotated.*'
  coincount batch a.jpg b.jpg --format json --output results.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bc := configToBatchConfig(a.cfg, cmd)
			res, err := batch.ProcessBatch(cmd.Context(), args, bc)
			if res != nil {
				if saveErr := res.SaveResults(cmd.OutOrStdout(), bc.Format, a.cfg.Output.Locale, bc.OutputFile); saveErr != nil && err == nil {
					err = saveErr
				}
				if stats, _ := cmd.Flags().GetBool("stats"); stats && !bc.Quiet {
					res.PrintStats(cmd.ErrOrStderr())
				}
			}
			if err != nil {
				return err
			}
			if failed := res.Failed(); failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(res.Items))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.StringSlice("include", nil, "only count files whose name matches one of these globs")
	f.StringSlice("exclude", nil, "skip files whose name matches one of these globs")
	f.IntP("workers", "w", config.DefaultConfig().Batch.Workers, "number of parallel workers")
	f.Bool("continue-on-error", false, "record per-file errors instead of aborting")
	f.StringP("format", "f", "text", "output format: text, json or csv")
	f.StringP("output", "o", "", "write results to this file instead of stdout")
	f.String("annotated-dir", "", "write <name>_annotated.<ext> images to this directory")
	f.String("mask-dir", "", "write <name>_mask.png binary masks to this directory")
	f.String("image-format", "jpeg", "annotated image format: jpeg or png")
	f.Bool("progress", false, "show a progress bar on stderr")
	f.BoolP("quiet", "q", false, "suppress progress and statistics")
	f.Bool("stats", false, "print processing statistics on stderr")
	addSegmentationFlags(cmd)

	a.register(cmd, map[string]string{
		"batch.recursive":         "recursive",
		"batch.include":           "include",
		"batch.exclude":           "exclude",
		"batch.workers":           "workers",
		"batch.continue_on_error": "continue-on-error",
		"output.format":           "format",
		"output.file":             "output",
		"output.annotated_dir":    "annotated-dir",
		"output.mask_dir":         "mask-dir",
		"output.image_format":     "image-format",
	})
	a.register(cmd, segmentationFlagKeys)
	return cmd
}

// configToBatchConfig maps the resolved configuration to batch.Config. Flags
// reach cfg through their viper bindings.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) *batch.Config {
	bc := batch.DefaultConfig()
	bc.Pipeline = cfg.ToPipelineConfig()
	bc.Recursive = cfg.Batch.Recursive
	bc.IncludePatterns = cfg.Batch.Include
	bc.ExcludePatterns = cfg.Batch.Exclude
	bc.Workers = cfg.Batch.Workers
	bc.ContinueOnError = cfg.Batch.ContinueOnError
	bc.Format = cfg.Output.Format
	bc.OutputFile = cfg.Output.File
	bc.AnnotatedDir = cfg.Output.AnnotatedDir
	bc.MaskDir = cfg.Output.MaskDir
	bc.ImageFormat = cfg.Output.ImageFormat
	bc.ShowProgress, _ = cmd.Flags().GetBool("progress")
	bc.Quiet, _ = cmd.Flags().GetBool("quiet")
	return bc
}
