package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/coincount/internal/config"
	"github.com/MeKo-Tech/coincount/internal/fetch"
	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/MeKo-Tech/coincount/internal/utils"
	"github.com/spf13/cobra"
)

func newCountCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count <image|url>...",
		Short: "Count objects in images or downloaded URLs",
		Long: `Count objects in one or more image files or http(s) URLs.

Each input is segmented and its objects counted. Results are printed as text,
JSON or CSV; annotated images with the fitted ellipses and the count can be
written to a directory.

Examples:
  coincount count coins.jpg
  coincount count a.png b.png --format csv --output counts.csv
  coincount count https://example.com/coins.jpg --annotated-dir out/
  coincount count coins.jpg --area-min 2000 --area-max 50000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd.Context(), cmd.OutOrStdout(), a.cfg, args)
		},
	}

	f := cmd.Flags()
	f.StringP("format", "f", "text", "output format: text, json or csv")
	f.StringP("output", "o", "", "write results to this file instead of stdout")
	f.String("annotated-dir", "", "write <name>_annotated.<ext> images to this directory")
	f.String("mask-dir", "", "write <name>_mask.png binary masks to this directory")
	f.String("image-format", "jpeg", "annotated image format: jpeg or png")
	f.String("locale", "en", "locale for numbers in text output (BCP 47, e.g. en, de)")
	addSegmentationFlags(cmd)

	a.register(cmd, map[string]string{
		"output.format":        "format",
		"output.file":          "output",
		"output.annotated_dir": "annotated-dir",
		"output.mask_dir":      "mask-dir",
		"output.image_format":  "image-format",
		"output.locale":        "locale",
	})
	a.register(cmd, segmentationFlagKeys)
	return cmd
}

// segmentationFlagKeys maps viper keys to the shared segmentation flags.
var segmentationFlagKeys = map[string]string{
	"segmentation.blur_kernel_size":   "blur-kernel",
	"segmentation.adaptive_window":    "adaptive-window",
	"segmentation.adaptive_bias":      "adaptive-bias",
	"segmentation.closing_iterations": "closing-iterations",
	"segmentation.area_min":           "area-min",
	"segmentation.area_max":           "area-max",
	"annotation.enabled":              "annotate",
	"annotation.ellipse_color":        "ellipse-color",
	"annotation.text_color":           "text-color",
}

// addSegmentationFlags registers the pipeline tuning flags shared by count and batch.
func addSegmentationFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	f := cmd.Flags()
	f.Int("blur-kernel", d.Segmentation.BlurKernelSize, "Gaussian blur kernel size (odd)")
	f.Int("adaptive-window", d.Segmentation.AdaptiveWindow, "adaptive threshold window (odd, >= 3)")
	f.Float64("adaptive-bias", d.Segmentation.AdaptiveBias, "constant subtracted from the local mean")
	f.Int("closing-iterations", d.Segmentation.ClosingIterations, "morphological closing iterations")
	f.Float64("area-min", d.Segmentation.AreaMin, "exclusive lower bound of accepted contour area (px)")
	f.Float64("area-max", d.Segmentation.AreaMax, "exclusive upper bound of accepted contour area (px)")
	f.Bool("annotate", d.Annotation.Enabled, "draw ellipses and the count on the output image")
	f.String("ellipse-color", d.Annotation.EllipseColor, "ellipse colour (hex)")
	f.String("text-color", d.Annotation.TextColor, "count text colour (hex)")
}

func runCount(ctx context.Context, stdout io.Writer, cfg *config.Config, inputs []string) error {
	pc := cfg.ToPipelineConfig()
	pl, err := pipeline.NewBuilderFromConfig(pc).Build()
	if err != nil {
		return fmt.Errorf("failed to build counting pipeline: %w", err)
	}
	defer func() { _ = pl.Close() }()

	results := make([]*pipeline.CountResult, 0, len(inputs))
	for _, input := range inputs {
		var res *pipeline.CountResult
		if fetch.IsURL(input) {
			res, err = pl.ProcessURL(ctx, input)
		} else {
			res, err = pl.ProcessFile(ctx, input)
		}
		if err != nil {
			return fmt.Errorf("counting %s: %w", input, err)
		}
		slog.Debug("Counted image", "source", input, "objects", res.ObjectCount,
			"total_ms", res.Processing.TotalNs/1e6)

		if err := writeSideOutputs(cfg.Output, input, res, pc.JPEGQuality); err != nil {
			return err
		}
		results = append(results, res)
	}

	out, err := formatResults(results, cfg.Output.Format, cfg.Output.Locale)
	if err != nil {
		return err
	}
	if cfg.Output.File != "" {
		if err := os.WriteFile(cfg.Output.File, []byte(out), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		slog.Info("Results written", "file", cfg.Output.File)
		return nil
	}
	_, err = io.WriteString(stdout, out)
	return err
}

// formatResults renders results in the configured output format.
func formatResults(results []*pipeline.CountResult, format, locale string) (string, error) {
	switch format {
	case "json":
		if len(results) == 1 {
			s, err := pipeline.ToJSON(results[0])
			return s + "\n", err
		}
		s, err := pipeline.ToJSONMany(results)
		return s + "\n", err
	case "csv":
		return pipeline.ToCSV(results...)
	default:
		var sb strings.Builder
		for _, res := range results {
			text, err := pipeline.ToPlainText(res, locale)
			if err != nil {
				return "", err
			}
			sb.WriteString(text)
			sb.WriteString("\n")
		}
		return sb.String(), nil
	}
}

// writeSideOutputs saves the annotated image and mask when directories are set.
func writeSideOutputs(out config.OutputConfig, input string, res *pipeline.CountResult, quality int) error {
	stem := inputStem(input)
	if out.AnnotatedDir != "" && res.Annotated != nil {
		ext := ".jpg"
		if strings.EqualFold(out.ImageFormat, "png") {
			ext = ".png"
		}
		if err := saveInto(out.AnnotatedDir, stem+"_annotated"+ext, res.Annotated, quality); err != nil {
			return err
		}
	}
	if out.MaskDir != "" && res.Mask != nil {
		if err := saveInto(out.MaskDir, stem+"_mask.png", res.Mask, 0); err != nil {
			return err
		}
	}
	return nil
}

func saveInto(dir, name string, img image.Image, quality int) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := utils.SaveImage(target, img, quality); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	slog.Debug("Wrote image", "file", target)
	return nil
}

// inputStem derives an output file stem from a path or URL.
func inputStem(input string) string {
	base := filepath.Base(input)
	if fetch.IsURL(input) {
		base = "image"
		if u, err := url.Parse(input); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
			base = path.Base(u.Path)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
