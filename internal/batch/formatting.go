package batch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
)

// Summary aggregates a batch run.
type Summary struct {
	TotalImages  int `json:"total_images"`
	Successful   int `json:"successful"`
	Failed       int `json:"failed"`
	TotalObjects int `json:"total_objects"`
}

func summarize(items []Item) Summary {
	s := Summary{TotalImages: len(items)}
	for _, it := range items {
		if it.Error != "" || it.Result == nil {
			s.Failed++
			continue
		}
		s.Successful++
		s.TotalObjects += it.Result.ObjectCount
	}
	return s
}

// formatBatchResults renders items as text (the default), json or csv.
func formatBatchResults(items []Item, format, locale string) (string, error) {
	switch format {
	case "json":
		return formatJSON(items)
	case "csv":
		return formatCSV(items)
	default:
		return formatText(items, locale)
	}
}

func formatJSON(items []Item) (string, error) {
	out := struct {
		Images  []Item  `json:"images"`
		Summary Summary `json:"summary"`
	}{Images: items, Summary: summarize(items)}
	if out.Images == nil {
		out.Images = []Item{}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

// formatCSV emits the per-object rows of successful items. Failed files have
// no geometry and are reported by the text and json formats only.
func formatCSV(items []Item) (string, error) {
	var results []*pipeline.CountResult
	for _, it := range items {
		if it.Error == "" && it.Result != nil {
			results = append(results, it.Result)
		}
	}
	return pipeline.ToCSV(results...)
}

func formatText(items []Item, locale string) (string, error) {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		if it.Error != "" || it.Result == nil {
			fmt.Fprintf(&sb, "%s: error: %s\n", it.Path, it.Error)
			continue
		}
		text, err := pipeline.ToPlainText(it.Result, locale)
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	s := summarize(items)
	fmt.Fprintf(&sb, "\nTotal: %d objects in %d images (%d failed)\n", s.TotalObjects, s.Successful, s.Failed)
	return sb.String(), nil
}
