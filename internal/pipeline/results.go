package pipeline

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/coincount/internal/utils"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ToJSON serializes a single CountResult to pretty JSON.
func ToJSON(res *CountResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONMany serializes multiple results to pretty JSON.
func ToJSONMany(results []*CountResult) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var csvHeader = []string{
	"source", "object_count", "index", "center_x", "center_y",
	"major_axis", "minor_axis", "angle", "area", "circularity",
}

// ToCSV exports one row per counted object. Images without objects get a
// single row with empty geometry so their count is still visible.
func ToCSV(results ...*CountResult) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(csvHeader)
	for _, res := range results {
		if res == nil {
			return "", errors.New("nil result")
		}
		count := strconv.Itoa(res.ObjectCount)
		if len(res.Objects) == 0 {
			_ = w.Write([]string{res.Source, count, "", "", "", "", "", "", "", ""})
			continue
		}
		for _, o := range res.Objects {
			_ = w.Write([]string{
				res.Source,
				count,
				strconv.Itoa(o.Index),
				fmt.Sprintf("%.2f", o.Center.X),
				fmt.Sprintf("%.2f", o.Center.Y),
				fmt.Sprintf("%.2f", o.MajorAxis),
				fmt.Sprintf("%.2f", o.MinorAxis),
				fmt.Sprintf("%.2f", o.Angle),
				fmt.Sprintf("%.1f", o.Area),
				fmt.Sprintf("%.3f", o.Circularity),
			})
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ToPlainText renders a human readable summary. Numbers are formatted for
// locale (a BCP 47 tag such as "en" or "de"); an unknown tag falls back to
// English.
func ToPlainText(res *CountResult, locale string) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		tag = language.English
	}
	p := message.NewPrinter(tag)

	var sb strings.Builder
	name := res.Source
	if name == "" {
		name = "image"
	}
	sb.WriteString(p.Sprintf("%s: %d objects (%dx%d)\n", name, res.ObjectCount, res.Width, res.Height))
	for _, o := range res.Objects {
		sb.WriteString(p.Sprintf("  #%d center=(%.1f, %.1f) axes=%.1fx%.1f angle=%.1f area=%.0f\n",
			o.Index+1, o.Center.X, o.Center.Y, o.MajorAxis, o.MinorAxis, o.Angle, o.Area))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// AnnotatedBytes encodes the annotated image as "jpeg" or "png".
func AnnotatedBytes(res *CountResult, format string, quality int) ([]byte, error) {
	if res == nil || res.Annotated == nil {
		return nil, errors.New("no annotated image")
	}
	return utils.EncodeImageBytes(res.Annotated, format, quality)
}

// AnnotatedBase64 encodes the annotated image and returns it base64 encoded.
func AnnotatedBase64(res *CountResult, format string, quality int) (string, error) {
	data, err := AnnotatedBytes(res, format, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ValidateCountResult performs simple consistency checks.
func ValidateCountResult(res *CountResult) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", res.Width, res.Height)
	}
	if res.ObjectCount != len(res.Objects) {
		return fmt.Errorf("object count %d does not match %d objects", res.ObjectCount, len(res.Objects))
	}
	for i, o := range res.Objects {
		if o.MajorAxis < o.MinorAxis || o.MinorAxis <= 0 {
			return fmt.Errorf("object %d has invalid axes %.2f/%.2f", i, o.MajorAxis, o.MinorAxis)
		}
		if o.Angle < 0 || o.Angle >= 180 {
			return fmt.Errorf("object %d angle %.2f out of range", i, o.Angle)
		}
	}
	return nil
}
