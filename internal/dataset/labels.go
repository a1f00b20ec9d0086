package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
)

// ParseLabels parses a Kaggle label string of repeated
// "<unicode> <x> <y> <w> <h>" groups into corner-form boxes and codepoints.
//
// An empty string is a page without characters and yields empty slices.
func ParseLabels(s string) ([]detection.Box, []string, error) {
	fields := strings.Fields(s)
	if len(fields)%5 != 0 {
		return nil, nil, fmt.Errorf("label string has %d fields, want a multiple of 5", len(fields))
	}

	n := len(fields) / 5
	boxes := make([]detection.Box, 0, n)
	unicodes := make([]string, 0, n)
	for i := 0; i < len(fields); i += 5 {
		var v [4]float64
		for j := range v {
			f, err := strconv.ParseFloat(fields[i+1+j], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("character %d: bad coordinate %q: %w", i/5, fields[i+1+j], err)
			}
			v[j] = f
		}
		boxes = append(boxes, detection.NewBoxXYWH(v[0], v[1], v[2], v[3]))
		unicodes = append(unicodes, fields[i])
	}
	return boxes, unicodes, nil
}

// FormatLabels is the inverse of ParseLabels. Coordinates are written as
// integers, the form used by the annotation files.
func FormatLabels(boxes []detection.Box, unicodes []string) (string, error) {
	if len(boxes) != len(unicodes) {
		return "", fmt.Errorf("got %d boxes but %d codepoints", len(boxes), len(unicodes))
	}
	var sb strings.Builder
	for i, b := range boxes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s %d %d %d %d", unicodes[i],
			int(b.X1), int(b.Y1), int(b.Width()), int(b.Height()))
	}
	return sb.String(), nil
}
