package common

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"cvcoach/internal/document"
)

// ValidateOutputFormat validates format against configured supported formats
func ValidateOutputFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 {
		return nil // No restrictions configured
	}

	if slices.Contains(supportedFormats, format) {
		return nil
	}

	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, supportedFormats)
}

// GetSupportedFormats returns the list of supported formats
func GetSupportedFormats(supportedFormats []string) []string {
	return supportedFormats
}

// ParseIndexList parses a comma-separated list such as "0,2,5" into sorted,
// de-duplicated indices below n.
func ParseIndexList(list string, n int) ([]int, error) {
	var out []int
	for part := range strings.SplitSeq(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", part)
		}
		if i < 0 || i >= n {
			return nil, fmt.Errorf("index %d out of range (have %d suggestions)", i, n)
		}
		out = append(out, i)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// ValidateSections checks section names given on the command line
func ValidateSections(names []string) ([]document.Section, error) {
	sections, err := document.ParseSections(names)
	if err != nil {
		return nil, fmt.Errorf("%w (valid: %v)", err, document.AllSections)
	}
	return sections, nil
}
