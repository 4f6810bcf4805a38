// Package manifest parses drone-imagery manifest files: a JSON array whose
// first element names the upload prefix and whose remaining elements are
// image filenames keyed by the H3 cell they were captured over.
package manifest

import (
	"encoding/json"
	"os"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// filenameCell matches the leading 15-hex-digit H3 index in names like
	// 8928308280fffff_F0231_IMG0042.jpg.
	filenameCell = regexp.MustCompile(`^([0-9a-f]{15})_`)

	// prefixCell matches a cell embedded as a path segment of the upload
	// prefix, e.g. s3://bucket/sorties/8928308280fffff/F0231/.
	prefixCell = regexp.MustCompile(`/([0-9a-f]{15})/`)
)

// Manifest is the parsed result.
type Manifest struct {
	// Prefix is the upload location from the header element, if present.
	Prefix string

	// Cells holds the unique H3 indexes, sorted.
	Cells []string
}

// Parse reads and parses a manifest file. It fails on a missing file, a
// document that is not a non-empty JSON array, or an array yielding no cells.
func Parse(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "manifest: %s is not a JSON array", path)
	}
	if len(entries) == 0 {
		return nil, eris.Errorf("manifest: %s is empty", path)
	}

	m := &Manifest{}
	cells := make(map[string]struct{})

	// Header element: {"prefix": "s3://…"}. A cell embedded in the prefix
	// path counts toward the cell set.
	var header struct {
		Prefix string `json:"prefix"`
	}
	rest := entries
	if err := json.Unmarshal(entries[0], &header); err == nil && header.Prefix != "" {
		m.Prefix = header.Prefix
		if match := prefixCell.FindStringSubmatch(header.Prefix); match != nil {
			cells[match[1]] = struct{}{}
		}
		rest = entries[1:]
	}

	for _, raw := range rest {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			continue
		}
		if match := filenameCell.FindStringSubmatch(name); match != nil {
			cells[match[1]] = struct{}{}
		}
	}

	if len(cells) == 0 {
		return nil, eris.Errorf("manifest: no H3 cells found in %s", path)
	}
	for c := range cells {
		m.Cells = append(m.Cells, c)
	}
	sort.Strings(m.Cells)

	zap.L().Debug("manifest: parsed",
		zap.String("path", path),
		zap.String("prefix", m.Prefix),
		zap.Int("cells", len(m.Cells)),
	)
	return m, nil
}

// Cells is a convenience wrapper returning just the cell list.
func Cells(path string) ([]string, error) {
	m, err := Parse(path)
	if err != nil {
		return nil, err
	}
	return m.Cells, nil
}
