package service

import (
	"fmt"
	"os"
	"strings"
)

// Catalog is the ordered label list; index i names classifier output i.
type Catalog []string

// LoadCatalog prefers an inline list and otherwise reads one label per line
// from path.
func LoadCatalog(inline []string, path string) (Catalog, error) {
	if len(inline) > 0 {
		return Catalog(inline), nil
	}
	if path == "" {
		return nil, fmt.Errorf("no class catalog configured")
	}
	lines, err := ReadLines(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class catalog: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("class catalog %s is empty", path)
	}
	return Catalog(lines), nil
}

// Check fails when the catalog cannot label every classifier output.
func (c Catalog) Check(outputLen int) error {
	if len(c) != outputLen {
		return fmt.Errorf("%w: %d labels for %d outputs", ErrCatalogMismatch, len(c), outputLen)
	}
	return nil
}

func ReadLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(b), "\n")
	var out []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}
