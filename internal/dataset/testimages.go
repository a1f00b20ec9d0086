package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
	"github.com/ironsheep/kuzushiji-mcp/internal/imaging"
)

// TestImages lists the unannotated competition pages in name order.
type TestImages struct {
	paths []string
	cache *imaging.ImageCache
}

// NewTestImages scans the test image directory.
func NewTestImages(cfg Config, cache *imaging.ImageCache) (*TestImages, error) {
	if cache == nil {
		return nil, fmt.Errorf("image cache is required")
	}
	dir := cfg.TestImageDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list test images: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return &TestImages{paths: paths, cache: cache}, nil
}

// Len implements Dataset.
func (t *TestImages) Len() int { return len(t.paths) }

// Example implements Dataset. Test pages carry no boxes.
func (t *TestImages) Example(i int) (*Example, error) {
	if i < 0 || i >= len(t.paths) {
		return nil, fmt.Errorf("index %d out of range [0, %d)", i, len(t.paths))
	}
	path := t.paths[i]
	img, err := t.cache.Load(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	return &Example{
		ImageID:  strings.TrimSuffix(base, filepath.Ext(base)),
		Image:    img,
		Boxes:    []detection.Box{},
		Unicodes: []string{},
	}, nil
}
