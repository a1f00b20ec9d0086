package dataset

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/ironsheep/kuzushiji-mcp/internal/imaging"
)

// CharCrop is one entry of a char_images_<split>.json annotation file.
type CharCrop struct {
	ImagePath string `json:"image_path"` // Relative to the converted directory
	Unicode   string `json:"unicode"`
}

type charCropFile struct {
	Annotations []CharCrop `json:"annotations"`
}

// CharExample is a single cropped character with its class index.
type CharExample struct {
	CharCrop
	Image image.Image `json:"-"`
	Label int         `json:"label"`
}

// CharCropDataset serves single-character crops for classifier training.
type CharCropDataset struct {
	dir        string
	crops      []CharCrop
	mapping    *UnicodeMapping
	numSamples []int
	cache      *imaging.ImageCache
}

// NewCharCropDataset reads the crop annotations of a split and counts the
// samples of every class. Classes with no crops count as one sample so they
// can be used as a divisor when weighting the loss.
func NewCharCropDataset(cfg Config, split Split, mapping *UnicodeMapping, cache *imaging.ImageCache) (*CharCropDataset, error) {
	if split == "" {
		split = TrainVal
	}
	if _, err := ParseSplit(string(split)); err != nil {
		return nil, err
	}
	if mapping == nil || cache == nil {
		return nil, fmt.Errorf("unicode mapping and image cache are required")
	}

	path := cfg.CharCropJSON(split)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crop annotations: %w", err)
	}
	var file charCropFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	counts := make([]int, mapping.Len())
	for i := range counts {
		counts[i] = 1
	}
	seen := make(map[int]int)
	for i, c := range file.Annotations {
		idx, ok := mapping.Index(c.Unicode)
		if !ok {
			return nil, fmt.Errorf("%s: annotation %d has unknown codepoint %s", path, i, c.Unicode)
		}
		seen[idx]++
	}
	for idx, n := range seen {
		counts[idx] = n
	}

	return &CharCropDataset{
		dir:        cfg.Converted(),
		crops:      file.Annotations,
		mapping:    mapping,
		numSamples: counts,
		cache:      cache,
	}, nil
}

// Len returns the number of crops.
func (d *CharCropDataset) Len() int { return len(d.crops) }

// NumSamples returns the per-class sample counts, indexed by class.
func (d *CharCropDataset) NumSamples() []int {
	out := make([]int, len(d.numSamples))
	copy(out, d.numSamples)
	return out
}

// Example loads crop i.
func (d *CharCropDataset) Example(i int) (*CharExample, error) {
	if i < 0 || i >= len(d.crops) {
		return nil, fmt.Errorf("index %d out of range [0, %d)", i, len(d.crops))
	}
	c := d.crops[i]
	label, _ := d.mapping.Index(c.Unicode)
	img, err := d.cache.Load(filepath.Join(d.dir, c.ImagePath))
	if err != nil {
		return nil, err
	}
	return &CharExample{CharCrop: c, Image: img, Label: label}, nil
}
