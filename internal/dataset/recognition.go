package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
	"github.com/ironsheep/kuzushiji-mcp/internal/imaging"
)

// Split names a subset of the annotated pages.
type Split string

const (
	TrainVal Split = "trainval" // every annotated page, from train.csv
	Train    Split = "train"
	Val      Split = "val"
)

// ParseSplit maps a split name to a Split. Empty means TrainVal.
func ParseSplit(s string) (Split, error) {
	switch Split(s) {
	case "", TrainVal:
		return TrainVal, nil
	case Train, Val:
		return Split(s), nil
	}
	return "", fmt.Errorf("unknown split %q: want trainval, train or val", s)
}

// Example is one page with its character annotations.
type Example struct {
	ImageID  string          `json:"image_id"`
	Image    image.Image     `json:"-"`
	Boxes    []detection.Box `json:"boxes"`
	Unicodes []string        `json:"unicodes"`
}

// Dataset is an indexed collection of pages.
type Dataset interface {
	Len() int
	Example(i int) (*Example, error)
}

type pageRow struct {
	imageID string
	labels  string
}

// RecognitionDataset is the annotated training set.
type RecognitionDataset struct {
	rows     []pageRow
	imageDir string
	cache    *imaging.ImageCache
}

// NewRecognitionDataset reads the annotation table of a split. Images are
// decoded lazily through cache.
func NewRecognitionDataset(cfg Config, split Split, cache *imaging.ImageCache) (*RecognitionDataset, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if cache == nil {
		return nil, errors.New("image cache is required")
	}

	path := cfg.TrainCSV()
	switch split {
	case "", TrainVal:
	case Train, Val:
		path = cfg.SplitCSV(split)
	default:
		return nil, fmt.Errorf("unknown split %q", split)
	}

	rows, err := readPageTable(path)
	if err != nil {
		return nil, err
	}
	return &RecognitionDataset{rows: rows, imageDir: cfg.TrainImageDir(), cache: cache}, nil
}

// readPageTable reads an "image_id,labels" CSV. A missing labels cell is a
// page without characters.
func readPageTable(path string) ([]pageRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open annotation table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	idCol, labelCol := -1, -1
	for i, name := range header {
		switch name {
		case "image_id":
			idCol = i
		case "labels":
			labelCol = i
		}
	}
	if idCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("%s: header must contain image_id and labels, got %v", path, header)
	}

	var rows []pageRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if idCol >= len(rec) {
			return nil, fmt.Errorf("%s:%d: missing image_id", path, line)
		}
		row := pageRow{imageID: rec[idCol]}
		if labelCol < len(rec) {
			row.labels = rec[labelCol]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Len implements Dataset.
func (d *RecognitionDataset) Len() int { return len(d.rows) }

// ImageID returns the page identifier of example i without loading it.
func (d *RecognitionDataset) ImageID(i int) (string, error) {
	if i < 0 || i >= len(d.rows) {
		return "", fmt.Errorf("index %d out of range [0, %d)", i, len(d.rows))
	}
	return d.rows[i].imageID, nil
}

// Example implements Dataset.
func (d *RecognitionDataset) Example(i int) (*Example, error) {
	id, err := d.ImageID(i)
	if err != nil {
		return nil, err
	}
	boxes, unicodes, err := ParseLabels(d.rows[i].labels)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", id, err)
	}
	img, err := d.cache.Load(filepath.Join(d.imageDir, id+".jpg"))
	if err != nil {
		return nil, err
	}
	return &Example{ImageID: id, Image: img, Boxes: boxes, Unicodes: unicodes}, nil
}
