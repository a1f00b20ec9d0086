package dataset

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config locates the dataset on disk.
type Config struct {
	// Root is the Kaggle Kuzushiji Recognition directory.
	Root string `yaml:"root" json:"root"`

	// ConvertedDir holds the train/val split and character crops. Empty
	// means "<Root>-converted".
	ConvertedDir string `yaml:"converted_dir" json:"converted_dir"`
}

// Check reports whether Root exists and is a directory.
func (c Config) Check() error {
	if c.Root == "" {
		return fmt.Errorf("dataset root is not set")
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("dataset root %s: %w", c.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("dataset root %s is not a directory", c.Root)
	}
	return nil
}

// Converted returns the converted-data directory.
func (c Config) Converted() string {
	if c.ConvertedDir != "" {
		return c.ConvertedDir
	}
	return filepath.Clean(c.Root) + "-converted"
}

// TrainCSV returns the path of the full training annotation table.
func (c Config) TrainCSV() string { return filepath.Join(c.Root, "train.csv") }

// TrainImageDir returns the directory of annotated page images.
func (c Config) TrainImageDir() string { return filepath.Join(c.Root, "train_images") }

// TestImageDir returns the directory of unannotated test pages.
func (c Config) TestImageDir() string { return filepath.Join(c.Root, "test_images") }

// UnicodeCSV returns the path of the codepoint-to-character table.
func (c Config) UnicodeCSV() string { return filepath.Join(c.Root, "unicode_translation.csv") }

// SplitCSV returns the annotation table of a converted split.
func (c Config) SplitCSV(split Split) string {
	return filepath.Join(c.Converted(), string(split)+".csv")
}

// CharCropJSON returns the character crop annotation file of a split.
func (c Config) CharCropJSON(split Split) string {
	return filepath.Join(c.Converted(), "char_images_"+string(split)+".json")
}
