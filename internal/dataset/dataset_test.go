package dataset

import (
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
	"github.com/ironsheep/kuzushiji-mcp/internal/imaging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeJPEG(t *testing.T, path string, width, height int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, image.NewGray(image.Rect(0, 0, width, height)), nil))
}

// newTestRoot lays out a miniature copy of the Kaggle dataset.
func newTestRoot(t *testing.T) Config {
	t.Helper()
	root := filepath.Join(t.TempDir(), "kuzushiji-recognition")
	cfg := Config{Root: root}

	writeFile(t, cfg.TrainCSV(), strings.Join([]string{
		"image_id,labels",
		"page_a,U+306F 10 20 30 40 U+304B 100 50 25 35",
		"page_b,",
		"page_c,U+3044 5 5 10 10",
	}, "\n")+"\n")
	writeFile(t, cfg.SplitCSV(Train), "image_id,labels\npage_a,U+306F 10 20 30 40\n")
	writeFile(t, cfg.SplitCSV(Val), "image_id,labels\npage_b,\npage_c,U+3044 5 5 10 10\n")
	writeFile(t, cfg.UnicodeCSV(), "Unicode,char\nU+3042,あ\nU+3044,い\nU+304B,か\nU+306F,は\n")

	for _, id := range []string{"page_a", "page_b", "page_c"} {
		writeJPEG(t, filepath.Join(cfg.TrainImageDir(), id+".jpg"), 64, 48)
	}
	writeJPEG(t, filepath.Join(cfg.TestImageDir(), "z_page.jpg"), 32, 32)
	writeJPEG(t, filepath.Join(cfg.TestImageDir(), "a_page.jpg"), 16, 16)

	writeJPEG(t, filepath.Join(cfg.Converted(), "chars", "0.jpg"), 8, 8)
	writeJPEG(t, filepath.Join(cfg.Converted(), "chars", "1.jpg"), 8, 8)
	writeJPEG(t, filepath.Join(cfg.Converted(), "chars", "2.jpg"), 8, 8)
	writeFile(t, cfg.CharCropJSON(TrainVal), `{"annotations": [
		{"image_path": "chars/0.jpg", "unicode": "U+306F"},
		{"image_path": "chars/1.jpg", "unicode": "U+306F"},
		{"image_path": "chars/2.jpg", "unicode": "U+3044"}
	]}`)
	return cfg
}

func TestParseLabels(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		boxes    []detection.Box
		unicodes []string
		wantErr  bool
	}{
		{"empty", "", []detection.Box{}, []string{}, false},
		{"whitespace", "   ", []detection.Box{}, []string{}, false},
		{"one", "U+306F 10 20 30 40", []detection.Box{{X1: 10, Y1: 20, X2: 40, Y2: 60}}, []string{"U+306F"}, false},
		{
			"two", "U+306F 1 2 3 4 U+304B 5 6 7 8",
			[]detection.Box{{X1: 1, Y1: 2, X2: 4, Y2: 6}, {X1: 5, Y1: 6, X2: 12, Y2: 14}},
			[]string{"U+306F", "U+304B"}, false,
		},
		{"truncated", "U+306F 1 2 3", nil, nil, true},
		{"bad number", "U+306F 1 2 x 4", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			boxes, unicodes, err := ParseLabels(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.boxes, boxes)
			assert.Equal(t, tt.unicodes, unicodes)
		})
	}
}

func TestFormatLabels(t *testing.T) {
	s := "U+306F 10 20 30 40 U+304B 100 50 25 35"
	boxes, unicodes, err := ParseLabels(s)
	require.NoError(t, err)

	out, err := FormatLabels(boxes, unicodes)
	require.NoError(t, err)
	assert.Equal(t, s, out)

	_, err = FormatLabels(boxes, unicodes[:1])
	assert.Error(t, err)
}

func TestParseSplit(t *testing.T) {
	for in, want := range map[string]Split{"": TrainVal, "trainval": TrainVal, "train": Train, "val": Val} {
		got, err := ParseSplit(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSplit("test")
	assert.Error(t, err)
}

func TestConfig(t *testing.T) {
	cfg := Config{Root: "/data/kuzushiji-recognition/"}
	assert.Equal(t, "/data/kuzushiji-recognition-converted", cfg.Converted())
	assert.Equal(t, "/data/kuzushiji-recognition-converted/val.csv", cfg.SplitCSV(Val))

	cfg.ConvertedDir = "/tmp/conv"
	assert.Equal(t, "/tmp/conv/char_images_train.json", cfg.CharCropJSON(Train))

	assert.Error(t, Config{}.Check())
	assert.Error(t, Config{Root: filepath.Join(t.TempDir(), "missing")}.Check())
}

func TestRecognitionDataset(t *testing.T) {
	cfg := newTestRoot(t)
	cache := imaging.NewImageCache(imaging.DefaultCacheCapacity)

	ds, err := NewRecognitionDataset(cfg, TrainVal, cache)
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())

	ex, err := ds.Example(0)
	require.NoError(t, err)
	assert.Equal(t, "page_a", ex.ImageID)
	assert.Equal(t, 64, ex.Image.Bounds().Dx())
	assert.Equal(t, []string{"U+306F", "U+304B"}, ex.Unicodes)
	assert.Equal(t, detection.Box{X1: 100, Y1: 50, X2: 125, Y2: 85}, ex.Boxes[1])

	empty, err := ds.Example(1)
	require.NoError(t, err)
	assert.Empty(t, empty.Boxes)
	assert.Empty(t, empty.Unicodes)

	_, err = ds.Example(3)
	assert.Error(t, err)
}

func TestRecognitionDataset_Splits(t *testing.T) {
	cfg := newTestRoot(t)
	cache := imaging.NewImageCache(imaging.DefaultCacheCapacity)

	train, err := NewRecognitionDataset(cfg, Train, cache)
	require.NoError(t, err)
	assert.Equal(t, 1, train.Len())

	val, err := NewRecognitionDataset(cfg, Val, cache)
	require.NoError(t, err)
	assert.Equal(t, 2, val.Len())
	id, err := val.ImageID(1)
	require.NoError(t, err)
	assert.Equal(t, "page_c", id)

	_, err = NewRecognitionDataset(cfg, Split("test"), cache)
	assert.Error(t, err)
}

func TestRecognitionDataset_MissingImage(t *testing.T) {
	cfg := newTestRoot(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.TrainImageDir(), "page_c.jpg")))

	ds, err := NewRecognitionDataset(cfg, TrainVal, imaging.NewImageCache(0))
	require.NoError(t, err)
	_, err = ds.Example(2)
	assert.Error(t, err)
}

func TestUnicodeMapping(t *testing.T) {
	cfg := newTestRoot(t)
	m, err := LoadUnicodeMapping(cfg.UnicodeCSV())
	require.NoError(t, err)

	assert.Equal(t, 4, m.Len())
	c, ok := m.Char("U+306F")
	assert.True(t, ok)
	assert.Equal(t, "は", c)
	idx, ok := m.Index("U+304B")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
	u, ok := m.Unicode(1)
	assert.True(t, ok)
	assert.Equal(t, "U+3044", u)

	_, ok = m.Index("U+0000")
	assert.False(t, ok)
	_, ok = m.Unicode(4)
	assert.False(t, ok)

	_, err = readUnicodeMapping(strings.NewReader("Unicode,char\nU+3042,あ\nU+3042,あ\n"))
	assert.Error(t, err, "duplicate codepoint")
}

func TestCharCropDataset(t *testing.T) {
	cfg := newTestRoot(t)
	m, err := LoadUnicodeMapping(cfg.UnicodeCSV())
	require.NoError(t, err)

	ds, err := NewCharCropDataset(cfg, "", m, imaging.NewImageCache(imaging.DefaultCacheCapacity))
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []int{1, 1, 1, 2}, ds.NumSamples())

	ex, err := ds.Example(2)
	require.NoError(t, err)
	assert.Equal(t, "U+3044", ex.Unicode)
	assert.Equal(t, 1, ex.Label)
	assert.Equal(t, 8, ex.Image.Bounds().Dx())
}

func TestCharCropDataset_UnknownCodepoint(t *testing.T) {
	cfg := newTestRoot(t)
	writeFile(t, cfg.CharCropJSON(Val), `{"annotations": [{"image_path": "x.jpg", "unicode": "U+FFFF"}]}`)
	m, err := LoadUnicodeMapping(cfg.UnicodeCSV())
	require.NoError(t, err)

	_, err = NewCharCropDataset(cfg, Val, m, imaging.NewImageCache(0))
	assert.Error(t, err)
}

func TestTestImages(t *testing.T) {
	cfg := newTestRoot(t)
	ds, err := NewTestImages(cfg, imaging.NewImageCache(0))
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	ex, err := ds.Example(0)
	require.NoError(t, err)
	assert.Equal(t, "a_page", ex.ImageID)
	assert.Equal(t, 16, ex.Image.Bounds().Dx())
	assert.Empty(t, ex.Boxes)
}

type countingDataset int

func (c countingDataset) Len() int { return int(c) }

func (c countingDataset) Example(i int) (*Example, error) {
	return &Example{ImageID: string(rune('a' + i))}, nil
}

func TestRandomSplit(t *testing.T) {
	ds := countingDataset(10)

	first, second, err := RandomSplit(ds, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Len())
	assert.Equal(t, 6, second.Len())

	all := append(first.Indices(), second.Indices()...)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)

	again, _, err := RandomSplit(ds, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Indices(), again.Indices())

	ex, err := first.Example(0)
	require.NoError(t, err)
	assert.Equal(t, string(rune('a'+first.Indices()[0])), ex.ImageID)

	_, _, err = RandomSplit(ds, 11, 0)
	assert.Error(t, err)
}

func TestNewSubset(t *testing.T) {
	sub, err := NewSubset(countingDataset(3), []int{2, 0})
	require.NoError(t, err)
	ex, err := sub.Example(0)
	require.NoError(t, err)
	assert.Equal(t, "c", ex.ImageID)

	_, err = NewSubset(countingDataset(3), []int{3})
	assert.Error(t, err)
}
