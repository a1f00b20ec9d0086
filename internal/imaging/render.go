package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
)

// RenderResult is a rendered image encoded as base64 PNG.
type RenderResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG wraps an image into a RenderResult.
func EncodePNG(img image.Image) (*RenderResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &RenderResult{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// SavePNG writes an image to disk as PNG.
func SavePNG(path string, img image.Image) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// HeatColor maps a heatmap value in [0, 1] onto a blue-to-red hue ramp.
// Values outside the range are clamped.
func HeatColor(v float64) color.RGBA {
	if math.IsNaN(v) {
		v = 0
	}
	v = math.Max(0, math.Min(1, v))
	c := colorful.Hsv(240*(1-v), 1, 0.25+0.75*v)
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// HeatmapImage renders one class channel at heatmap resolution.
func HeatmapImage(h *detection.Heatmap, class int) (*image.RGBA, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if class < 0 || class >= h.Classes {
		return nil, fmt.Errorf("class %d outside [0, %d)", class, h.Classes)
	}

	out := image.NewRGBA(image.Rect(0, 0, h.Width, h.Height))
	ch := h.Channel(class)
	for y := 0; y < h.Height; y++ {
		for x := 0; x < h.Width; x++ {
			out.SetRGBA(x, y, HeatColor(float64(ch[y*h.Width+x])))
		}
	}
	return out, nil
}

// OverlayHeatmap upsamples a heatmap channel to the size of base and blends
// it on top with the given opacity in [0, 1].
func OverlayHeatmap(base image.Image, h *detection.Heatmap, class int, opacity float64) (*image.RGBA, error) {
	heat, err := HeatmapImage(h, class)
	if err != nil {
		return nil, err
	}
	opacity = math.Max(0, math.Min(1, opacity))

	bounds := base.Bounds()
	upsampled := imaging.Resize(heat, bounds.Dx(), bounds.Dy(), imaging.NearestNeighbor)

	bg := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(bg, bg.Bounds(), base, bounds.Min, draw.Src)
	return blend.Opacity(bg, upsampled, opacity), nil
}

// DrawDetections draws box outlines on a copy of base. When showScores is
// set, each box gets its score printed above the top-left corner.
func DrawDetections(base image.Image, dets []detection.Detection, boxColorHex string, showScores bool) *image.RGBA {
	boxColor, err := parseHexColor(boxColorHex)
	if err != nil {
		boxColor = color.RGBA{255, 0, 0, 255}
	}

	bounds := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), base, bounds.Min, draw.Src)

	for _, d := range dets {
		x1 := int(math.Round(d.Box.X1)) - bounds.Min.X
		y1 := int(math.Round(d.Box.Y1)) - bounds.Min.Y
		x2 := int(math.Round(d.Box.X2)) - bounds.Min.X
		y2 := int(math.Round(d.Box.Y2)) - bounds.Min.Y
		drawRect(out, x1, y1, x2, y2, boxColor)

		if showScores {
			label := strconv.FormatFloat(d.Score, 'f', 2, 64)
			drawLabel(out, x1, y1-8, label, color.RGBA{255, 255, 255, 255}, color.RGBA{0, 0, 0, 180})
		}
	}
	return out
}

// drawRect draws a one-pixel outline, clipped to the image.
func drawRect(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	b := img.Bounds()
	set := func(x, y int) {
		if x >= b.Min.X && x < b.Max.X && y >= b.Min.Y && y < b.Max.Y {
			img.SetRGBA(x, y, c)
		}
	}
	for x := x1; x <= x2; x++ {
		set(x, y1)
		set(x, y2)
	}
	for y := y1; y <= y2; y++ {
		set(x1, y)
		set(x2, y)
	}
}

// parseHexColor parses "#RRGGBB" or "#RRGGBBAA".
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}

	var alpha uint8 = 255
	switch len(hex) {
	case 7:
	case 9:
		a, err := strconv.ParseUint(hex[7:], 16, 8)
		if err != nil {
			return color.RGBA{}, err
		}
		alpha = uint8(a)
		hex = hex[:7]
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: alpha}, nil
}

// drawLabel draws a label with a tiny 3x5 pixel font (digits, '.', ',').
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		',': {"000", "000", "000", "010", "010"},
		'.': {"000", "000", "000", "000", "010"},
	}

	bounds := img.Bounds()
	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			px, py := x+dx, y+dy
			if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
				img.Set(px, py, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					px, py := cx+col, y+row
					if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
						img.Set(px, py, fg)
					}
				}
			}
		}
		cx += charWidth
	}
}
