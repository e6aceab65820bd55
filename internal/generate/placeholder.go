package generate

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Placeholder dimensions are fixed so every fallback image is identical in
// shape regardless of the slide it stands in for.
const (
	placeholderWidth  = 800
	placeholderHeight = 450
)

// stylePalette maps known styles to a background color. Unknown styles get a
// color derived from a hash of the style name, so the output stays
// deterministic.
var stylePalette = map[string]color.RGBA{
	"professional": {R: 0x2b, G: 0x3a, B: 0x55, A: 0xff},
	"casual":       {R: 0x3d, G: 0x6b, B: 0x45, A: 0xff},
	"academic":     {R: 0x4a, G: 0x2e, B: 0x4f, A: 0xff},
	"minimal":      {R: 0x3c, G: 0x3c, B: 0x3c, A: 0xff},
}

// RenderPlaceholder deterministically renders a fallback slide image: fixed
// size, style-appropriate background, and the slide title drawn as text.
// Identical inputs always produce identical bytes, so a cached placeholder
// is a stable cache hit.
func RenderPlaceholder(title, style string) ([]byte, error) {
	bg, ok := stylePalette[strings.ToLower(style)]
	if !ok {
		bg = hashedColor(style)
	}

	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	// Accent bar along the bottom edge.
	accent := color.RGBA{
		R: bg.R / 2, G: bg.G / 2, B: bg.B / 2, A: 0xff,
	}
	bar := image.Rect(0, placeholderHeight-12, placeholderWidth, placeholderHeight)
	draw.Draw(img, bar, &image.Uniform{C: accent}, image.Point{}, draw.Src)

	drawTitle(img, title)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

// drawTitle renders the title centered vertically, wrapped to the image
// width.
func drawTitle(img *image.RGBA, title string) {
	face := basicfont.Face7x13
	const margin = 40
	maxChars := (placeholderWidth - 2*margin) / 7

	lines := wrapText(title, maxChars)
	lineHeight := face.Height + 6
	startY := placeholderHeight/2 - (len(lines)*lineHeight)/2 + face.Ascent

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
	}

	for i, line := range lines {
		d.Dot = fixed.P(margin, startY+i*lineHeight)
		d.DrawString(line)
	}
}

func wrapText(text string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}

	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

func hashedColor(style string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(style)))
	v := h.Sum32()
	// Keep channels dark enough for white text.
	return color.RGBA{
		R: uint8(v>>16) % 128,
		G: uint8(v>>8) % 128,
		B: uint8(v) % 128,
		A: 0xff,
	}
}
