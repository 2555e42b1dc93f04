package layout

import (
	"fmt"
	"math"
	"slices"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
	"golang.org/x/image/font/opentype"
)

// DefaultFamily is the font family used when none is configured.
const DefaultFamily = "Go Mono"

// BasicFamily is a fixed 7x13 bitmap face that ignores the size.
const BasicFamily = "Basic"

var families = map[string][]byte{
	"Go":           goregular.TTF,
	"Go Bold":      gobold.TTF,
	"Go Medium":    gomedium.TTF,
	"Go Mono":      gomono.TTF,
	"Go Smallcaps": gosmallcaps.TTF,
}

// Families lists the measurable font families.
func Families() []string {
	names := make([]string, 0, len(families)+1)
	for name := range families {
		names = append(names, name)
	}
	names = append(names, BasicFamily)
	slices.Sort(names)
	return names
}

// IsFamily reports whether a font family can be measured.
func IsFamily(name string) bool {
	if name == BasicFamily {
		return true
	}
	_, ok := families[name]
	return ok
}

// Measurer converts pixel widths into character counts for one font
// family and size. Create one per settings change.
type Measurer struct {
	family    string
	size      float64
	face      font.Face
	charWidth float64
}

// NewMeasurer loads the face for family at size pixels.
func NewMeasurer(family string, size float64) (*Measurer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid font size %v", size)
	}

	var face font.Face
	if family == BasicFamily {
		face = basicfont.Face7x13
	} else {
		ttf, ok := families[family]
		if !ok {
			return nil, fmt.Errorf("unknown font family %q", family)
		}
		f, err := opentype.Parse(ttf)
		if err != nil {
			return nil, fmt.Errorf("failed to parse font %q: %w", family, err)
		}
		face, err = opentype.NewFace(f, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingNone,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create face %q: %w", family, err)
		}
	}

	adv, ok := face.GlyphAdvance('B')
	if !ok || adv <= 0 {
		face.Close()
		return nil, fmt.Errorf("font %q has no glyph for 'B'", family)
	}

	return &Measurer{
		family:    family,
		size:      size,
		face:      face,
		charWidth: float64(adv) / 64,
	}, nil
}

// Family returns the measured font family.
func (m *Measurer) Family() string { return m.family }

// CharWidth returns the advance of a representative character in pixels.
func (m *Measurer) CharWidth() float64 { return m.charWidth }

// TextWidth returns the advance width of s in pixels.
func (m *Measurer) TextWidth(s string) float64 {
	return float64(font.MeasureString(m.face, s)) / 64
}

// CharsPerRow returns how many characters fit in width pixels after
// subtracting margin. The result is never negative.
func (m *Measurer) CharsPerRow(width, margin float64) int {
	avail := width - margin
	if avail <= 0 {
		return 0
	}
	return int(math.Floor(avail / m.charWidth))
}

// Close releases the font face.
func (m *Measurer) Close() error {
	return m.face.Close()
}
