// Package colorconv parses colours and renders them in common notations.
package colorconv

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ErrInvalidColor is returned when input cannot be parsed as a colour.
var ErrInvalidColor = errors.New("invalid color")

var (
	hexPattern = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	rgbPattern = regexp.MustCompile(`^rgba?\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*(?:,\s*[\d.]+\s*)?\)$`)
	hslPattern = regexp.MustCompile(`^hsla?\(\s*(\d{1,3}(?:\.\d+)?)\s*,\s*(\d{1,3}(?:\.\d+)?)%\s*,\s*(\d{1,3}(?:\.\d+)?)%\s*(?:,\s*[\d.]+\s*)?\)$`)
)

// Parse reads a colour in hex (#rgb, #rrggbb, with or without #), rgb()/rgba() or hsl()/hsla() form.
func Parse(input string) (colorful.Color, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	switch {
	case hexPattern.MatchString(s):
		s = strings.TrimPrefix(s, "#")
		if len(s) == 3 {
			s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
		}
		c, err := colorful.Hex("#" + s)
		if err != nil {
			return colorful.Color{}, fmt.Errorf("%w: %v", ErrInvalidColor, err)
		}
		return c, nil
	case rgbPattern.MatchString(s):
		m := rgbPattern.FindStringSubmatch(s)
		var v [3]uint8
		for i := range v {
			n, _ := strconv.Atoi(m[i+1])
			if n > 255 {
				return colorful.Color{}, fmt.Errorf("%w: channel %d out of range", ErrInvalidColor, n)
			}
			v[i] = uint8(n)
		}
		return colorful.Color{R: float64(v[0]) / 255, G: float64(v[1]) / 255, B: float64(v[2]) / 255}, nil
	case hslPattern.MatchString(s):
		m := hslPattern.FindStringSubmatch(s)
		h, _ := strconv.ParseFloat(m[1], 64)
		sat, _ := strconv.ParseFloat(m[2], 64)
		l, _ := strconv.ParseFloat(m[3], 64)
		if h > 360 || sat > 100 || l > 100 {
			return colorful.Color{}, fmt.Errorf("%w: hsl component out of range", ErrInvalidColor)
		}
		return colorful.Hsl(math.Mod(h, 360), sat/100, l/100).Clamped(), nil
	}
	return colorful.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, input)
}

// HSL is a colour in integer hue/saturation/lightness as shown to users.
type HSL struct {
	H int `json:"h"`
	S int `json:"s"`
	L int `json:"l"`
}

// Formats is the set of renderings for one colour.
type Formats struct {
	Hex     string `json:"hex"`
	RGB     string `json:"rgb"`
	RGBA    string `json:"rgba"`
	HSL     string `json:"hsl"`
	HSLA    string `json:"hsla"`
	HSV     string `json:"hsv"`
	Lab     string `json:"lab"`
	UIColor string `json:"uiColor"`
	SwiftUI string `json:"swiftui"`
	Android string `json:"android"`
	CSS     string `json:"css"`
}

// Harmony is a named group of related colours as hex strings.
type Harmony struct {
	Name   string   `json:"name"`
	Colors []string `json:"colors"`
}

// Contrast holds WCAG contrast ratios against black and white text.
type Contrast struct {
	Luminance float64 `json:"luminance"`
	OnBlack   float64 `json:"onBlack"`
	OnWhite   float64 `json:"onWhite"`
	Readable  string  `json:"readableText"`
}

// Result is the full conversion of a colour.
type Result struct {
	Formats   Formats   `json:"formats"`
	Contrast  Contrast  `json:"contrast"`
	Harmonies []Harmony `json:"harmonies"`
	Shades    []string  `json:"shades"`
	Tints     []string  `json:"tints"`
}

// Convert parses input and renders every derived view.
func Convert(input string) (Result, error) {
	c, err := Parse(input)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Formats:   Render(c),
		Contrast:  ContrastOf(c),
		Harmonies: Harmonies(c),
		Shades:    mix(c, colorful.Color{}, 5),
		Tints:     mix(c, colorful.Color{R: 1, G: 1, B: 1}, 5),
	}, nil
}

// ToHSL returns the rounded HSL triple for c.
func ToHSL(c colorful.Color) HSL {
	h, s, l := c.Hsl()
	if math.IsNaN(h) {
		h = 0
	}
	return HSL{H: int(math.Round(h)) % 360, S: int(math.Round(s * 100)), L: int(math.Round(l * 100))}
}

// Render renders c in every supported notation.
func Render(c colorful.Color) Formats {
	r, g, b := c.RGB255()
	hex := strings.ToUpper(c.Hex())
	hsl := ToHSL(c)
	hv, sv, vv := c.Hsv()
	if math.IsNaN(hv) {
		hv = 0
	}
	lL, la, lb := c.Lab()
	fr, fg, fb := float64(r)/255, float64(g)/255, float64(b)/255
	return Formats{
		Hex:     hex,
		RGB:     fmt.Sprintf("rgb(%d, %d, %d)", r, g, b),
		RGBA:    fmt.Sprintf("rgba(%d, %d, %d, 1)", r, g, b),
		HSL:     fmt.Sprintf("hsl(%d, %d%%, %d%%)", hsl.H, hsl.S, hsl.L),
		HSLA:    fmt.Sprintf("hsla(%d, %d%%, %d%%, 1)", hsl.H, hsl.S, hsl.L),
		HSV:     fmt.Sprintf("hsv(%d, %d%%, %d%%)", int(math.Round(hv))%360, int(math.Round(sv*100)), int(math.Round(vv*100))),
		Lab:     fmt.Sprintf("lab(%.2f, %.2f, %.2f)", lL*100, la*100, lb*100),
		UIColor: fmt.Sprintf("UIColor(red: %.3f, green: %.3f, blue: %.3f, alpha: 1.0)", fr, fg, fb),
		SwiftUI: fmt.Sprintf("Color(red: %.3f, green: %.3f, blue: %.3f)", fr, fg, fb),
		Android: hex,
		CSS:     fmt.Sprintf("--color-primary: %s;", strings.ToLower(hex)),
	}
}

// ContrastOf computes relative luminance and contrast ratios for c.
func ContrastOf(c colorful.Color) Contrast {
	r, g, b := c.Clamped().LinearRgb()
	lum := 0.2126*r + 0.7152*g + 0.0722*b
	onBlack := (lum + 0.05) / 0.05
	onWhite := 1.05 / (lum + 0.05)
	readable := "black"
	if onWhite > onBlack {
		readable = "white"
	}
	return Contrast{
		Luminance: round(lum, 4),
		OnBlack:   round(onBlack, 2),
		OnWhite:   round(onWhite, 2),
		Readable:  readable,
	}
}

// Harmonies derives complementary, triadic, analogous, split-complementary and monochromatic sets.
func Harmonies(c colorful.Color) []Harmony {
	base := strings.ToLower(c.Hex())
	hsl := ToHSL(c)
	at := func(dh, dl int) string {
		h := ((hsl.H+dh)%360 + 360) % 360
		l := min(100, max(0, hsl.L+dl))
		return colorful.Hsl(float64(h), float64(hsl.S)/100, float64(l)/100).Clamped().Hex()
	}
	return []Harmony{
		{Name: "complementary", Colors: []string{base, at(180, 0)}},
		{Name: "triadic", Colors: []string{base, at(120, 0), at(240, 0)}},
		{Name: "analogous", Colors: []string{at(-30, 0), base, at(30, 0)}},
		{Name: "splitComplementary", Colors: []string{base, at(150, 0), at(210, 0)}},
		{Name: "monochromatic", Colors: []string{at(0, -20), at(0, -10), base, at(0, 10), at(0, 20)}},
	}
}

func mix(c, target colorful.Color, steps int) []string {
	out := make([]string, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps+1)
		out = append(out, c.BlendRgb(target, t).Clamped().Hex())
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
