// Package asciiart renders banner text with FIGlet fonts.
package asciiart

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	figure "github.com/common-nighthawk/go-figure"

	"pkt.systems/swissblade/schema"
)

const (
	// Width is the column budget before words wrap onto a new banner row.
	Width        = 120
	MaxTextRunes = 200
)

// Font names a bundled FIGlet font.
type Font string

const (
	Standard Font = "Standard"
	Slant    Font = "Slant"
	Big      Font = "Big"
	Doom     Font = "Doom"
)

var fontFiles = map[Font]string{
	Standard: "standard",
	Slant:    "slant",
	Big:      "big",
	Doom:     "doom",
}

// Paddings are the accepted horizontal padding widths.
var Paddings = []int{0, 1, 2, 4}

// Samples are suggested inputs.
var Samples = []string{"Swissblade", "ASCII Wizard", "Ship it!", "Full Duplex"}

// Fonts lists the bundled fonts in menu order.
func Fonts() []Font {
	return []Font{Standard, Slant, Big, Doom}
}

// Request describes a banner.
type Request struct {
	Text      string `json:"text"`
	Font      Font   `json:"font,omitempty"`
	Uppercase bool   `json:"uppercase,omitempty"`
	Frame     bool   `json:"frame,omitempty"`
	// Padding is nil for the default of one column.
	Padding *int `json:"padding,omitempty"`
}

// Result is the rendered banner.
type Result struct {
	Font Font   `json:"font"`
	Art  string `json:"art"`
}

// Render draws req.Text. Blank text renders as an empty banner.
func Render(req Request) (Result, error) {
	font := req.Font
	if font == "" {
		font = Standard
	}
	file, ok := fontFiles[font]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown font %q", schema.ErrInvalidRequest, req.Font)
	}
	padding := 1
	if req.Padding != nil {
		padding = *req.Padding
	}
	if !slices.Contains(Paddings, padding) {
		return Result{}, fmt.Errorf("%w: padding must be one of %v", schema.ErrInvalidRequest, Paddings)
	}
	text := strings.Join(strings.Fields(req.Text), " ")
	if utf8.RuneCountInString(text) > MaxTextRunes {
		return Result{}, fmt.Errorf("%w: text exceeds %d characters", schema.ErrInvalidRequest, MaxTextRunes)
	}
	if req.Uppercase {
		text = strings.ToUpper(text)
	}
	if text == "" {
		return Result{Font: font}, nil
	}
	lines := render(text, file)
	lines = pad(lines, padding)
	if req.Frame {
		lines = frame(lines)
	}
	return Result{Font: font, Art: strings.Join(lines, "\n")}, nil
}

// render draws text, starting a new banner row whenever the next word would
// push the current row past Width.
func render(text, file string) []string {
	var out []string
	var row []string
	var current []string
	for _, word := range strings.Split(text, " ") {
		candidate := append(slices.Clone(row), word)
		drawn := draw(strings.Join(candidate, " "), file)
		if len(row) > 0 && width(drawn) > Width {
			out = append(out, current...)
			row = []string{word}
			current = draw(word, file)
			continue
		}
		row = candidate
		current = drawn
	}
	return append(out, current...)
}

func draw(text, file string) []string {
	rows := figure.NewFigure(text, file, false).Slicify()
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, strings.TrimRight(r, " "))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func width(lines []string) int {
	w := 0
	for _, l := range lines {
		w = max(w, utf8.RuneCountInString(l))
	}
	return w
}

func pad(lines []string, n int) []string {
	if n == 0 {
		return lines
	}
	space := strings.Repeat(" ", n)
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = space + l + space
	}
	return out
}

func frame(lines []string) []string {
	w := width(lines)
	edge := "+" + strings.Repeat("-", w+2) + "+"
	out := make([]string, 0, len(lines)+2)
	out = append(out, edge)
	for _, l := range lines {
		out = append(out, "| "+l+strings.Repeat(" ", w-utf8.RuneCountInString(l))+" |")
	}
	return append(out, edge)
}
