// Package plot turns measurement results into score-versus-bitrate SVG charts.
package plot

import (
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// styleTokens are matplotlib-style format strings: a marker followed by a
// solid ("-") or dashed ("--") line. Series take them in order and wrap around.
var styleTokens = [...]string{
	"o-", "v-", "^-", "<-", ">-", "p-", "h-", "H-", "8-",
	"o--", "v--", "^--", "<--", ">--", "p--", "h--", "H--", "8--",
}

var palette = [...]drawing.Color{
	drawing.ColorFromHex("1f77b4"),
	drawing.ColorFromHex("ff7f0e"),
	drawing.ColorFromHex("2ca02c"),
	drawing.ColorFromHex("d62728"),
	drawing.ColorFromHex("9467bd"),
	drawing.ColorFromHex("8c564b"),
	drawing.ColorFromHex("e377c2"),
	drawing.ColorFromHex("7f7f7f"),
	drawing.ColorFromHex("bcbd22"),
	drawing.ColorFromHex("17becf"),
}

// Style is how one series is drawn.
type Style struct {
	Token  string // format token, e.g. "^--"
	Marker string
	Dashed bool
	Color  drawing.Color
}

// StyleFor returns the style of the index-th series in a chart. It depends
// only on index, so every chart draws a given encoder the same way.
func StyleFor(index int) Style {
	token := styleTokens[wrap(index, len(styleTokens))]
	return Style{
		Token:  token,
		Marker: strings.TrimRight(token, "-"),
		Dashed: strings.HasSuffix(token, "--"),
		Color:  palette[wrap(index, len(palette))],
	}
}

// dotWidth varies marker size so overlapping series stay distinguishable.
func (s Style) dotWidth() float64 {
	switch s.Marker {
	case "o", "8":
		return 4
	case "v", "^", "<", ">":
		return 5
	default:
		return 3.5
	}
}

func (s Style) dashArray() []float64 {
	if s.Dashed {
		return []float64{8, 5}
	}
	return nil
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
