package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// TableStyle defines the visual style of a table
type TableStyle struct {
	Name            string
	BorderStyle     BorderStyle
	HeaderSeparator bool
	Padding         int
}

// BorderStyle defines table border characters
type BorderStyle struct {
	TopLeft     string
	TopRight    string
	BottomLeft  string
	BottomRight string
	Horizontal  string
	Vertical    string
	Cross       string
	TopTee      string
	BottomTee   string
	LeftTee     string
	RightTee    string
}

var (
	// DefaultTableStyle is a simple ASCII table style
	DefaultTableStyle = TableStyle{
		Name:            "default",
		BorderStyle:     ASCIIBorderStyle,
		HeaderSeparator: true,
		Padding:         1,
	}

	// RoundedTableStyle uses Unicode box drawing characters
	RoundedTableStyle = TableStyle{
		Name:            "rounded",
		BorderStyle:     RoundedBorderStyle,
		HeaderSeparator: true,
		Padding:         1,
	}

	// CompactTableStyle is minimal with no borders
	CompactTableStyle = TableStyle{
		Name:    "compact",
		Padding: 1,
	}
)

var (
	ASCIIBorderStyle = BorderStyle{
		TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
		Horizontal: "-", Vertical: "|", Cross: "+",
		TopTee: "+", BottomTee: "+", LeftTee: "+", RightTee: "+",
	}

	RoundedBorderStyle = BorderStyle{
		TopLeft: "╭", TopRight: "╮", BottomLeft: "╰", BottomRight: "╯",
		Horizontal: "─", Vertical: "│", Cross: "┼",
		TopTee: "┬", BottomTee: "┴", LeftTee: "├", RightTee: "┤",
	}
)

// TableFormatter renders rows of text as an aligned table
type TableFormatter struct {
	headers     []string
	rows        [][]string
	alignments  map[int]Alignment
	style       TableStyle
	maxWidth    int
	colorSystem ColorSystem
	theme       ColorTheme
}

// NewTableFormatter creates a new table formatter sized to the terminal
func NewTableFormatter(colorSystem ColorSystem, theme ColorTheme) *TableFormatter {
	return &TableFormatter{
		alignments:  make(map[int]Alignment),
		style:       DefaultTableStyle,
		maxWidth:    getTerminalWidth(),
		colorSystem: colorSystem,
		theme:       theme,
	}
}

// SetHeaders sets the table headers
func (tf *TableFormatter) SetHeaders(headers []string) {
	tf.headers = headers
}

// AddRow adds a row to the table
func (tf *TableFormatter) AddRow(row []string) {
	tf.rows = append(tf.rows, row)
}

// SetColumnAlignment sets the alignment for a specific column
func (tf *TableFormatter) SetColumnAlignment(column int, alignment Alignment) {
	tf.alignments[column] = alignment
}

// SetStyle sets the table style
func (tf *TableFormatter) SetStyle(style TableStyle) {
	tf.style = style
}

// SetMaxWidth caps the rendered width. The terminal width still applies when
// it is narrower.
func (tf *TableFormatter) SetMaxWidth(width int) {
	if width > 0 && (tf.maxWidth <= 0 || width < tf.maxWidth) {
		tf.maxWidth = width
	}
}

// Render returns the formatted table as a string
func (tf *TableFormatter) Render() string {
	if len(tf.headers) == 0 && len(tf.rows) == 0 {
		return ""
	}

	widths := tf.fitToWidth(tf.columnWidths())
	bordered := tf.style.BorderStyle.Horizontal != ""
	b := tf.style.BorderStyle

	var result strings.Builder
	if bordered {
		result.WriteString(tf.border(widths, b.TopLeft, b.TopTee, b.TopRight))
	}
	if len(tf.headers) > 0 {
		result.WriteString(tf.renderRow(tf.headers, widths, true))
		if bordered && tf.style.HeaderSeparator {
			result.WriteString(tf.border(widths, b.LeftTee, b.Cross, b.RightTee))
		}
	}
	for _, row := range tf.rows {
		result.WriteString(tf.renderRow(row, widths, false))
	}
	if bordered {
		result.WriteString(tf.border(widths, b.BottomLeft, b.BottomTee, b.BottomRight))
	}
	return result.String()
}

// RenderTo renders the table to the specified writer
func (tf *TableFormatter) RenderTo(writer io.Writer) {
	fmt.Fprint(writer, tf.Render())
}

// columnWidths returns the padded width each column needs
func (tf *TableFormatter) columnWidths() []int {
	n := len(tf.headers)
	for _, row := range tf.rows {
		n = max(n, len(row))
	}

	widths := make([]int, n)
	measure := func(row []string) {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}
	measure(tf.headers)
	for _, row := range tf.rows {
		measure(row)
	}
	for i := range widths {
		widths[i] += tf.style.Padding * 2
	}
	return widths
}

// fitToWidth shrinks the widest columns until the table fits maxWidth
func (tf *TableFormatter) fitToWidth(widths []int) []int {
	if tf.maxWidth <= 0 {
		return widths
	}
	minWidth := tf.style.Padding*2 + 4
	for tf.totalWidth(widths) > tf.maxWidth {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minWidth {
			break
		}
		widths[widest]--
	}
	return widths
}

func (tf *TableFormatter) totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w
	}
	if tf.style.BorderStyle.Vertical != "" {
		total += len(widths) + 1
	}
	return total
}

func (tf *TableFormatter) border(widths []int, left, mid, right string) string {
	var sb strings.Builder
	sb.WriteString(left)
	for i, w := range widths {
		sb.WriteString(strings.Repeat(tf.style.BorderStyle.Horizontal, w))
		if i < len(widths)-1 {
			sb.WriteString(mid)
		}
	}
	sb.WriteString(right)
	sb.WriteString("\n")
	return sb.String()
}

func (tf *TableFormatter) renderRow(row []string, widths []int, isHeader bool) string {
	var sb strings.Builder
	v := tf.style.BorderStyle.Vertical
	sb.WriteString(v)
	for i, width := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		alignment := tf.alignments[i]
		if isHeader {
			alignment = AlignLeft
		}
		sb.WriteString(tf.formatCell(cell, width, alignment, isHeader))
		sb.WriteString(v)
	}
	return strings.TrimRight(sb.String(), " ") + "\n"
}

// formatCell pads and truncates before coloring so escape codes never count
// toward the width
func (tf *TableFormatter) formatCell(content string, width int, alignment Alignment, isHeader bool) string {
	contentWidth := max(width-tf.style.Padding*2, 0)
	if utf8.RuneCountInString(content) > contentWidth {
		runes := []rune(content)
		if contentWidth > 3 {
			content = string(runes[:contentWidth-3]) + "..."
		} else {
			content = string(runes[:contentWidth])
		}
	}

	gap := strings.Repeat(" ", contentWidth-utf8.RuneCountInString(content))
	if isHeader && tf.colorSystem != nil {
		content = tf.colorSystem.Colorize(content, tf.theme.Primary)
	}

	pad := strings.Repeat(" ", tf.style.Padding)
	if alignment == AlignRight {
		return pad + gap + content + pad
	}
	return pad + content + gap + pad
}

// getTerminalWidth returns the width of stdout, or 0 when it is not a terminal
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return width
}
