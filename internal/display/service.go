package display

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// OutputFormat represents different output format options
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a format name. An empty name means table.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (expected table, json or yaml)", s)
	}
}

// Color represents terminal color options
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightCyan
	ColorBrightWhite
)

// ColorTheme defines color scheme for different message types
type ColorTheme struct {
	Primary   Color
	Success   Color
	Warning   Color
	Error     Color
	Info      Color
	Muted     Color
	Highlight Color
}

// Service writes human-facing command output: status lines, key/value
// sections, tables and machine-readable documents.
type Service struct {
	config *Config
	colors ColorSystem
	icons  IconSystem
	theme  ColorTheme
	out    io.Writer
	errOut io.Writer
}

// NewService creates a display service from config
func NewService(config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	config.SetDefaults()

	colorEnabled := config.IsColorEnabled() && detectColorSupport(config.Writer)
	return &Service{
		config: config,
		colors: NewColorSystem(config.GetColorTheme(), colorEnabled),
		icons:  NewIconSystem(config.IsIconsEnabled() && detectUnicodeSupport(config.Writer)),
		theme:  config.GetColorTheme(),
		out:    config.Writer,
		errOut: config.ErrWriter,
	}
}

// Config returns the display configuration
func (s *Service) Config() *Config {
	return s.config
}

// Format returns the configured output format
func (s *Service) Format() OutputFormat {
	f, err := ParseOutputFormat(s.config.OutputFormat)
	if err != nil {
		return FormatTable
	}
	return f
}

// ColorsEnabled reports whether output is colorized
func (s *Service) ColorsEnabled() bool {
	return s.colors.IsColorSupported()
}

// Success prints a success line
func (s *Service) Success(message string) {
	s.status("success", s.theme.Success, message)
}

// Info prints an informational line
func (s *Service) Info(message string) {
	s.status("info", s.theme.Info, message)
}

// Warning prints a warning line to the error stream
func (s *Service) Warning(message string) {
	s.statusTo(s.errOut, "warning", s.theme.Warning, message)
}

// Error prints an error line to the error stream. Errors are shown even in
// quiet mode.
func (s *Service) Error(message string) {
	icon := s.icons.RenderIconWithColor("error", s.colors)
	fmt.Fprintf(s.errOut, "%s %s\n", icon, s.colors.Colorize(message, s.theme.Error))
}

func (s *Service) status(icon string, color Color, message string) {
	s.statusTo(s.out, icon, color, message)
}

func (s *Service) statusTo(w io.Writer, icon string, color Color, message string) {
	if s.config.QuietMode {
		return
	}
	fmt.Fprintf(w, "%s %s\n", s.icons.RenderIconWithColor(icon, s.colors), s.colors.Colorize(message, color))
}

// Header prints a highlighted title
func (s *Service) Header(title string) {
	if s.config.QuietMode {
		return
	}
	fmt.Fprintln(s.out, s.colors.Colorize(title, s.theme.Highlight))
	fmt.Fprintln(s.out, s.colors.Colorize(strings.Repeat("=", len([]rune(title))), s.theme.Muted))
}

// KeyValues prints an aligned "key: value" section in the given key order
func (s *Service) KeyValues(pairs [][2]string) {
	width := 0
	for _, p := range pairs {
		if n := len([]rune(p[0])); n > width {
			width = n
		}
	}
	for _, p := range pairs {
		key := p[0] + ":" + strings.Repeat(" ", width-len([]rune(p[0])))
		fmt.Fprintf(s.out, "  %s %s\n", s.colors.Colorize(key, s.theme.Muted), p[1])
	}
}

// Table renders rows under headers using the configured style
func (s *Service) Table(headers []string, rows [][]string, rightAligned ...int) {
	t := NewTableFormatter(s.colors, s.theme)
	t.SetStyle(s.config.TableStyleValue())
	t.SetMaxWidth(s.config.MaxTableWidth)
	t.SetHeaders(headers)
	for _, col := range rightAligned {
		t.SetColumnAlignment(col, AlignRight)
	}
	for _, row := range rows {
		t.AddRow(row)
	}
	t.RenderTo(s.out)
}

// Output writes v as JSON or YAML, or calls table for the table format
func (s *Service) Output(v any, table func()) error {
	return Render(s.out, s.Format(), v, table)
}

// NewProgressPrinter returns a progress sink bound to the error stream, or
// nil when progress display is disabled.
func (s *Service) NewProgressPrinter() *ProgressPrinter {
	if !s.config.IsProgressEnabled() || s.Format() != FormatTable {
		return nil
	}
	return NewProgressPrinter(s.errOut, s.colors, s.theme, isTerminal(s.errOut))
}

// SortedKeys returns the keys of m in ascending order
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminalFd(f.Fd())
}
