package display

import (
	"io"
	"os"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

// IconSystem handles icon rendering with fallbacks
type IconSystem interface {
	RenderIcon(name string) string
	RenderIconWithColor(name string, colorSystem ColorSystem) string
	IsUnicodeSupported() bool
}

type iconSystem struct {
	unicode bool
	icons   map[string]Icon
}

// NewIconSystem creates an icon system rendering Unicode glyphs or their
// ASCII fallbacks.
func NewIconSystem(unicode bool) IconSystem {
	return &iconSystem{
		unicode: unicode,
		icons: map[string]Icon{
			"success":  {Unicode: "✓", ASCII: "[OK]", Color: ColorGreen},
			"error":    {Unicode: "✗", ASCII: "[ERROR]", Color: ColorRed},
			"warning":  {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
			"info":     {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorCyan},
			"archive":  {Unicode: "📦", ASCII: "[ARCHIVE]", Color: ColorBlue},
			"database": {Unicode: "🗄", ASCII: "[DB]", Color: ColorBlue},
			"files":    {Unicode: "📁", ASCII: "[FILES]", Color: ColorBlue},
		},
	}
}

// detectUnicodeSupport checks if w is a terminal likely to render Unicode
func detectUnicodeSupport(w io.Writer) bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}
	if t := os.Getenv("TERM"); t == "dumb" || t == "vt100" {
		return false
	}
	return isTerminal(w)
}

// RenderIcon returns the glyph for name, or "" for an unknown icon
func (is *iconSystem) RenderIcon(name string) string {
	icon, ok := is.icons[name]
	if !ok {
		return ""
	}
	if is.unicode {
		return icon.Unicode
	}
	return icon.ASCII
}

// RenderIconWithColor renders the icon in its own color
func (is *iconSystem) RenderIconWithColor(name string, colorSystem ColorSystem) string {
	text := is.RenderIcon(name)
	if colorSystem == nil {
		return text
	}
	return colorSystem.Colorize(text, is.icons[name].Color)
}

func (is *iconSystem) IsUnicodeSupported() bool {
	return is.unicode
}
