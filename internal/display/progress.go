package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"dbvault/internal/backup"
)

const progressBarWidth = 30

// ProgressPrinter renders backup and restore progress events. On a terminal
// it redraws a single bar line; otherwise it prints one line per stage.
type ProgressPrinter struct {
	writer    io.Writer
	colorSys  ColorSystem
	theme     ColorTheme
	redraw    bool
	lastStage string
	drawn     bool
	mu        sync.Mutex
}

// NewProgressPrinter creates a printer writing to w
func NewProgressPrinter(w io.Writer, colorSys ColorSystem, theme ColorTheme, redraw bool) *ProgressPrinter {
	return &ProgressPrinter{writer: w, colorSys: colorSys, theme: theme, redraw: redraw}
}

// Report implements backup.ProgressSink
func (p *ProgressPrinter) Report(ev backup.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.redraw {
		if ev.Stage == p.lastStage {
			return
		}
		p.lastStage = ev.Stage
		if ev.Progress == backup.NoProgress {
			fmt.Fprintf(p.writer, "%s\n", ev.Message)
			return
		}
		fmt.Fprintf(p.writer, "[%3d%%] %s\n", ev.Progress, ev.Message)
		return
	}

	line := ev.Message
	if ev.Progress != backup.NoProgress {
		line = p.bar(ev.Progress) + fmt.Sprintf(" %3d%% ", ev.Progress) + ev.Message
	}
	fmt.Fprintf(p.writer, "\r\033[K%s", line)
	p.drawn = true
	if ev.Stage == backup.StageComplete {
		fmt.Fprintln(p.writer)
		p.drawn = false
	}
}

// Finish ends a bar line left open by a failed operation
func (p *ProgressPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.writer)
		p.drawn = false
	}
}

func (p *ProgressPrinter) bar(pct int) string {
	filled := progressBarWidth * min(max(pct, 0), 100) / 100
	done := strings.Repeat("█", filled)
	rest := strings.Repeat("░", progressBarWidth-filled)
	if p.colorSys != nil {
		done = p.colorSys.Colorize(done, p.theme.Success)
		rest = p.colorSys.Colorize(rest, p.theme.Muted)
	}
	return "[" + done + rest + "]"
}
