package backup

// Progress stages reported by CreateBackup and RestoreFromBackup
const (
	StageSchema     = "schema"
	StageExporting  = "exporting"
	StagePackaging  = "packaging"
	StageTruncating = "truncating"
	StageInserting  = "inserting"
	StageFiles      = "files"
	StageComplete   = "complete"
)

// NoProgress marks an event that carries no percentage
const NoProgress = -1

// ProgressEvent is one progress notification. Progress is 0-100 or NoProgress.
type ProgressEvent struct {
	Stage    string `json:"stage"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
	Table    string `json:"table,omitempty"`
}

// ProgressSink receives progress events. Report is called synchronously from
// the operation and should return quickly.
type ProgressSink interface {
	Report(event ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(event ProgressEvent)

func (f ProgressFunc) Report(event ProgressEvent) { f(event) }

type discardProgress struct{}

func (discardProgress) Report(ProgressEvent) {}

// progressTracker keeps reported percentages monotonic within one operation
type progressTracker struct {
	sink ProgressSink
	last int
}

func newProgressTracker(sink ProgressSink) *progressTracker {
	if sink == nil {
		sink = discardProgress{}
	}
	return &progressTracker{sink: sink}
}

func (t *progressTracker) report(stage, table, message string, pct int) {
	if pct != NoProgress {
		if pct > 100 {
			pct = 100
		}
		if pct < t.last {
			pct = t.last
		}
		t.last = pct
	}
	if table != "" {
		stage = stage + ":" + table
	}
	t.sink.Report(ProgressEvent{Stage: stage, Message: message, Progress: pct, Table: table})
}

// span maps step i of n onto the percentage range [from, to)
func span(from, to, i, n int) int {
	if n <= 0 {
		return from
	}
	return from + (to-from)*i/n
}
