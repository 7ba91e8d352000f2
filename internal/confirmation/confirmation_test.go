package confirmation

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"dbvault/internal/display"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(input string) (ConfirmationService, *bytes.Buffer) {
	var out bytes.Buffer
	cfg := display.DefaultConfig()
	cfg.ColorEnabled = false
	cfg.UseIcons = false
	cfg.Writer = &out
	cfg.ErrWriter = &out
	return NewConfirmationService(display.NewService(cfg), strings.NewReader(input), &out), &out
}

func restoreSummary() *Summary {
	return &Summary{
		Action:  "Restore",
		Target:  "backup-20240115-103000-1a2b3c4d.tar.gz",
		Details: [][2]string{{"Database", "shop (sqlite)"}, {"Rows", "5"}},
		Tables:  map[string]int64{"invoices": 3, "customers": 2},
		Warnings: []string{
			"All rows in 2 table(s) will be replaced",
		},
	}
}

func TestConfirm_Answers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes word", "YES\n", true},
		{"no", "n\n", false},
		{"empty line", "\n", false},
		{"end of input", "", false},
		{"answer without newline", "y", true},
		{"invalid then yes", "maybe\ny\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, _ := newTestService(tt.input)
			ok, err := cs.Confirm(context.Background(), restoreSummary(), false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestConfirm_ShowsSummary(t *testing.T) {
	cs, out := newTestService("n\n")
	_, err := cs.Confirm(context.Background(), restoreSummary(), false)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Restore backup-20240115-103000-1a2b3c4d.tar.gz")
	assert.Contains(t, text, "shop (sqlite)")
	assert.Contains(t, text, "All rows in 2 table(s) will be replaced")
	assert.Contains(t, text, "Restore? [y/N/d]: ")
	assert.NotContains(t, text, "invoices")
}

func TestConfirm_Details(t *testing.T) {
	cs, out := newTestService("d\ny\n")
	ok, err := cs.Confirm(context.Background(), restoreSummary(), false)
	require.NoError(t, err)
	assert.True(t, ok)

	text := out.String()
	assert.Less(t, strings.Index(text, "customers"), strings.Index(text, "invoices"))
	assert.Equal(t, 2, strings.Count(text, "Restore? [y/N/d]: "))
}

func TestConfirm_InvalidInput(t *testing.T) {
	cs, out := newTestService("x\nn\n")
	ok, err := cs.Confirm(context.Background(), restoreSummary(), false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "Invalid input 'x'")
}

func TestConfirm_AutoApprove(t *testing.T) {
	cs, out := newTestService("")
	ok, err := cs.Confirm(context.Background(), restoreSummary(), true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Auto-approving restore")
	assert.NotContains(t, out.String(), "[y/N/d]")
}

func TestConfirm_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	cfg := display.DefaultConfig()
	cfg.Writer = &out
	cfg.ErrWriter = &out
	cs := NewConfirmationService(display.NewService(cfg), pr, &out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ok, err := cs.Confirm(ctx, restoreSummary(), false)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInteractive(t *testing.T) {
	assert.True(t, Interactive(strings.NewReader("y\n")))
	assert.False(t, Interactive(nil))

	f, err := os.CreateTemp(t.TempDir(), "answers")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, Interactive(f))
}
