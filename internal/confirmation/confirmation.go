// Package confirmation asks the operator to approve destructive operations
package confirmation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dbvault/internal/display"

	"github.com/mattn/go-isatty"
)

// ErrConfirmationRequired is returned when approval is needed but the input
// is not a terminal
var ErrConfirmationRequired = errors.New("confirmation required: rerun with --yes to proceed without a prompt")

// Summary describes a destructive operation awaiting approval
type Summary struct {
	Action  string
	Target  string
	Details [][2]string
	// Tables lists the affected tables and their archived row counts; shown
	// when the operator asks for details
	Tables   map[string]int64
	Warnings []string
}

// ConfirmationService handles user confirmation for destructive operations
type ConfirmationService interface {
	Confirm(ctx context.Context, summary *Summary, autoApprove bool) (bool, error)
}

// confirmationService implements the ConfirmationService interface
type confirmationService struct {
	display *display.Service
	reader  *bufio.Reader
	out     io.Writer
}

// NewConfirmationService creates a service that prints through disp and
// reads answers from in. Prompts go to out even in quiet mode.
func NewConfirmationService(disp *display.Service, in io.Reader, out io.Writer) ConfirmationService {
	return &confirmationService{
		display: disp,
		reader:  bufio.NewReader(in),
		out:     out,
	}
}

// Interactive reports whether answers can be read from in. Files must be
// terminals; any other reader is assumed to be scripted.
func Interactive(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return in != nil
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Confirm shows the summary and asks for approval. It returns false without
// an error when the operator declines, and ctx.Err() when ctx is cancelled
// while waiting.
func (cs *confirmationService) Confirm(ctx context.Context, summary *Summary, autoApprove bool) (bool, error) {
	cs.displaySummary(summary)

	if autoApprove {
		cs.display.Info("Auto-approving " + strings.ToLower(summary.Action))
		return true, nil
	}

	for {
		input, err := cs.promptForConfirmation(ctx, summary)
		if err != nil {
			return false, err
		}

		switch input {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			return false, nil
		case "d", "details":
			cs.displayTableDetails(summary)
		default:
			fmt.Fprintf(cs.out, "Invalid input '%s'. Please enter 'y' for yes, 'n' for no, or 'd' for details.\n", input)
		}
	}
}

func (cs *confirmationService) displaySummary(summary *Summary) {
	cs.display.Header(fmt.Sprintf("%s %s", summary.Action, summary.Target))
	if len(summary.Details) > 0 {
		cs.display.KeyValues(summary.Details)
	}
	for _, w := range summary.Warnings {
		cs.display.Warning(w)
	}
}

func (cs *confirmationService) displayTableDetails(summary *Summary) {
	if len(summary.Tables) == 0 {
		fmt.Fprintln(cs.out, "No table details available.")
		return
	}
	rows := make([][]string, 0, len(summary.Tables))
	for _, name := range display.SortedKeys(summary.Tables) {
		rows = append(rows, []string{name, strconv.FormatInt(summary.Tables[name], 10)})
	}
	cs.display.Table([]string{"TABLE", "ROWS"}, rows, 1)
}

// promptForConfirmation reads one answer, giving up when ctx is cancelled.
// End of input counts as "no".
func (cs *confirmationService) promptForConfirmation(ctx context.Context, summary *Summary) (string, error) {
	fmt.Fprintf(cs.out, "%s? [y/N/d]: ", summary.Action)

	type answer struct {
		text string
		err  error
	}
	answers := make(chan answer, 1)
	go func() {
		text, err := cs.reader.ReadString('\n')
		answers <- answer{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cs.out)
		return "", ctx.Err()
	case a := <-answers:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return "", fmt.Errorf("failed to read input: %w", a.err)
		}
		text := strings.ToLower(strings.TrimSpace(a.text))
		if errors.Is(a.err, io.EOF) && text == "" {
			fmt.Fprintln(cs.out)
			return "n", nil
		}
		return text, nil
	}
}
