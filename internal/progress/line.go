package progress

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
)

// LineRenderer prints one line per finished transfer. Used when stderr is
// not a terminal.
type LineRenderer struct {
	w     io.Writer
	total int
}

func NewLineRenderer(w io.Writer, total int) *LineRenderer {
	return &LineRenderer{w: w, total: total}
}

func (l *LineRenderer) Render(events <-chan Event) {
	finished := 0
	for e := range events {
		if e.Kind != Finished {
			continue
		}
		finished++
		if e.Err != nil {
			fmt.Fprintln(l.w, FailureLine(e))
			continue
		}
		fmt.Fprintf(l.w, "[%d/%d] %s (%s)\n", finished, l.total, e.Name, HumanBytes(e.Done))
	}
}

// FailureLine is the immediate diagnostic for a failed item.
func FailureLine(e Event) string {
	return color.New(color.FgRed).Render(
		fmt.Sprintf("Error: Failed to download message %s - %v", e.MessageID, e.Err))
}

// HumanBytes formats n with binary units, e.g. 1.5 MiB. Negative counts
// render as zero.
func HumanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
