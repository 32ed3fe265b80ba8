package batch

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/vicentereig/whatsapp-media-dl/internal/progress"
	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

// Status is the terminal state of a transfer.
type Status string

const (
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
)

// Outcome is created once per task when it finishes.
type Outcome struct {
	Reference        types.MediaReference
	LocalPath        string
	BytesTransferred int64
	Status           Status
	Err              error

	// Admitted is false when the task never got a gate slot.
	Admitted bool
}

func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Estimate sums the size hints of refs, counting unknown sizes as zero.
func Estimate(refs []types.MediaReference) int64 {
	return lo.SumBy(refs, func(r types.MediaReference) int64 {
		n, _ := r.SizeHint()
		return n
	})
}

// Report aggregates outcomes in any completion order.
type Report struct {
	ID             string
	ChatJID        string
	Start          int
	Requested      int
	EstimatedBytes int64

	mu       sync.Mutex
	outcomes []Outcome
}

func NewReport(refs []types.MediaReference, start int) *Report {
	return &Report{
		Start:          start,
		Requested:      len(refs),
		EstimatedBytes: Estimate(refs),
		outcomes:       make([]Outcome, 0, len(refs)),
	}
}

func (r *Report) Record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

// Outcomes returns a copy ordered by history position.
func (r *Report) Outcomes() []Outcome {
	r.mu.Lock()
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Reference.Position < out[j].Reference.Position
	})
	return out
}

func (r *Report) Succeeded() int {
	return lo.CountBy(r.Outcomes(), func(o Outcome) bool { return o.Status == StatusSucceeded })
}

func (r *Report) Failed() int {
	return lo.CountBy(r.Outcomes(), func(o Outcome) bool { return o.Status == StatusFailed })
}

func (r *Report) BytesTransferred() int64 {
	return lo.SumBy(r.Outcomes(), func(o Outcome) int64 { return o.BytesTransferred })
}

// PreflightLine is printed before any transfer starts.
func (r *Report) PreflightLine() string {
	return fmt.Sprintf("Total size to be downloaded: %d bytes (~%.2f MB)",
		r.EstimatedBytes, float64(r.EstimatedBytes)/(1024*1024))
}

// Summary is the human readable result line.
func (r *Report) Summary() string {
	s := fmt.Sprintf("Downloaded %d/%d media (%s)", r.Succeeded(), r.Requested,
		progress.HumanBytes(r.BytesTransferred()))
	if failed := r.Failed(); failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	return s
}

// ItemView is the JSON projection of one outcome.
type ItemView struct {
	Position  int    `json:"position"`
	MessageID string `json:"message_id"`
	Path      string `json:"path,omitempty"`
	Bytes     int64  `json:"bytes"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
}

// View is the JSON projection of the report.
type View struct {
	BatchID        string     `json:"batch_id,omitempty"`
	ChatJID        string     `json:"chat_jid,omitempty"`
	Requested      int        `json:"requested"`
	Succeeded      int        `json:"succeeded"`
	Failed         int        `json:"failed"`
	EstimatedBytes int64      `json:"estimated_bytes"`
	Bytes          int64      `json:"bytes"`
	Items          []ItemView `json:"items"`
}

func (r *Report) View() View {
	items := lo.Map(r.Outcomes(), func(o Outcome, _ int) ItemView {
		return ItemView{
			Position:  o.Reference.Position,
			MessageID: o.Reference.MessageID,
			Path:      o.LocalPath,
			Bytes:     o.BytesTransferred,
			Status:    o.Status,
			Error:     o.Reason(),
		}
	})
	return View{
		BatchID:        r.ID,
		ChatJID:        r.ChatJID,
		Requested:      r.Requested,
		Succeeded:      r.Succeeded(),
		Failed:         r.Failed(),
		EstimatedBytes: r.EstimatedBytes,
		Bytes:          r.BytesTransferred(),
		Items:          items,
	}
}

// WriteTable renders the failed items, or nothing when all succeeded.
func (r *Report) WriteTable(w io.Writer) {
	failed := lo.Filter(r.Outcomes(), func(o Outcome, _ int) bool { return o.Status == StatusFailed })
	if len(failed) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Message", "Bytes", "Error"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, o := range failed {
		table.Append([]string{
			strconv.Itoa(o.Reference.Position),
			o.Reference.MessageID,
			strconv.FormatInt(o.BytesTransferred, 10),
			o.Reason(),
		})
	}
	table.Render()
}
