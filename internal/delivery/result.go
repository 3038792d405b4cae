package delivery

import (
	"strings"

	"github.com/buildtall-systems/storebridge/internal/fsm"
)

// Annotations appended to a command in the result lists.
const (
	NoteNotWhitelisted  = "not in whitelist"
	NoteDelivered       = "delivered directly"
	NoteQueued          = "queued for offline recipient"
	NoteExecutionFalse  = "execution returned false"
	noteDeliveryFailed  = "delivery failed: "
	noteExecutionError  = "execution error: "
	failedSummaryPrefix = "Some commands failed: "
)

// Outcome is what happened to one command.
type Outcome struct {
	Command string // rendered command
	State   string // terminal fsm.CommandState*
	Note    string
}

// Annotated returns the command with its note, as reported to the caller.
func (o Outcome) Annotated() string {
	if o.Note == "" {
		return o.Command
	}
	return o.Command + " (" + o.Note + ")"
}

// Failed reports whether the outcome counts as a failure.
func (o Outcome) Failed() bool {
	return o.State == fsm.CommandStateRejected || o.State == fsm.CommandStateFailed
}

// Result is the per-request report returned to the caller.
type Result struct {
	OrderID          OrderID   `json:"orderId"`
	Recipient        string    `json:"minecraftUsername"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	ExecutedCommands []string  `json:"executedCommands"`
	FailedCommands   []string  `json:"failedCommands"`
	QueuedCommands   []string  `json:"queuedCommands"`
	Outcomes         []Outcome `json:"-"`
}

func newResult(req Request) Result {
	return Result{
		OrderID:          req.OrderID,
		Recipient:        req.Recipient,
		ExecutedCommands: []string{},
		FailedCommands:   []string{},
		QueuedCommands:   []string{},
	}
}

func (r *Result) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)

	switch {
	case o.Failed():
		r.FailedCommands = append(r.FailedCommands, o.Annotated())
	case o.State == fsm.CommandStateQueued:
		r.QueuedCommands = append(r.QueuedCommands, o.Annotated())
	default:
		r.ExecutedCommands = append(r.ExecutedCommands, o.Annotated())
	}
}

func (r *Result) finish() {
	r.Success = len(r.FailedCommands) == 0
	r.Error = ""
	if !r.Success {
		r.Error = failedSummaryPrefix + strings.Join(r.FailedCommands, ", ")
	}
}
