package workflow

import (
	"time"

	"github.com/finsight-ai/finsight/pkg/schema"
)

// ToolOutput is one entry in the run's append-only tool output log.
// Entries are immutable once appended; failed invocations are recorded with
// Failed=true and the error code/message instead of data.
type ToolOutput struct {
	Node     string         `json:"node"`
	Data     map[string]any `json:"data,omitempty"`
	Failed   bool           `json:"failed,omitempty"`
	ErrCode  string         `json:"err_code,omitempty"`
	ErrMsg   string         `json:"err_msg,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
	At       time.Time      `json:"at"`
}

// State is the mutable, run-scoped data carried through a workflow
// execution. Each run owns exactly one State; it is never shared across
// runs, so no internal locking is required.
type State struct {
	Request        *schema.Request
	Plan           any
	IterationCount int
	Result         map[string]any
	Slots          map[string]any

	outputs []ToolOutput
}

// NewState seeds a State with the normalized request.
func NewState(req *schema.Request) *State {
	return &State{
		Request: req,
		Slots:   make(map[string]any),
	}
}

// AppendOutput records a tool invocation outcome. The log is append-only;
// existing entries are never modified or removed.
func (s *State) AppendOutput(out ToolOutput) {
	if out.At.IsZero() {
		out.At = time.Now().UTC()
	}
	s.outputs = append(s.outputs, out)
}

// Outputs returns a copy of the tool output log in append order.
func (s *State) Outputs() []ToolOutput {
	out := make([]ToolOutput, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// LastOutput returns the most recently appended entry, if any.
func (s *State) LastOutput() (ToolOutput, bool) {
	if len(s.outputs) == 0 {
		return ToolOutput{}, false
	}
	return s.outputs[len(s.outputs)-1], true
}

// Snapshot renders the state as the flat map handed to edge predicates and
// adapters. The snapshot is a point-in-time view; mutating it does not
// affect the State.
func (s *State) Snapshot() map[string]any {
	req := map[string]any{}
	if s.Request != nil {
		req = map[string]any{
			"user_query": s.Request.Query,
			"context":    s.Request.Context,
			"session_id": s.Request.SessionID,
		}
		if s.Request.UserProfile != nil {
			req["user_profile"] = s.Request.UserProfile
		}
	}

	last := map[string]any{}
	if o, ok := s.LastOutput(); ok {
		last = map[string]any{
			"node":   o.Node,
			"output": o.Data,
			"failed": o.Failed,
			"error":  o.ErrMsg,
		}
	}

	outs := make([]any, len(s.outputs))
	for i, o := range s.outputs {
		outs[i] = map[string]any{
			"node":   o.Node,
			"output": o.Data,
			"failed": o.Failed,
		}
	}

	slots := make(map[string]any, len(s.Slots))
	for k, v := range s.Slots {
		slots[k] = v
	}

	return map[string]any{
		"request":         req,
		"plan":            s.Plan,
		"iteration_count": s.IterationCount,
		"slots":           slots,
		"last":            last,
		"outputs":         outs,
		"result":          s.Result,
	}
}
