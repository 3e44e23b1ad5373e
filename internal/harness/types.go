package harness

import "github.com/roach88/symslash/internal/slasher"

// Rename is one symbol renamed by a hash or dehash step.
type Rename struct {
	Index int    `json:"index"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int                   `json:"seq"`
	Op      string                `json:"op"`
	Objects []string              `json:"objects"`
	Collect *slasher.CollectStats `json:"collect,omitempty"`
	Rewrite *slasher.RewriteStats `json:"rewrite,omitempty"`
	Renames []Rename              `json:"renames,omitempty"`
	Failed  bool                  `json:"failed,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	// RunID is the driver run ID shared by every step.
	RunID string `json:"run_id"`

	// Trace contains the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Dir is the scratch directory holding the store and objects.
	Dir string `json:"-"`

	// StorePath is the store file inside Dir.
	StorePath string `json:"-"`

	// Current maps each object name to its latest file inside Dir.
	Current map[string]string `json:"-"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Current: make(map[string]string),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
