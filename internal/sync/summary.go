package sync

// SyncSummary counts the work done during one sync call.
// It is never cumulative across calls.
type SyncSummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Aggregator accumulates a SyncSummary over one pass.
// It is not safe for concurrent use; each pass owns its own Aggregator.
type Aggregator struct {
	summary SyncSummary
}

// NewAggregator returns an Aggregator starting at {0, 0, 0}.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Attempt is called before each executor call.
func (a *Aggregator) Attempt() {
	a.summary.Attempted++
}

// Succeed records a successful attempt.
func (a *Aggregator) Succeed() {
	a.summary.Succeeded++
}

// Fail records a failed or dropped attempt.
func (a *Aggregator) Fail() {
	a.summary.Failed++
}

// Summary returns the current counts by value.
func (a *Aggregator) Summary() SyncSummary {
	return a.summary
}
