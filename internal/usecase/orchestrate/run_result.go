package orchestrate

import (
	"assetflow/internal/domain/check"
	"assetflow/internal/ports"
)

// NodeStatus is the terminal state of one execution node.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "PENDING"
	NodeStatusRunning   NodeStatus = "RUNNING"
	NodeStatusSucceeded NodeStatus = "SUCCEEDED"
	NodeStatusFailed    NodeStatus = "FAILED"
	NodeStatusSkipped   NodeStatus = "SKIPPED"
)

// RunResult is the outcome of one engine run. Asset nodes are named by the
// canonical asset key, check nodes by the executable name.
type RunResult struct {
	runID            string
	statuses         map[string]NodeStatus
	failures         map[string]string
	evaluations      []check.Evaluation
	materializations []ports.EventRecord
	observations     []ports.EventRecord
}

func newRunResult(runID string) *RunResult {
	return &RunResult{
		runID:    runID,
		statuses: make(map[string]NodeStatus),
		failures: make(map[string]string),
	}
}

func (r *RunResult) RunID() string {
	return r.runID
}

// Success reports whether no node failed. Skipped nodes and failing
// non-blocking check results do not fail the run.
func (r *RunResult) Success() bool {
	for _, status := range r.statuses {
		if status == NodeStatusFailed {
			return false
		}
	}
	return true
}

func (r *RunResult) NodeStatus(node string) (NodeStatus, bool) {
	status, ok := r.statuses[node]
	return status, ok
}

// FailureMessage returns the failure message recorded for a failed node.
func (r *RunResult) FailureMessage(node string) (string, bool) {
	message, ok := r.failures[node]
	return message, ok
}

func (r *RunResult) CheckEvaluations() []check.Evaluation {
	cloned := make([]check.Evaluation, len(r.evaluations))
	copy(cloned, r.evaluations)
	return cloned
}

// EvaluationFor returns the recorded evaluation for one check key.
func (r *RunResult) EvaluationFor(key check.Key) (check.Evaluation, bool) {
	for _, eval := range r.evaluations {
		if eval.Key.Equal(key) {
			return eval, true
		}
	}
	return check.Evaluation{}, false
}

func (r *RunResult) MaterializationEvents() []ports.EventRecord {
	cloned := make([]ports.EventRecord, len(r.materializations))
	copy(cloned, r.materializations)
	return cloned
}

func (r *RunResult) ObservationEvents() []ports.EventRecord {
	cloned := make([]ports.EventRecord, len(r.observations))
	copy(cloned, r.observations)
	return cloned
}

func (r *RunResult) setStatus(node string, status NodeStatus) {
	r.statuses[node] = status
}

func (r *RunResult) setFailure(node string, message string) {
	r.statuses[node] = NodeStatusFailed
	r.failures[node] = message
}
