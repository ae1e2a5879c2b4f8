package check

// MaterializationRef points at one persisted materialization event of the
// check's target asset.
type MaterializationRef struct {
	RunID     string
	StorageID uint64
	Timestamp string
}

// Evaluation is the persisted outcome of evaluating one Spec.
// TargetMaterialization is set only when a materialization of the target
// asset key was resolvable from the event log at evaluation time (same run,
// or the most recent prior run); otherwise it stays nil.
type Evaluation struct {
	Key                   Key
	Passed                bool
	Severity              Severity
	Metadata              map[string]any
	TargetMaterialization *MaterializationRef
}
