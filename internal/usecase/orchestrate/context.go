package orchestrate

import (
	"assetflow/internal/domain/check"
	"assetflow/internal/ports"
)

// CheckContext is handed to check functions. It exposes the selected check
// keys for this invocation so subsettable executables can limit their work.
type CheckContext struct {
	runID     string
	log       ports.EventLog
	resources map[string]any
	inputs    map[string]any
	selected  []check.Key
}

func (cc *CheckContext) RunID() string {
	return cc.runID
}

// Log exposes the append-only event log for read access.
func (cc *CheckContext) Log() ports.EventLog {
	return cc.log
}

// SelectedCheckKeys returns the exact keys this invocation must produce
// results for, in declaration order.
func (cc *CheckContext) SelectedCheckKeys() []check.Key {
	cloned := make([]check.Key, len(cc.selected))
	copy(cloned, cc.selected)
	return cloned
}

func (cc *CheckContext) IsSelected(key check.Key) bool {
	for _, candidate := range cc.selected {
		if candidate.Equal(key) {
			return true
		}
	}
	return false
}

func (cc *CheckContext) Resource(name string) (any, bool) {
	value, ok := cc.resources[name]
	return value, ok
}

// Input returns the loaded value for a declared input name.
func (cc *CheckContext) Input(name string) (any, bool) {
	value, ok := cc.inputs[name]
	return value, ok
}
