package orchestrate

import (
	"context"

	"assetflow/internal/domain/check"
	"assetflow/internal/ports"
)

// MaterializeFunc produces the value of one asset. The returned value is
// handed to the resolved IO manager (or the in-run value store).
type MaterializeFunc func(ctx context.Context, ac *AssetContext) (any, error)

// ObserveFunc observes an external source asset without materializing it.
type ObserveFunc func(ctx context.Context, ac *AssetContext) error

// AssetDef declares one asset. Source assets live outside the engine's
// control: they carry no Materialize function and at most an Observe
// function. Inputs is the explicit binding table from input name to the
// upstream asset key whose value is loaded through the IO manager.
type AssetDef struct {
	Key          check.AssetKey
	Deps         []check.AssetKey
	Inputs       map[string]check.AssetKey
	Materialize  MaterializeFunc
	Observe      ObserveFunc
	Source       bool
	IOManagerKey string
}

// AssetContext is handed to Materialize/Observe functions. It owns the run
// scope: run ID, event-log handle, resource table and loaded input values.
type AssetContext struct {
	runID     string
	log       ports.EventLog
	resources map[string]any
	inputs    map[string]any
}

func (ac *AssetContext) RunID() string {
	return ac.runID
}

// Log exposes the append-only event log for read access.
func (ac *AssetContext) Log() ports.EventLog {
	return ac.log
}

func (ac *AssetContext) Resource(name string) (any, bool) {
	value, ok := ac.resources[name]
	return value, ok
}

// Input returns the loaded value for a declared input name.
func (ac *AssetContext) Input(name string) (any, bool) {
	value, ok := ac.inputs[name]
	return value, ok
}
