package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"assetflow/internal/bootstrap/logging"
	"assetflow/internal/domain/check"
	"assetflow/internal/errs"
	"assetflow/internal/ports"
)

// Engine executes one selection of assets and checks against a registry.
// Nodes run sequentially in dependency order. Every selected check gets a
// check_evaluation_planned event before any node runs; each produced result
// becomes exactly one check_evaluation event.
type Engine struct {
	log      ports.EventLog
	uow      ports.UnitOfWork
	now      func() time.Time
	newRunID func() string
}

type EngineOption func(*Engine)

// WithUnitOfWork makes the engine emit the planned events of a run in one
// transaction.
func WithUnitOfWork(uow ports.UnitOfWork) EngineOption {
	return func(e *Engine) { e.uow = uow }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithRunIDFunc(fn func() string) EngineOption {
	return func(e *Engine) { e.newRunID = fn }
}

func NewEngine(log ports.EventLog, opts ...EngineOption) *Engine {
	engine := &Engine{
		log:      log,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

type assetNode struct {
	name string
	def  AssetDef
}

type checkNode struct {
	exec     *CheckExecutable
	selected []check.Spec
}

// Execute runs the selection and returns the run outcome. Misattributed or
// missing check results abort the run with an error; node-level failures are
// recorded on the result instead.
func (e *Engine) Execute(ctx context.Context, defs *Definitions, sel Selection) (*RunResult, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if defs == nil {
		return nil, errors.New("definitions are required")
	}
	if e.log == nil {
		return nil, errors.New("event log is required")
	}

	selAssets, selChecks, err := sel.resolve(defs)
	if err != nil {
		return nil, err
	}

	runID := e.newRunID()
	ctx = logging.WithAttrs(ctx, slog.String("run_id", runID))
	result := newRunResult(runID)

	var assetNodes []assetNode
	hasAssetNode := make(map[string]bool)
	for _, canonical := range defs.assetOrder {
		if !selAssets[canonical] {
			continue
		}
		def := defs.assets[canonical]
		if def.Source && def.Observe == nil {
			continue
		}
		assetNodes = append(assetNodes, assetNode{name: canonical, def: def})
		hasAssetNode[canonical] = true
	}

	var checkNodes []*checkNode
	// blockingGuards maps an asset key to the check nodes that gate its
	// downstream consumers.
	blockingGuards := make(map[string][]*checkNode)
	for _, exec := range defs.checks {
		var selected []check.Spec
		for _, spec := range exec.specs {
			if selChecks[spec.Key().String()] {
				selected = append(selected, spec)
			}
		}
		if len(selected) == 0 {
			continue
		}
		node := &checkNode{exec: exec, selected: selected}
		checkNodes = append(checkNodes, node)
		for _, spec := range selected {
			if spec.Blocking {
				canonical := spec.Asset.String()
				blockingGuards[canonical] = append(blockingGuards[canonical], node)
			}
		}
	}

	if err := e.emitPlannedEvents(ctx, runID, checkNodes); err != nil {
		return nil, err
	}

	runStore := make(map[string]any)
	pendingAssets := assetNodes
	pendingChecks := checkNodes

	for len(pendingAssets)+len(pendingChecks) > 0 {
		if ctx.Err() != nil {
			break
		}

		progressed := false

		var nextAssets []assetNode
		for _, node := range pendingAssets {
			if !e.assetReady(node, result, hasAssetNode, blockingGuards) {
				nextAssets = append(nextAssets, node)
				continue
			}
			e.runAssetNode(ctx, runID, defs, node, result, hasAssetNode, blockingGuards, runStore)
			progressed = true
		}
		pendingAssets = nextAssets

		var nextChecks []*checkNode
		for _, node := range pendingChecks {
			if !e.checkReady(node, result, hasAssetNode) {
				nextChecks = append(nextChecks, node)
				continue
			}
			if err := e.runCheckNode(ctx, runID, defs, node, result, hasAssetNode, runStore); err != nil {
				return nil, err
			}
			progressed = true
		}
		pendingChecks = nextChecks

		if !progressed {
			return nil, errors.New("dependency cycle among selected nodes")
		}
	}

	// A cancelled run never fails nodes it did not reach; they end skipped.
	if err := ctx.Err(); err != nil {
		for _, node := range pendingAssets {
			result.setStatus(node.name, NodeStatusSkipped)
		}
		for _, node := range pendingChecks {
			result.setStatus(node.exec.name, NodeStatusSkipped)
		}
		return result, errs.Wrap(err, "run cancelled")
	}

	return result, nil
}

func (e *Engine) emitPlannedEvents(ctx context.Context, runID string, checkNodes []*checkNode) error {
	emit := func(ctx context.Context) error {
		for _, node := range checkNodes {
			for _, spec := range node.selected {
				_, err := e.log.Append(ctx, ports.EventRecordCreate{
					RunID:     runID,
					Type:      ports.EventTypeCheckPlanned,
					AssetKey:  spec.Asset.String(),
					CheckName: spec.Name,
					Timestamp: e.timestamp(),
				})
				if err != nil {
					return errs.Wrap(err, "append planned event")
				}
			}
		}
		return nil
	}

	if e.uow != nil {
		return e.uow.WithTx(ctx, emit)
	}
	return emit(ctx)
}

func (e *Engine) assetReady(node assetNode, result *RunResult, hasAssetNode map[string]bool, blockingGuards map[string][]*checkNode) bool {
	for _, dep := range node.def.Deps {
		canonical := dep.String()
		if hasAssetNode[canonical] && !terminal(result, canonical) {
			return false
		}
		for _, guard := range blockingGuards[canonical] {
			if !terminal(result, guard.exec.name) {
				return false
			}
		}
	}
	return true
}

func (e *Engine) checkReady(node *checkNode, result *RunResult, hasAssetNode map[string]bool) bool {
	for _, spec := range node.selected {
		canonical := spec.Asset.String()
		if hasAssetNode[canonical] && !terminal(result, canonical) {
			return false
		}
	}
	return true
}

func (e *Engine) runAssetNode(
	ctx context.Context,
	runID string,
	defs *Definitions,
	node assetNode,
	result *RunResult,
	hasAssetNode map[string]bool,
	blockingGuards map[string][]*checkNode,
	runStore map[string]any,
) {
	if ctx.Err() != nil {
		result.setStatus(node.name, NodeStatusSkipped)
		return
	}

	for _, dep := range node.def.Deps {
		canonical := dep.String()
		if hasAssetNode[canonical] {
			if status, _ := result.NodeStatus(canonical); status != NodeStatusSucceeded {
				result.setStatus(node.name, NodeStatusSkipped)
				return
			}
		}
		for _, guard := range blockingGuards[canonical] {
			if status, _ := result.NodeStatus(guard.exec.name); status == NodeStatusFailed {
				result.setStatus(node.name, NodeStatusSkipped)
				return
			}
		}
	}

	inputs, err := e.loadInputs(ctx, defs, defs.resources, node.def.Inputs, runStore)
	if err != nil {
		e.recordStepFailure(ctx, runID, result, node.name, node.name, "", err)
		return
	}

	ac := &AssetContext{
		runID:     runID,
		log:       e.log,
		resources: defs.resources,
		inputs:    inputs,
	}

	if node.def.Source {
		if err := node.def.Observe(ctx, ac); err != nil {
			e.recordStepFailure(ctx, runID, result, node.name, node.name, "", err)
			return
		}
		record, err := e.log.Append(ctx, ports.EventRecordCreate{
			RunID:     runID,
			Type:      ports.EventTypeObservation,
			AssetKey:  node.name,
			Timestamp: e.timestamp(),
		})
		if err != nil {
			e.recordStepFailure(ctx, runID, result, node.name, node.name, "", errs.Wrap(err, "append observation event"))
			return
		}
		result.observations = append(result.observations, record)
		result.setStatus(node.name, NodeStatusSucceeded)
		return
	}

	value, err := node.def.Materialize(ctx, ac)
	if err != nil {
		e.recordStepFailure(ctx, runID, result, node.name, node.name, "", err)
		return
	}
	runStore[node.name] = value

	manager, err := outputManager(defs.resources, node.def)
	if err != nil {
		e.recordStepFailure(ctx, runID, result, node.name, node.name, "", err)
		return
	}
	if manager != nil {
		if err := manager.HandleOutput(ctx, node.def.Key, value); err != nil {
			e.recordStepFailure(ctx, runID, result, node.name, node.name, "", errs.Wrap(err, "handle asset output"))
			return
		}
	}

	record, err := e.log.Append(ctx, ports.EventRecordCreate{
		RunID:     runID,
		Type:      ports.EventTypeMaterialization,
		AssetKey:  node.name,
		Timestamp: e.timestamp(),
	})
	if err != nil {
		e.recordStepFailure(ctx, runID, result, node.name, node.name, "", errs.Wrap(err, "append materialization event"))
		return
	}
	result.materializations = append(result.materializations, record)
	result.setStatus(node.name, NodeStatusSucceeded)
}

func (e *Engine) runCheckNode(
	ctx context.Context,
	runID string,
	defs *Definitions,
	node *checkNode,
	result *RunResult,
	hasAssetNode map[string]bool,
	runStore map[string]any,
) error {
	name := node.exec.name

	if ctx.Err() != nil {
		result.setStatus(name, NodeStatusSkipped)
		return nil
	}

	for _, spec := range node.selected {
		canonical := spec.Asset.String()
		if !hasAssetNode[canonical] {
			continue
		}
		if status, _ := result.NodeStatus(canonical); status != NodeStatusSucceeded {
			result.setStatus(name, NodeStatusSkipped)
			return nil
		}
	}

	resources := defs.resourcesFor(node.exec)
	inputs, err := e.loadInputs(ctx, defs, resources, node.exec.inputs, runStore)
	if err != nil {
		e.recordStepFailure(ctx, runID, result, name, failureAssetKey(node), failureCheckName(node), err)
		return nil
	}

	selectedKeys := make([]check.Key, 0, len(node.selected))
	for _, spec := range node.selected {
		selectedKeys = append(selectedKeys, spec.Key())
	}

	cc := &CheckContext{
		runID:     runID,
		log:       e.log,
		resources: resources,
		inputs:    inputs,
		selected:  selectedKeys,
	}

	var results []check.Result
	var fnErr error
	if node.exec.single != nil {
		var single check.Result
		single, fnErr = node.exec.single(ctx, cc)
		if fnErr == nil {
			results = []check.Result{single}
		}
	} else {
		results, fnErr = node.exec.multi(ctx, cc)
	}
	if fnErr != nil {
		e.recordStepFailure(ctx, runID, result, name, failureAssetKey(node), failureCheckName(node), fnErr)
		return nil
	}

	bound, err := bindResults(node, selectedKeys, results)
	if err != nil {
		return err
	}

	failureMessage := ""
	for _, item := range bound {
		severity := item.result.Severity.Normalize()
		if !severity.Valid() {
			return fmt.Errorf("invalid severity %q on result for %s", item.result.Severity, item.key.String())
		}

		metadataJSON, err := marshalMetadata(item.result.Metadata)
		if err != nil {
			return err
		}

		latest, err := e.log.LatestMaterialization(ctx, item.key.Asset.String())
		if err != nil {
			return err
		}

		passed := item.result.Passed
		create := ports.EventRecordCreate{
			RunID:        runID,
			Type:         ports.EventTypeCheckEvaluation,
			AssetKey:     item.key.Asset.String(),
			CheckName:    item.key.Name,
			Passed:       &passed,
			Severity:     string(severity),
			MetadataJSON: metadataJSON,
			Timestamp:    e.timestamp(),
		}
		if latest != nil {
			create.TargetRunID = latest.RunID
			create.TargetStorageID = latest.StorageID
			create.TargetTimestamp = latest.Timestamp
		}
		if _, err := e.log.Append(ctx, create); err != nil {
			return errs.Wrap(err, "append check evaluation event")
		}

		eval := check.Evaluation{
			Key:      item.key,
			Passed:   item.result.Passed,
			Severity: severity,
			Metadata: item.result.Metadata,
		}
		if latest != nil {
			eval.TargetMaterialization = &check.MaterializationRef{
				RunID:     latest.RunID,
				StorageID: latest.StorageID,
				Timestamp: latest.Timestamp,
			}
		}
		result.evaluations = append(result.evaluations, eval)

		spec := specFor(node, item.key)
		if spec.Blocking && !item.result.Passed && severity == check.SeverityError && failureMessage == "" {
			failureMessage = fmt.Sprintf(
				"blocking check %q for asset %q failed with ERROR severity",
				item.key.Name, item.key.Asset.String(),
			)
		}
	}

	if failureMessage != "" {
		result.setFailure(name, failureMessage)
	} else {
		result.setStatus(name, NodeStatusSucceeded)
	}
	return nil
}

type boundResult struct {
	key    check.Key
	result check.Result
}

// bindResults attributes each result to exactly one selected key and
// enforces the one-result-per-selected-spec contract.
func bindResults(node *checkNode, selectedKeys []check.Key, results []check.Result) ([]boundResult, error) {
	bound := make([]boundResult, 0, len(results))
	seen := make(map[string]bool, len(selectedKeys))

	for _, r := range results {
		key, err := r.ResolveKey(selectedKeys)
		if err != nil {
			if unselected, ok := matchesUnselectedSpec(node, r); ok {
				return nil, fmt.Errorf("%w: %s", check.ErrUnrequestedCheckKey, unselected.String())
			}
			return nil, err
		}
		canonical := key.String()
		if seen[canonical] {
			return nil, fmt.Errorf("%w: %s", check.ErrDuplicateResult, canonical)
		}
		seen[canonical] = true
		bound = append(bound, boundResult{key: key, result: r})
	}

	for _, key := range selectedKeys {
		if !seen[key.String()] {
			return nil, fmt.Errorf("check %q produced no result for %s", node.exec.name, key.String())
		}
	}
	return bound, nil
}

// matchesUnselectedSpec reports whether a result that escaped the selected
// keys actually names a declared but unselected spec of the same executable.
func matchesUnselectedSpec(node *checkNode, r check.Result) (check.Key, bool) {
	for _, spec := range node.exec.specs {
		selected := false
		for _, sel := range node.selected {
			if sel.Key().Equal(spec.Key()) {
				selected = true
				break
			}
		}
		if selected {
			continue
		}
		if !r.Asset.IsZero() && !r.Asset.Equal(spec.Asset) {
			continue
		}
		if r.CheckName != "" && r.CheckName != spec.Name {
			continue
		}
		return spec.Key(), true
	}
	return check.Key{}, false
}

func specFor(node *checkNode, key check.Key) check.Spec {
	for _, spec := range node.selected {
		if spec.Key().Equal(key) {
			return spec
		}
	}
	return check.Spec{}
}

func failureAssetKey(node *checkNode) string {
	first := node.selected[0].Asset
	for _, spec := range node.selected[1:] {
		if !spec.Asset.Equal(first) {
			return ""
		}
	}
	return first.String()
}

func failureCheckName(node *checkNode) string {
	if len(node.selected) == 1 {
		return node.selected[0].Name
	}
	return ""
}

// loadInputs resolves every declared input binding. An input is loaded
// through the asset's named IO manager, then the shared "io_manager"
// resource, then the in-run value store.
func (e *Engine) loadInputs(
	ctx context.Context,
	defs *Definitions,
	resources map[string]any,
	inputs map[string]check.AssetKey,
	runStore map[string]any,
) (map[string]any, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	loaded := make(map[string]any, len(inputs))
	for name, key := range inputs {
		canonical := key.String()

		managerKey := ""
		if def, ok := defs.assets[canonical]; ok {
			managerKey = def.IOManagerKey
		}
		manager, err := resolveIOManager(resources, managerKey)
		if err != nil {
			return nil, err
		}

		if manager != nil {
			value, err := manager.LoadInput(ctx, key)
			if err != nil {
				return nil, errs.Wrapf(err, "load input %q (asset %q)", name, canonical)
			}
			loaded[name] = value
			continue
		}

		value, ok := runStore[canonical]
		if !ok {
			return nil, fmt.Errorf("no value available for input %q (asset %q)", name, canonical)
		}
		loaded[name] = value
	}
	return loaded, nil
}

func outputManager(resources map[string]any, def AssetDef) (ports.IOManager, error) {
	return resolveIOManager(resources, def.IOManagerKey)
}

// resolveIOManager looks up an explicit manager key, falling back to the
// shared "io_manager" resource. A nil return means the in-run value store
// handles the value.
func resolveIOManager(resources map[string]any, managerKey string) (ports.IOManager, error) {
	lookup := func(key string) (ports.IOManager, error) {
		value, ok := resources[key]
		if !ok {
			return nil, fmt.Errorf("io manager resource %q not found", key)
		}
		manager, ok := value.(ports.IOManager)
		if !ok {
			return nil, fmt.Errorf("resource %q does not implement IOManager", key)
		}
		return manager, nil
	}

	if managerKey != "" {
		return lookup(managerKey)
	}
	if _, ok := resources["io_manager"]; ok {
		return lookup("io_manager")
	}
	return nil, nil
}

func (e *Engine) recordStepFailure(
	ctx context.Context,
	runID string,
	result *RunResult,
	node string,
	assetKey string,
	checkName string,
	cause error,
) {
	_, err := e.log.Append(ctx, ports.EventRecordCreate{
		RunID:     runID,
		Type:      ports.EventTypeStepFailure,
		AssetKey:  assetKey,
		CheckName: checkName,
		Message:   cause.Error(),
		Timestamp: e.timestamp(),
	})
	if err != nil {
		logging.Error(ctx, "append step failure event",
			slog.String("node", node),
			slog.Any("error", errs.Loggable(err)),
		)
	}
	result.setFailure(node, cause.Error())
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

func terminal(result *RunResult, node string) bool {
	status, ok := result.NodeStatus(node)
	if !ok {
		return false
	}
	return status == NodeStatusSucceeded || status == NodeStatusFailed || status == NodeStatusSkipped
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", errs.Wrap(err, "encode check metadata")
	}
	return string(raw), nil
}
