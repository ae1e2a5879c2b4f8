package orchestrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"assetflow/internal/domain/check"
	"assetflow/internal/ports"
)

func TestExecuteEmitsPlannedAndEvaluationEvents(t *testing.T) {
	log := newTestLog(t)
	defs := mustDefs(t, DefinitionsConfig{
		Assets: []AssetDef{materializingAsset(asset1, 1)},
		Checks: []*CheckExecutable{passingCheck(t, asset1, "check1")},
	})
	engine := NewEngine(log, WithRunIDFunc(constRunID("run-1")))

	result, err := engine.Execute(context.Background(), defs, SelectEverything())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success() {
		t.Fatal("run should succeed")
	}
	requireStatus(t, result, "asset1", NodeStatusSucceeded)
	requireStatus(t, result, "asset1:check1", NodeStatusSucceeded)

	planned := requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeCheckPlanned}, 1)
	if planned[0].AssetKey != "asset1" || planned[0].CheckName != "check1" || planned[0].RunID != "run-1" {
		t.Fatalf("unexpected planned event %+v", planned[0])
	}

	evalRecords := requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeCheckEvaluation}, 1)
	if evalRecords[0].Passed == nil || !*evalRecords[0].Passed || evalRecords[0].Severity != "ERROR" {
		t.Fatalf("unexpected evaluation event %+v", evalRecords[0])
	}

	evals := result.CheckEvaluations()
	if len(evals) != 1 {
		t.Fatalf("len(evals) = %d, want 1", len(evals))
	}
	if evals[0].TargetMaterialization == nil || evals[0].TargetMaterialization.RunID != "run-1" {
		t.Fatalf("target materialization not resolved from the same run: %+v", evals[0].TargetMaterialization)
	}
}

func TestCheckSkippedWhenTargetAssetFails(t *testing.T) {
	log := newTestLog(t)
	invoked := false
	defs := mustDefs(t, DefinitionsConfig{
		Assets: []AssetDef{{
			Key: asset1,
			Materialize: func(ctx context.Context, ac *AssetContext) (any, error) {
				return nil, errors.New("boom")
			},
		}},
		Checks: []*CheckExecutable{mustCheck(t, CheckConfig{Asset: asset1, Name: "check1"}, func(ctx context.Context, cc *CheckContext) (check.Result, error) {
			invoked = true
			return check.Result{Passed: true}, nil
		})},
	})

	result, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if invoked {
		t.Fatal("check must not run when its target asset failed")
	}
	if result.Success() {
		t.Fatal("run should fail")
	}
	requireStatus(t, result, "asset1", NodeStatusFailed)
	requireStatus(t, result, "asset1:check1", NodeStatusSkipped)
	if msg, ok := result.FailureMessage("asset1"); !ok || msg != "boom" {
		t.Fatalf("failure message = (%q, %t)", msg, ok)
	}

	requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeCheckPlanned}, 1)
	requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeCheckEvaluation}, 0)
	failures := requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeStepFailure}, 1)
	if failures[0].Message != "boom" {
		t.Fatalf("unexpected failure event %+v", failures[0])
	}
}

func TestBlockingCheckFailureSkipsConsumers(t *testing.T) {
	log := newTestLog(t)
	defs := mustDefs(t, DefinitionsConfig{
		Assets: []AssetDef{
			materializingAsset(asset1, 1),
			{Key: asset2, Deps: []check.AssetKey{asset1}, Materialize: func(ctx context.Context, ac *AssetContext) (any, error) {
				return 2, nil
			}},
		},
		Checks: []*CheckExecutable{mustCheck(t, CheckConfig{Asset: asset1, Name: "check1", Blocking: true}, func(ctx context.Context, cc *CheckContext) (check.Result, error) {
			return check.Result{Passed: false}, nil
		})},
	})

	result, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success() {
		t.Fatal("run should fail")
	}
	requireStatus(t, result, "asset1", NodeStatusSucceeded)
	requireStatus(t, result, "asset1:check1", NodeStatusFailed)
	requireStatus(t, result, "asset2", NodeStatusSkipped)

	want := `blocking check "check1" for asset "asset1" failed with ERROR severity`
	if msg, ok := result.FailureMessage("asset1:check1"); !ok || msg != want {
		t.Fatalf("failure message = %q, want %q", msg, want)
	}

	// The failing check never rolls back the target's own materialization.
	requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeMaterialization, AssetKey: "asset1"}, 1)
	requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeMaterialization, AssetKey: "asset2"}, 0)
	requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeCheckEvaluation}, 1)
}

func TestBlockingCheckOnSourceAssetFailureSkipsConsumers(t *testing.T) {
	log := newTestLog(t)
	source := check.NewAssetKey("external", "feed")
	defs := mustDefs(t, DefinitionsConfig{
		Assets: []AssetDef{
			{Key: source, Source: true},
			{Key: asset2, Deps: []check.AssetKey{source}, Materialize: func(ctx context.Context, ac *AssetContext) (any, error) {
				return 2, nil
			}},
		},
		Checks: []*CheckExecutable{mustCheck(t, CheckConfig{Asset: source, Name: "check1", Blocking: true}, func(ctx context.Context, cc *CheckContext) (check.Result, error) {
			return check.Result{Passed: false}, nil
		})},
	})

	result, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success() {
		t.Fatal("run should fail")
	}

	// The source asset has no run node; the failing blocking check alone
	// gates its consumers.
	if _, ok := result.NodeStatus("external/feed"); ok {
		t.Fatal("source asset without Observe must not run")
	}
	requireStatus(t, result, "external/feed:check1", NodeStatusFailed)
	requireStatus(t, result, "asset2", NodeStatusSkipped)

	want := `blocking check "check1" for asset "external/feed" failed with ERROR severity`
	if msg, ok := result.FailureMessage("external/feed:check1"); !ok || msg != want {
		t.Fatalf("failure message = %q, want %q", msg, want)
	}

	evals := result.CheckEvaluations()
	if len(evals) != 1 || evals[0].TargetMaterialization != nil {
		t.Fatalf("unexpected evaluations %+v", evals)
	}
	requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeMaterialization}, 0)
}

func TestNonBlockingCheckFailureDoesNotBlockConsumers(t *testing.T) {
	log := newTestLog(t)
	defs := mustDefs(t, DefinitionsConfig{
		Assets: []AssetDef{
			materializingAsset(asset1, 1),
			{Key: asset2, Deps: []check.AssetKey{asset1}, Materialize: func(ctx context.Context, ac *AssetContext) (any, error) {
				return 2, nil
			}},
		},
		Checks: []*CheckExecutable{mustCheck(t, CheckConfig{Asset: asset1, Name: "check1"}, func(ctx context.Context, cc *CheckContext) (check.Result, error) {
			return check.Result{Passed: false}, nil
		})},
	})

	result, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success() {
		t.Fatal("a failing non-blocking check must not fail the run")
	}
	requireStatus(t, result, "asset1:check1", NodeStatusSucceeded)
	requireStatus(t, result, "asset2", NodeStatusSucceeded)

	evals := result.CheckEvaluations()
	if len(evals) != 1 || evals[0].Passed {
		t.Fatalf("unexpected evaluations %+v", evals)
	}
}

func TestBlockingCheckWarnSeverityDoesNotBlock(t *testing.T) {
	log := newTestLog(t)
	defs := mustDefs(t, DefinitionsConfig{
		Assets: []AssetDef{
			materializingAsset(asset1, 1),
			{Key: asset2, Deps: []check.AssetKey{asset1}, Materialize: func(ctx context.Context, ac *AssetContext) (any, error) {
				return 2, nil
			}},
		},
		Checks: []*CheckExecutable{mustCheck(t, CheckConfig{Asset: asset1, Name: "check1", Blocking: true}, func(ctx context.Context, cc *CheckContext) (check.Result, error) {
			return check.Result{Passed: false, Severity: check.SeverityWarn}, nil
		})},
	})

	result, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success() {
		t.Fatal("WARN severity must not gate consumers")
	}
	requireStatus(t, result, "asset1:check1", NodeStatusSucceeded)
	requireStatus(t, result, "asset2", NodeStatusSucceeded)
}

func TestCheckFunctionErrorRecordsStepFailure(t *testing.T) {
	log := newTestLog(t)
	defs := mustDefs(t, DefinitionsConfig{
		Checks: []*CheckExecutable{mustCheck(t, CheckConfig{Asset: asset1, Name: "check1"}, func(ctx context.Context, cc *CheckContext) (check.Result, error) {
			return check.Result{}, errors.New("check blew up")
		})},
	})

	result, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success() {
		t.Fatal("run should fail")
	}
	requireStatus(t, result, "asset1:check1", NodeStatusFailed)

	requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeCheckEvaluation}, 0)
	failures := requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeStepFailure}, 1)
	if failures[0].AssetKey != "asset1" || failures[0].CheckName != "check1" || failures[0].Message != "check blew up" {
		t.Fatalf("unexpected failure event %+v", failures[0])
	}
}

func TestTargetMaterializationResolvesAcrossRuns(t *testing.T) {
	log := newTestLog(t)
	key := check.NewKey(asset1, "check1")
	defs := mustDefs(t, DefinitionsConfig{
		Assets: []AssetDef{materializingAsset(asset1, 1)},
		Checks: []*CheckExecutable{passingCheck(t, asset1, "check1")},
	})

	first, err := NewEngine(log, WithRunIDFunc(constRunID("run-1"))).
		Execute(context.Background(), defs, SelectAssets(asset1).WithoutChecks())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.CheckEvaluations()) != 0 {
		t.Fatal("first run must not evaluate checks")
	}
	materializations := requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeMaterialization}, 1)

	second, err := NewEngine(log, WithRunIDFunc(constRunID("run-2"))).
		Execute(context.Background(), defs, SelectChecks(key))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	evals := second.CheckEvaluations()
	if len(evals) != 1 {
		t.Fatalf("len(evals) = %d, want 1", len(evals))
	}
	target := evals[0].TargetMaterialization
	if target == nil {
		t.Fatal("target materialization should resolve to the prior run")
	}
	if target.RunID != "run-1" || target.StorageID != materializations[0].StorageID {
		t.Fatalf("target = %+v, want run-1 storage %d", target, materializations[0].StorageID)
	}

	// The second run only ran the check node.
	if _, ok := second.NodeStatus("asset1"); ok {
		t.Fatal("asset node must not run in a checks-only selection")
	}
}

func TestTargetMaterializationNilWithoutMaterialization(t *testing.T) {
	log := newTestLog(t)
	defs := mustDefs(t, DefinitionsConfig{
		Checks: []*CheckExecutable{passingCheck(t, asset1, "check1")},
	})

	result, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	evals := result.CheckEvaluations()
	if len(evals) != 1 {
		t.Fatalf("len(evals) = %d, want 1", len(evals))
	}
	if evals[0].TargetMaterialization != nil {
		t.Fatalf("target should be nil, got %+v", evals[0].TargetMaterialization)
	}
}

func TestSourceAssetObservationAndCheck(t *testing.T) {
	log := newTestLog(t)
	source := check.NewAssetKey("external", "feed")
	defs := mustDefs(t, DefinitionsConfig{
		Assets: []AssetDef{{
			Key:    source,
			Source: true,
			Observe: func(ctx context.Context, ac *AssetContext) error {
				return nil
			},
		}},
		Checks: []*CheckExecutable{passingCheck(t, source, "fresh")},
	})

	result, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success() {
		t.Fatal("run should succeed")
	}
	requireStatus(t, result, "external/feed", NodeStatusSucceeded)
	requireStatus(t, result, "external/feed:fresh", NodeStatusSucceeded)

	requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeObservation}, 1)
	requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeMaterialization}, 0)

	evals := result.CheckEvaluations()
	if len(evals) != 1 || evals[0].TargetMaterialization != nil {
		t.Fatalf("observation must not count as a target materialization: %+v", evals)
	}
}

func TestMultiCheckSubsetExecution(t *testing.T) {
	log := newTestLog(t)
	key1 := check.NewKey(asset1, "check1")
	var captured []check.Key

	exec := mustMultiCheck(t, MultiCheckConfig{
		Name:      "asset1_checks",
		CanSubset: true,
		Specs: []check.Spec{
			check.NewSpec("check1", asset1),
			check.NewSpec("check2", asset1),
		},
	}, func(ctx context.Context, cc *CheckContext) ([]check.Result, error) {
		captured = cc.SelectedCheckKeys()
		results := make([]check.Result, 0, len(captured))
		for _, key := range captured {
			results = append(results, check.Result{Asset: key.Asset, CheckName: key.Name, Passed: true})
		}
		return results, nil
	})
	defs := mustDefs(t, DefinitionsConfig{Checks: []*CheckExecutable{exec}})

	result, err := NewEngine(log).Execute(context.Background(), defs, SelectChecks(key1))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(captured) != 1 || !captured[0].Equal(key1) {
		t.Fatalf("selected keys = %v, want [%v]", captured, key1)
	}
	requireStatus(t, result, "asset1_checks", NodeStatusSucceeded)

	requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeCheckPlanned}, 1)
	evals := result.CheckEvaluations()
	if len(evals) != 1 || !evals[0].Key.Equal(key1) {
		t.Fatalf("unexpected evaluations %+v", evals)
	}
}

func TestSubsetRequiresCanSubset(t *testing.T) {
	log := newTestLog(t)
	exec := mustMultiCheck(t, MultiCheckConfig{
		Name: "asset1_checks",
		Specs: []check.Spec{
			check.NewSpec("check1", asset1),
			check.NewSpec("check2", asset1),
		},
	}, func(ctx context.Context, cc *CheckContext) ([]check.Result, error) {
		return nil, errors.New("must not run")
	})
	defs := mustDefs(t, DefinitionsConfig{Checks: []*CheckExecutable{exec}})

	_, err := NewEngine(log).Execute(context.Background(), defs, SelectChecks(check.NewKey(asset1, "check1")))
	if !errors.Is(err, check.ErrInvalidSubset) {
		t.Fatalf("err = %v, want ErrInvalidSubset", err)
	}
	requireRecords(t, log, ports.EventFilter{}, 0)
}

func TestResultForUnrequestedKeyAborts(t *testing.T) {
	log := newTestLog(t)
	exec := mustMultiCheck(t, MultiCheckConfig{
		Name:      "asset1_checks",
		CanSubset: true,
		Specs: []check.Spec{
			check.NewSpec("check1", asset1),
			check.NewSpec("check2", asset1),
		},
	}, func(ctx context.Context, cc *CheckContext) ([]check.Result, error) {
		return []check.Result{{Asset: asset1, CheckName: "check2", Passed: true}}, nil
	})
	defs := mustDefs(t, DefinitionsConfig{Checks: []*CheckExecutable{exec}})

	_, err := NewEngine(log).Execute(context.Background(), defs, SelectChecks(check.NewKey(asset1, "check1")))
	if !errors.Is(err, check.ErrUnrequestedCheckKey) {
		t.Fatalf("err = %v, want ErrUnrequestedCheckKey", err)
	}
}

func TestResultForUnexpectedTargetAborts(t *testing.T) {
	log := newTestLog(t)
	defs := mustDefs(t, DefinitionsConfig{
		Checks: []*CheckExecutable{mustCheck(t, CheckConfig{Asset: asset1, Name: "check1"}, func(ctx context.Context, cc *CheckContext) (check.Result, error) {
			return check.Result{Asset: check.NewAssetKey("elsewhere"), Passed: true}, nil
		})},
	})

	_, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if !errors.Is(err, check.ErrUnexpectedTarget) {
		t.Fatalf("err = %v, want ErrUnexpectedTarget", err)
	}
}

func TestDuplicateResultAborts(t *testing.T) {
	log := newTestLog(t)
	exec := mustMultiCheck(t, MultiCheckConfig{
		Name: "asset1_checks",
		Specs: []check.Spec{
			check.NewSpec("check1", asset1),
			check.NewSpec("check2", asset1),
		},
	}, func(ctx context.Context, cc *CheckContext) ([]check.Result, error) {
		return []check.Result{
			{Asset: asset1, CheckName: "check1", Passed: true},
			{Asset: asset1, CheckName: "check1", Passed: false},
		}, nil
	})
	defs := mustDefs(t, DefinitionsConfig{Checks: []*CheckExecutable{exec}})

	_, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if !errors.Is(err, check.ErrDuplicateResult) {
		t.Fatalf("err = %v, want ErrDuplicateResult", err)
	}
}

func TestMissingResultAborts(t *testing.T) {
	log := newTestLog(t)
	exec := mustMultiCheck(t, MultiCheckConfig{
		Name: "asset1_checks",
		Specs: []check.Spec{
			check.NewSpec("check1", asset1),
			check.NewSpec("check2", asset1),
		},
	}, func(ctx context.Context, cc *CheckContext) ([]check.Result, error) {
		return []check.Result{{Asset: asset1, CheckName: "check1", Passed: true}}, nil
	})
	defs := mustDefs(t, DefinitionsConfig{Checks: []*CheckExecutable{exec}})

	_, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if err == nil || !strings.Contains(err.Error(), "no result") {
		t.Fatalf("err = %v, want missing result error", err)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	log := newTestLog(t)
	metadata := map[string]any{"rows": float64(42), "source": "warehouse"}
	defs := mustDefs(t, DefinitionsConfig{
		Checks: []*CheckExecutable{mustCheck(t, CheckConfig{Asset: asset1, Name: "check1"}, func(ctx context.Context, cc *CheckContext) (check.Result, error) {
			return check.Result{Passed: true, Metadata: metadata}, nil
		})},
	})

	result, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	evals := result.CheckEvaluations()
	if len(evals) != 1 {
		t.Fatalf("len(evals) = %d, want 1", len(evals))
	}
	if evals[0].Metadata["rows"] != float64(42) || evals[0].Metadata["source"] != "warehouse" {
		t.Fatalf("metadata = %+v", evals[0].Metadata)
	}

	records := requireRecords(t, log, ports.EventFilter{Type: ports.EventTypeCheckEvaluation}, 1)
	if !strings.Contains(records[0].MetadataJSON, `"rows":42`) {
		t.Fatalf("metadata json = %q", records[0].MetadataJSON)
	}
}

func TestCheckReadsRequiredResource(t *testing.T) {
	log := newTestLog(t)
	var got any
	exec := mustCheck(t, CheckConfig{
		Asset:                asset1,
		Name:                 "check1",
		RequiredResourceKeys: []string{"api_token"},
	}, func(ctx context.Context, cc *CheckContext) (check.Result, error) {
		value, ok := cc.Resource("api_token")
		if !ok {
			return check.Result{}, errors.New("resource not wired")
		}
		got = value
		return check.Result{Passed: true}, nil
	})
	defs := mustDefs(t, DefinitionsConfig{
		Checks:    []*CheckExecutable{exec},
		Resources: map[string]any{"api_token": "secret"},
	})

	if _, err := NewEngine(log).Execute(context.Background(), defs, SelectEverything()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "secret" {
		t.Fatalf("resource value = %v", got)
	}
}

func TestCancelledRunSkipsRemainingNodes(t *testing.T) {
	log := &memEventLog{}
	ctx, cancel := context.WithCancel(context.Background())

	defs := mustDefs(t, DefinitionsConfig{
		Assets: []AssetDef{{
			Key: asset1,
			Materialize: func(ctx context.Context, ac *AssetContext) (any, error) {
				cancel()
				return 1, nil
			},
		}},
		Checks: []*CheckExecutable{passingCheck(t, asset1, "check1")},
	})

	result, err := NewEngine(log).Execute(ctx, defs, SelectEverything())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result == nil {
		t.Fatal("cancelled run must still report node statuses")
	}
	requireStatus(t, result, "asset1", NodeStatusSucceeded)
	requireStatus(t, result, "asset1:check1", NodeStatusSkipped)
}
