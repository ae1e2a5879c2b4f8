package orchestrate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"assetflow/internal/domain/check"
	"assetflow/internal/infrastructure/persistence/sqlite/model"
	"assetflow/internal/infrastructure/persistence/sqlite/repository"
	"assetflow/internal/ports"
)

var (
	asset1 = check.NewAssetKey("asset1")
	asset2 = check.NewAssetKey("asset2")
)

func newTestLog(t *testing.T) ports.EventLog {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "eventlog.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.EventRecord{}, &model.StateKV{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.NewEventLogRepository(db)
}

func mustCheck(t *testing.T, cfg CheckConfig, fn CheckFunc) *CheckExecutable {
	t.Helper()

	exec, err := NewCheck(cfg, fn)
	if err != nil {
		t.Fatalf("NewCheck(%q): %v", cfg.Name, err)
	}
	return exec
}

func mustMultiCheck(t *testing.T, cfg MultiCheckConfig, fn MultiCheckFunc) *CheckExecutable {
	t.Helper()

	exec, err := NewMultiCheck(cfg, fn)
	if err != nil {
		t.Fatalf("NewMultiCheck(%q): %v", cfg.Name, err)
	}
	return exec
}

func mustDefs(t *testing.T, cfg DefinitionsConfig) *Definitions {
	t.Helper()

	defs, err := NewDefinitions(cfg)
	if err != nil {
		t.Fatalf("NewDefinitions: %v", err)
	}
	return defs
}

func materializingAsset(key check.AssetKey, value any) AssetDef {
	return AssetDef{
		Key: key,
		Materialize: func(ctx context.Context, ac *AssetContext) (any, error) {
			return value, nil
		},
	}
}

func passingCheck(t *testing.T, asset check.AssetKey, name string) *CheckExecutable {
	t.Helper()

	return mustCheck(t, CheckConfig{Asset: asset, Name: name}, func(ctx context.Context, cc *CheckContext) (check.Result, error) {
		return check.Result{Passed: true}, nil
	})
}

func constRunID(id string) func() string {
	return func() string { return id }
}

func requireStatus(t *testing.T, result *RunResult, node string, want NodeStatus) {
	t.Helper()

	got, ok := result.NodeStatus(node)
	if !ok {
		t.Fatalf("node %q has no status", node)
	}
	if got != want {
		t.Fatalf("node %q status = %s, want %s", node, got, want)
	}
}

func requireRecords(t *testing.T, log ports.EventLog, filter ports.EventFilter, want int) []ports.EventRecord {
	t.Helper()

	records, err := log.Records(context.Background(), filter)
	if err != nil {
		t.Fatalf("query records: %v", err)
	}
	if len(records) != want {
		t.Fatalf("got %d records for %+v, want %d", len(records), filter, want)
	}
	return records
}

// countingIOManager serves values keyed by canonical asset key and counts
// LoadInput/HandleOutput calls.
type countingIOManager struct {
	mu      sync.Mutex
	values  map[string]any
	loads   int
	handles int
}

func newCountingIOManager(values map[string]any) *countingIOManager {
	if values == nil {
		values = make(map[string]any)
	}
	return &countingIOManager{values: values}
}

func (m *countingIOManager) LoadInput(ctx context.Context, key check.AssetKey) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return m.values[key.String()], nil
}

func (m *countingIOManager) HandleOutput(ctx context.Context, key check.AssetKey, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles++
	m.values[key.String()] = value
	return nil
}

func (m *countingIOManager) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads, m.handles
}

// memEventLog is an in-process event log that ignores context state. Used
// for cancellation tests where a SQLite handle would reject the context.
type memEventLog struct {
	mu      sync.Mutex
	records []ports.EventRecord
}

func (l *memEventLog) Append(ctx context.Context, input ports.EventRecordCreate) (ports.EventRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := ports.EventRecord{
		StorageID:       uint64(len(l.records) + 1),
		RunID:           input.RunID,
		Type:            input.Type,
		AssetKey:        input.AssetKey,
		CheckName:       input.CheckName,
		Passed:          input.Passed,
		Severity:        input.Severity,
		MetadataJSON:    input.MetadataJSON,
		Message:         input.Message,
		TargetRunID:     input.TargetRunID,
		TargetStorageID: input.TargetStorageID,
		TargetTimestamp: input.TargetTimestamp,
		Timestamp:       input.Timestamp,
	}
	l.records = append(l.records, record)
	return record, nil
}

func (l *memEventLog) Records(ctx context.Context, filter ports.EventFilter) ([]ports.EventRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ports.EventRecord, 0, len(l.records))
	for _, record := range l.records {
		if filter.Type != "" && record.Type != filter.Type {
			continue
		}
		if filter.AssetKey != "" && record.AssetKey != filter.AssetKey {
			continue
		}
		if filter.CheckName != "" && record.CheckName != filter.CheckName {
			continue
		}
		if filter.RunID != "" && record.RunID != filter.RunID {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (l *memEventLog) CheckExecutionHistory(ctx context.Context, assetKey string, checkName string, limit int) ([]ports.EventRecord, error) {
	records, _ := l.Records(ctx, ports.EventFilter{Type: ports.EventTypeCheckEvaluation, AssetKey: assetKey, CheckName: checkName})
	out := make([]ports.EventRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *memEventLog) LatestMaterialization(ctx context.Context, assetKey string) (*ports.EventRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Type == ports.EventTypeMaterialization && l.records[i].AssetKey == assetKey {
			record := l.records[i]
			return &record, nil
		}
	}
	return nil, nil
}
