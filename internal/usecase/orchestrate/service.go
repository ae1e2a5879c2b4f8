package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"assetflow/internal/bootstrap/logging"
	"assetflow/internal/domain/check"
	"assetflow/internal/errs"
	"assetflow/internal/ports"
)

const checkStatusCacheTTL = 24 * time.Hour

// Service is the application facade: it runs selections through the engine
// and answers queries against the event log. The cache keeps the last known
// status per check key for cheap reads; it is best effort and never fails a
// run.
type Service struct {
	log    ports.EventLog
	cache  ports.Cache
	engine *Engine
}

func NewService(log ports.EventLog, uow ports.UnitOfWork, cache ports.Cache) *Service {
	return &Service{
		log:    log,
		cache:  cache,
		engine: NewEngine(log, WithUnitOfWork(uow)),
	}
}

// Execute runs the selection and records the resulting check statuses in
// the cache.
func (s *Service) Execute(ctx context.Context, defs *Definitions, sel Selection) (*RunResult, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	result, err := s.engine.Execute(ctx, defs, sel)
	if err != nil {
		return result, err
	}

	for _, eval := range result.CheckEvaluations() {
		status := "failed"
		if eval.Passed {
			status = "passed"
		}
		s.setCacheBestEffort(ctx, checkStatusCacheKey(eval.Key), status)
	}

	logging.Info(ctx, "run finished",
		slog.String("run_id", result.RunID()),
		slog.Bool("success", result.Success()),
		slog.Int("evaluations", len(result.CheckEvaluations())),
	)
	return result, nil
}

func (s *Service) ListEvents(ctx context.Context, filter ports.EventFilter) ([]ports.EventRecord, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.log.Records(ctx, filter)
}

// CheckHistory returns past evaluations of one check key, most recent first.
func (s *Service) CheckHistory(ctx context.Context, key check.Key, limit int) ([]check.Evaluation, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	records, err := s.log.CheckExecutionHistory(ctx, key.Asset.String(), key.Name, limit)
	if err != nil {
		return nil, err
	}

	evals := make([]check.Evaluation, 0, len(records))
	for _, record := range records {
		eval, err := evaluationFromRecord(record)
		if err != nil {
			return nil, err
		}
		evals = append(evals, eval)
	}
	return evals, nil
}

// CachedCheckStatus returns the last cached status ("passed" or "failed")
// for a check key, or false when nothing is cached.
func (s *Service) CachedCheckStatus(ctx context.Context, key check.Key) (string, bool, error) {
	if ctx == nil {
		return "", false, errors.New("context is required")
	}
	if s.cache == nil {
		return "", false, nil
	}
	return s.cache.Get(ctx, checkStatusCacheKey(key))
}

func (s *Service) setCacheBestEffort(ctx context.Context, key string, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, checkStatusCacheTTL); err != nil {
		logging.Warn(ctx, "cache check status",
			slog.String("key", key),
			slog.Any("error", errs.Loggable(err)),
		)
	}
}

func checkStatusCacheKey(key check.Key) string {
	return "check_status:" + key.String()
}

func evaluationFromRecord(record ports.EventRecord) (check.Evaluation, error) {
	if record.Type != ports.EventTypeCheckEvaluation {
		return check.Evaluation{}, fmt.Errorf("record %d is not a check evaluation", record.StorageID)
	}

	asset, err := check.ParseAssetKey(record.AssetKey)
	if err != nil {
		return check.Evaluation{}, err
	}

	eval := check.Evaluation{
		Key:      check.NewKey(asset, record.CheckName),
		Severity: check.Severity(record.Severity).Normalize(),
	}
	if record.Passed != nil {
		eval.Passed = *record.Passed
	}
	if record.MetadataJSON != "" && record.MetadataJSON != "{}" {
		if err := json.Unmarshal([]byte(record.MetadataJSON), &eval.Metadata); err != nil {
			return check.Evaluation{}, errs.Wrap(err, "decode check metadata")
		}
	}
	if record.TargetRunID != "" || record.TargetStorageID > 0 {
		eval.TargetMaterialization = &check.MaterializationRef{
			RunID:     record.TargetRunID,
			StorageID: record.TargetStorageID,
			Timestamp: record.TargetTimestamp,
		}
	}
	return eval, nil
}
