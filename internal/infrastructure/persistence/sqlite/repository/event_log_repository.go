package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"assetflow/internal/errs"
	"assetflow/internal/infrastructure/persistence/sqlite/model"
	"assetflow/internal/ports"
)

// EventLogRepository implements ports.EventLog on SQLite. Append participates
// in a transaction carried on the context; reads always use the base handle.
type EventLogRepository struct {
	db *gorm.DB
}

var _ ports.EventLog = (*EventLogRepository)(nil)

func NewEventLogRepository(db *gorm.DB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

func (r *EventLogRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *EventLogRepository) Append(ctx context.Context, input ports.EventRecordCreate) (ports.EventRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.EventRecord{}, err
	}

	if strings.TrimSpace(string(input.Type)) == "" {
		return ports.EventRecord{}, errors.New("event type is required")
	}

	row := model.EventRecord{
		RunID:           input.RunID,
		EventType:       string(input.Type),
		AssetKey:        input.AssetKey,
		CheckName:       input.CheckName,
		Passed:          input.Passed,
		Severity:        input.Severity,
		MetadataJSON:    input.MetadataJSON,
		Message:         input.Message,
		TargetRunID:     input.TargetRunID,
		TargetStorageID: input.TargetStorageID,
		TargetTimestamp: input.TargetTimestamp,
		CreatedAt:       input.Timestamp,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.EventRecord{}, errs.Wrap(err, "insert event record")
	}
	return mapEventRecord(row), nil
}

func (r *EventLogRepository) Records(ctx context.Context, filter ports.EventFilter) ([]ports.EventRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.EventRecord{})
	if filter.Type != "" {
		query = query.Where("event_type = ?", string(filter.Type))
	}
	if key := strings.TrimSpace(filter.AssetKey); key != "" {
		query = query.Where("asset_key = ?", key)
	}
	if name := strings.TrimSpace(filter.CheckName); name != "" {
		query = query.Where("check_name = ?", name)
	}
	if runID := strings.TrimSpace(filter.RunID); runID != "" {
		query = query.Where("run_id = ?", runID)
	}
	if filter.AfterStorageID > 0 {
		query = query.Where("storage_id > ?", filter.AfterStorageID)
	}

	order := "storage_id asc"
	if filter.Descending {
		order = "storage_id desc"
	}
	query = query.Order(order)

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.EventRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query event records")
	}

	items := make([]ports.EventRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapEventRecord(row))
	}
	return items, nil
}

func (r *EventLogRepository) CheckExecutionHistory(ctx context.Context, assetKey string, checkName string, limit int) ([]ports.EventRecord, error) {
	return r.Records(ctx, ports.EventFilter{
		Type:       ports.EventTypeCheckEvaluation,
		AssetKey:   assetKey,
		CheckName:  checkName,
		Limit:      limit,
		Descending: true,
	})
}

func (r *EventLogRepository) LatestMaterialization(ctx context.Context, assetKey string) (*ports.EventRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var row model.EventRecord
	if err := db.
		Where("event_type = ? AND asset_key = ?", string(ports.EventTypeMaterialization), assetKey).
		Order("storage_id desc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errs.Wrap(err, "query latest materialization")
	}

	record := mapEventRecord(row)
	return &record, nil
}

func mapEventRecord(row model.EventRecord) ports.EventRecord {
	return ports.EventRecord{
		StorageID:       row.StorageID,
		RunID:           row.RunID,
		Type:            ports.EventType(row.EventType),
		AssetKey:        row.AssetKey,
		CheckName:       row.CheckName,
		Passed:          row.Passed,
		Severity:        row.Severity,
		MetadataJSON:    row.MetadataJSON,
		Message:         row.Message,
		TargetRunID:     row.TargetRunID,
		TargetStorageID: row.TargetStorageID,
		TargetTimestamp: row.TargetTimestamp,
		Timestamp:       row.CreatedAt,
	}
}
