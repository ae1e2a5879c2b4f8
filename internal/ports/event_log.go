package ports

import (
	"context"
	"errors"
)

var ErrEventNotFound = errors.New("event record not found")

// EventType discriminates persisted event records.
type EventType string

const (
	EventTypeMaterialization EventType = "asset_materialization"
	EventTypeObservation     EventType = "asset_observation"
	EventTypeCheckPlanned    EventType = "check_evaluation_planned"
	EventTypeCheckEvaluation EventType = "check_evaluation"
	EventTypeStepFailure     EventType = "step_failure"
)

// EventRecord is one row of the append-only event log. StorageID is assigned
// by the log on insert and defines the insertion order. The Target* fields
// are populated on check_evaluation records that resolved a materialization
// of their target asset.
type EventRecord struct {
	StorageID       uint64
	RunID           string
	Type            EventType
	AssetKey        string
	CheckName       string
	Passed          *bool
	Severity        string
	MetadataJSON    string
	Message         string
	TargetRunID     string
	TargetStorageID uint64
	TargetTimestamp string
	Timestamp       string
}

// EventRecordCreate is the insert shape; StorageID is assigned by the log.
type EventRecordCreate struct {
	RunID           string
	Type            EventType
	AssetKey        string
	CheckName       string
	Passed          *bool
	Severity        string
	MetadataJSON    string
	Message         string
	TargetRunID     string
	TargetStorageID uint64
	TargetTimestamp string
	Timestamp       string
}

// EventFilter narrows a Records query. Zero fields are ignored.
// Results come back in insertion order unless Descending is set.
type EventFilter struct {
	Type           EventType
	AssetKey       string
	CheckName      string
	RunID          string
	AfterStorageID uint64
	Limit          int
	Descending     bool
}

// EventLog is the append-only store of run events. Records are never mutated
// after insertion.
type EventLog interface {
	Append(ctx context.Context, input EventRecordCreate) (EventRecord, error)
	Records(ctx context.Context, filter EventFilter) ([]EventRecord, error)

	// CheckExecutionHistory returns check_evaluation records for one check
	// key, most recent first.
	CheckExecutionHistory(ctx context.Context, assetKey string, checkName string, limit int) ([]EventRecord, error)

	// LatestMaterialization returns the most recent materialization record
	// for the asset key by storage insertion order, or nil when none exists.
	LatestMaterialization(ctx context.Context, assetKey string) (*EventRecord, error)
}
