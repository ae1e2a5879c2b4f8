package model

// EventRecord is the append-only event log row. StorageID autoincrement
// defines insertion order; rows are never updated or deleted.
type EventRecord struct {
	StorageID       uint64 `gorm:"column:storage_id;primaryKey;autoIncrement"`
	RunID           string `gorm:"column:run_id;type:text;not null;index"`
	EventType       string `gorm:"column:event_type;type:text;not null;index"`
	AssetKey        string `gorm:"column:asset_key;type:text;not null;index"`
	CheckName       string `gorm:"column:check_name;type:text;not null"`
	Passed          *bool  `gorm:"column:passed"`
	Severity        string `gorm:"column:severity;type:text;not null"`
	MetadataJSON    string `gorm:"column:metadata_json;type:text;not null"`
	Message         string `gorm:"column:message;type:text;not null"`
	TargetRunID     string `gorm:"column:target_run_id;type:text;not null"`
	TargetStorageID uint64 `gorm:"column:target_storage_id;not null"`
	TargetTimestamp string `gorm:"column:target_timestamp;type:text;not null"`
	CreatedAt       string `gorm:"column:created_at;type:text;not null"`
}

func (EventRecord) TableName() string {
	return "event_records"
}
