package model

type StateKV struct {
	Key       string `gorm:"column:key;primaryKey;type:text"`
	Value     string `gorm:"column:value;type:text;not null"`
	UpdatedAt string `gorm:"column:updated_at;type:text;not null"`
}

func (StateKV) TableName() string {
	return "state_kv"
}
