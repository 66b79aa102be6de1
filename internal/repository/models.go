package repository

import "time"

// Setting is one persisted key/value pair.
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey;size:128"`
	Value     string    `gorm:"column:value;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (Setting) TableName() string {
	return "settings"
}

// ClassificationLog records one applied classification result.
type ClassificationLog struct {
	ID            uint      `gorm:"primaryKey"`
	RequestID     string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Token         uint64    `gorm:"column:token"`
	Source        string    `gorm:"column:source;size:16"`
	Endpoint      string    `gorm:"column:endpoint;type:text"`
	TopClass      string    `gorm:"column:top_class;size:256"`
	TopConfidence float64   `gorm:"column:top_confidence"`
	Predictions   int       `gorm:"column:predictions"`
	LatencyMs     int64     `gorm:"column:latency_ms"`
	SHA1Hash      string    `gorm:"column:sha1_hash;index;size:40"`
	CreatedAt     time.Time `gorm:"column:created_at;index"`
}

// TableName overrides the default table name.
func (ClassificationLog) TableName() string {
	return "classification_logs"
}

// Aggregation is the raw summary computed over classification logs.
type Aggregation struct {
	TotalCount       int64
	AverageScore     float64
	AverageLatencyMs float64
}
