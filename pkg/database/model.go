package database

import (
	"time"

	"gorm.io/datatypes"
)

// Campaign is one row of public.campaigns, keyed by the campaign directory
// name.
type Campaign struct {
	ID         uint           `gorm:"primaryKey;column:id"`
	CampaignID string         `gorm:"column:campaign_id;uniqueIndex;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;default:now()"`
	Subject    string         `gorm:"column:subject;index"`
	Fuzzer     string         `gorm:"column:fuzzer;index"`
	Technique  string         `gorm:"column:technique"`
	Repetition int            `gorm:"column:repetition"`
	Executions int64          `gorm:"column:executions"`
	CorpusSize int            `gorm:"column:corpus_size"`
	DurationMs int64          `gorm:"column:duration_ms"`
	Coverage   int64          `gorm:"column:final_coverage"`
	Summary    datatypes.JSON `gorm:"column:summary;type:jsonb"`
}

// Failure is one row of public.campaign_failures.
type Failure struct {
	ID          uint           `gorm:"primaryKey;column:id"`
	CampaignID  string         `gorm:"column:campaign_id;index;not null"`
	CreatedAt   time.Time      `gorm:"column:created_at;default:now()"`
	Type        string         `gorm:"column:type;not null"`
	Signature   string         `gorm:"column:signature"`
	Trace       datatypes.JSON `gorm:"column:trace;type:jsonb"`
	DetectionMs int64          `gorm:"column:detection_ms"`
	Defects     datatypes.JSON `gorm:"column:defects;type:jsonb"`
}

func (Failure) TableName() string { return "campaign_failures" }
