package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertCampaign inserts the campaign or refreshes the row with the same
// campaign id.
func UpsertCampaign(ctx context.Context, db *gorm.DB, c *Campaign) error {
	if c == nil {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "campaign_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subject", "fuzzer", "technique", "repetition", "executions",
			"corpus_size", "duration_ms", "final_coverage", "summary",
		}),
	}).Create(c).Error
}

// ReplaceFailures swaps the failures stored for a campaign in one transaction.
func ReplaceFailures(ctx context.Context, db *gorm.DB, campaignID string, failures []*Failure) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", campaignID).Delete(&Failure{}).Error; err != nil {
			return fmt.Errorf("failed to delete failures of %s: %w", campaignID, err)
		}
		if len(failures) == 0 {
			return nil
		}
		return tx.Create(failures).Error
	})
}
