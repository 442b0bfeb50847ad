package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunDB builds statements without talking to a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=eval dbname=eval sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestUpsertCampaignDryRun(t *testing.T) {
	db := dryRunDB(t)
	c := &Campaign{
		CampaignID: "rhino-zest-results-0",
		Subject:    "rhino",
		Fuzzer:     "Zest",
		Executions: 1000,
		Summary:    datatypes.JSON(`{"configuration":{}}`),
	}
	require.NoError(t, UpsertCampaign(context.Background(), db, c))
	require.NoError(t, UpsertCampaign(context.Background(), db, nil))
}

func TestModelTables(t *testing.T) {
	db := dryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Create(&Campaign{CampaignID: "rhino-zest-results-0"})
	})
	assert.Contains(t, sql, `INSERT INTO "campaigns"`)

	sql = db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Create(&Failure{CampaignID: "a", Type: "java.lang.NullPointerException"})
	})
	assert.Contains(t, sql, `INSERT INTO "campaign_failures"`)
	assert.Contains(t, sql, "java.lang.NullPointerException")
}
