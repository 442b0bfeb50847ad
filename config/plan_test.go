package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPlanDefaults(t *testing.T) {
	plan, err := LoadPlan("")
	require.NoError(t, err)
	assert.Equal(t, "Zest", plan.Baseline)
	assert.Len(t, plan.Benchmarks, 7)
	assert.Equal(t, 24*time.Hour, plan.MaxSampleTime())
}

func TestLoadPlanOverridesOnlyGivenKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
benchmarks: [rhino]
repetitions: 20
duration: 24h
sample_times: [10m, 1h]
`), 0644))

	plan, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"rhino"}, plan.Benchmarks)
	assert.Equal(t, 20, plan.Repetitions)
	assert.Equal(t, 24*time.Hour, plan.Duration)
	assert.Equal(t, []time.Duration{10 * time.Minute, time.Hour}, plan.SampleTimes)
	// untouched keys keep their defaults
	assert.Equal(t, 0.05, plan.Alpha)
	assert.Contains(t, plan.Techniques, "zeugma-linked")
}

func TestLoadPlanRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repetitions: 0\n"), 0644))

	_, err := LoadPlan(path)
	assert.Error(t, err)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPlanNames(t *testing.T) {
	plan := DefaultPlan()

	assert.Equal(t, "BeDivFuzz", plan.DisplayName("BeDiv-Struct"))
	assert.Equal(t, "EI", plan.DisplayName("EI"))

	assert.Equal(t, "Zeugma", plan.TechniqueLabel("zeugma-linked"))
	assert.Equal(t, "Zest-Mini-saved", plan.TechniqueLabel("zest-mini"+SavedOnlySuffix))
	assert.Equal(t, "custom", plan.TechniqueLabel("custom"))

	assert.True(t, plan.IsExcluded("Zeugma-None"))
	assert.False(t, plan.IsExcluded("Zeugma"))

	assert.Equal(t, "4878CF", plan.Color("Random"))
}

func TestPlanOrdered(t *testing.T) {
	plan := DefaultPlan()
	got := plan.Ordered([]string{"Zeugma", "Other", "Zest", "Alpha", "Random"})
	assert.Equal(t, []string{"Random", "Zest", "Zeugma", "Alpha", "Other"}, got)
}
