package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrialIDRoundTrip(t *testing.T) {
	trial := Trial{Benchmark: "rhino", Technique: "bedivfuzz-structure", Repetition: 12}
	assert.Equal(t, "rhino-bedivfuzz-structure-results-12", trial.ID())

	parsed, err := ParseTrialID(trial.ID())
	require.NoError(t, err)
	assert.Equal(t, trial, parsed)
}

func TestParseTrialIDErrors(t *testing.T) {
	for _, id := range []string{"rhino", "rhino-zest-results-x", "-results-1", "rhino-results-1"} {
		_, err := ParseTrialID(id)
		assert.Error(t, err, id)
	}
}

func TestRepetition(t *testing.T) {
	assert.Equal(t, 3, Repetition("ant-zest-results-3"))
	assert.Equal(t, -1, Repetition("ant-zest"))
	assert.Equal(t, -1, Repetition("ant"))
}
