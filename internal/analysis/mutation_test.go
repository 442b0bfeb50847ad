package analysis

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/config"
)

const mutationLog = `current_len,parent_len,byte_current_len,byte_parent_len,byte_distance,distance,saved,result,parent,id,file
10,8,20,16,4,2,true,SUCCESS,-1,0,id_0
10,10,20,20,0,0,false,SUCCESS,0,1,-1
12,10,24,20,6,6,false,INVALID,0,2,-1
-1,10,24,20,6,6,false,SUCCESS,0,3,-1
5,0,0,0,0,0,false,SUCCESS,1,4,-1
`

func TestParseMutationLog(t *testing.T) {
	entries, err := ParseMutationLog(strings.NewReader(mutationLog))
	require.NoError(t, err)
	require.Len(t, entries, 5)

	assert.True(t, entries[0].Saved)
	assert.Equal(t, "", entries[0].Parent)
	assert.Equal(t, "id_0", entries[0].File)
	assert.Equal(t, "", entries[1].File)
	assert.True(t, math.IsNaN(entries[3].CurrentLen))

	want := MutationEntry{
		CurrentLen: math.NaN(), ParentLen: 10, ByteCurrentLen: 24, ByteParentLen: 20,
		ByteDistance: 6, Distance: 6, Result: ResultSuccess, Parent: "0", ID: "3",
	}
	if diff := cmp.Diff(want, entries[3], cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	// logs without a header start with data
	body := strings.SplitN(mutationLog, "\n", 2)[1]
	entries, err = ParseMutationLog(strings.NewReader(body))
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	_, err = ParseMutationLog(strings.NewReader("1,2,3\n"))
	assert.Error(t, err)
}

func mutationFixture(t *testing.T) []MutationRecord {
	entries, err := ParseMutationLog(strings.NewReader(mutationLog))
	require.NoError(t, err)
	return Distances(entries, "rhino", "Zest", false, 0, 0)
}

func TestDistances(t *testing.T) {
	records := mutationFixture(t)
	require.Len(t, records, 3, "rows with missing values or 0/0 ratios are dropped")

	assert.Equal(t, 0.2, records[0].MutationBytes)
	assert.Equal(t, 0.2, records[0].MutationString)
	assert.Equal(t, "", records[0].ParentResult)

	assert.Equal(t, 0.25, records[2].MutationBytes)
	assert.Equal(t, 0.5, records[2].MutationString)
	assert.Equal(t, 0.25, records[2].Diff())
	assert.Equal(t, ResultSuccess, records[2].ParentResult)

	entries, err := ParseMutationLog(strings.NewReader(mutationLog))
	require.NoError(t, err)
	saved := Distances(entries, "rhino", "Zest-saved", true, 0, 0)
	require.Len(t, saved, 1)
	assert.True(t, saved[0].SavedOnly())
}

func TestDistancesGrowthFromEmptyInput(t *testing.T) {
	entries, err := ParseMutationLog(strings.NewReader(
		"3,0,0,0,3,3,false,SUCCESS,-1,0,-1\n" +
			"0,0,0,0,0,0,false,SUCCESS,-1,1,-1\n"))
	require.NoError(t, err)

	records := Distances(entries, "rhino", "Zest", false, 0, 0)
	require.Len(t, records, 1)
	assert.True(t, math.IsInf(records[0].MutationBytes, 1))
	assert.Equal(t, 1.0, records[0].MutationString)
	assert.True(t, math.IsInf(records[0].Diff(), -1))

	path := filepath.Join(t.TempDir(), MutationDistancesFile)
	require.NoError(t, WriteMutationDistances(path, records))
	back, err := ReadMutationDistances(path)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.True(t, math.IsInf(back[0].MutationBytes, 1))

	plan := config.DefaultPlan()
	plan.Benchmarks = []string{"rhino"}
	heat := DistanceHeatmap(records, plan, false)
	assert.True(t, math.IsInf(heat.At("Zest", "rhino"), -1))
}

func TestDistancesSampling(t *testing.T) {
	var entries []MutationEntry
	for i := 1; i <= 20; i++ {
		v := float64(i)
		entries = append(entries, MutationEntry{
			CurrentLen: v, ParentLen: v, ByteCurrentLen: v, ByteParentLen: v,
			ByteDistance: 1, Distance: 1,
		})
	}
	a := Distances(entries, "rhino", "Zest", false, 4, 7)
	b := Distances(entries, "rhino", "Zest", false, 4, 7)
	require.Len(t, a, 4)
	assert.Equal(t, a, b)

	seen := map[float64]bool{}
	for _, r := range a {
		assert.False(t, seen[r.CurrentLen])
		seen[r.CurrentLen] = true
	}
	// the saved-only variant is never sampled
	assert.Empty(t, Distances(entries, "rhino", "Zest-saved", true, 4, 7))
}

func TestMutationDistances(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "rhino-zest-results-0", "campaign")
	require.NoError(t, os.MkdirAll(logDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "mutation.log"), []byte(mutationLog), 0644))

	plan := config.DefaultPlan()
	plan.Benchmarks = []string{"rhino", "gson"}
	plan.MutationTechniques = []string{"zest", "ei"}

	records, err := MutationDistances(dir, plan, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, records, 4)

	labels := map[string]int{}
	for _, r := range records {
		assert.Equal(t, "rhino", r.Benchmark)
		labels[r.Algorithm]++
	}
	assert.Equal(t, map[string]int{"Zest": 3, "Zest-saved": 1}, labels)

	path := filepath.Join(t.TempDir(), MutationDistancesFile)
	require.NoError(t, WriteMutationDistances(path, records))
	back, err := ReadMutationDistances(path)
	require.NoError(t, err)
	assert.Equal(t, records, back)
}

func TestMutationSummaries(t *testing.T) {
	plan := config.DefaultPlan()
	plan.Benchmarks = []string{"rhino", "gson"}
	records := mutationFixture(t)
	records = append(records, MutationRecord{Benchmark: "rhino", Algorithm: "Zest-saved", MutationString: 9})

	heat := DistanceHeatmap(records, plan, false)
	assert.Equal(t, []string{"Zest"}, heat.Algorithms)
	assert.InDelta(t, 0.25/3, heat.At("Zest", "rhino"), 1e-12)
	assert.True(t, math.IsNaN(heat.At("Zest", "gson")))
	assert.True(t, math.IsNaN(heat.At("EI", "rhino")))

	havoc := DistanceHeatmap(records, plan, true)
	assert.Equal(t, 0.25, havoc.At("Zest", "rhino"))

	assert.Equal(t, 50.0, ZeroMutationRates(records, plan).At("Zest", "rhino"))
	assert.Equal(t, 50.0, SuccessRates(records, plan, false).At("Zest", "rhino"))
	assert.Equal(t, 0.0, SuccessRates(records, plan, true).At("Zest", "rhino"))
	assert.Equal(t, 1.0, SavedAllRatios(records, plan).At("Zest", "rhino"))
}
