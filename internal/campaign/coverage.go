package campaign

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CoverageSample is one row of coverage.csv.
type CoverageSample struct {
	Time            time.Duration
	CoveredBranches float64
	Extra           map[string]float64 // remaining numeric columns by name
}

// ParseCoverage reads a coverage.csv with a header row. The time column is
// in milliseconds. Samples are returned sorted by time.
func ParseCoverage(r io.Reader) ([]CoverageSample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read coverage header: %w", err)
	}
	timeCol, branchCol := -1, -1
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		switch header[i] {
		case "time":
			timeCol = i
		case "covered_branches":
			branchCol = i
		}
	}
	if timeCol < 0 || branchCol < 0 {
		return nil, fmt.Errorf("coverage header %v lacks time or covered_branches", header)
	}

	var samples []CoverageSample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read coverage row: %w", err)
		}
		s := CoverageSample{}
		for i, raw := range record {
			if i >= len(header) {
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				if i == timeCol || i == branchCol {
					return nil, fmt.Errorf("column %s: %w", header[i], err)
				}
				continue
			}
			switch i {
			case timeCol:
				s.Time = time.Duration(v * float64(time.Millisecond))
			case branchCol:
				s.CoveredBranches = v
			default:
				if s.Extra == nil {
					s.Extra = make(map[string]float64)
				}
				s.Extra[header[i]] = v
			}
		}
		samples = append(samples, s)
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time < samples[j].Time })
	return samples, nil
}

// Coverage reads the campaign's coverage.csv.
func (c *Campaign) Coverage() ([]CoverageSample, error) {
	f, err := os.Open(c.CoverageFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open coverage: %w", err)
	}
	defer f.Close()
	samples, err := ParseCoverage(f)
	if err != nil {
		return nil, fmt.Errorf("campaign %s: %w", c.ID, err)
	}
	return samples, nil
}

// CoverageAt returns the covered branches of the latest sample at or before
// t, 0 when every sample is later. samples must be sorted by time.
func CoverageAt(samples []CoverageSample, t time.Duration) float64 {
	i := sort.Search(len(samples), func(i int) bool { return samples[i].Time > t })
	if i == 0 {
		return 0
	}
	return samples[i-1].CoveredBranches
}
