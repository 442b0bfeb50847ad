package campaign

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoProgressRows = errors.New("progress log has no data rows")
	ErrUnknownLayout  = errors.New("no progress layout for fuzzer")
)

// Layout locates the columns of a progress log. The log format depends on
// the fuzzer family that wrote it.
type Layout struct {
	Family       string
	TimeUnit     time.Duration
	ExecColumns  []int // executions is the sum of these columns
	CorpusColumn int
}

var (
	jqfLayout    = Layout{Family: "jqf", TimeUnit: time.Second, ExecColumns: []int{11, 12}, CorpusColumn: 3}
	zeugmaLayout = Layout{Family: "zeugma", TimeUnit: time.Millisecond, ExecColumns: []int{3}, CorpusColumn: 4}
	bedivLayout  = Layout{Family: "bedivfuzz", TimeUnit: time.Second, ExecColumns: []int{4}, CorpusColumn: 6}
)

// LayoutFor picks the progress log layout of a fuzzer name as produced by
// FuzzerName. Every named JQF-based fuzzer shares the plot_data layout.
func LayoutFor(fuzzer string) (Layout, error) {
	switch {
	case fuzzer == "":
		return Layout{}, ErrUnknownLayout
	case strings.HasPrefix(fuzzer, "Zeugma"):
		return zeugmaLayout, nil
	case strings.HasPrefix(fuzzer, "BeDiv"):
		return bedivLayout, nil
	default:
		return jqfLayout, nil
	}
}

// ProgressRow is one sample of a progress log.
type ProgressRow struct {
	Elapsed    time.Duration
	Executions int64
	CorpusSize int
}

// Progress is a parsed progress log, rows in file order.
type Progress struct {
	Layout Layout
	Rows   []ProgressRow
}

// unix timestamps in seconds are at least this large; elapsed counters never
// are during a campaign
const epochThreshold = 1e9

// ParseProgress reads a progress log. Lines whose first character is not a
// digit are headers and skipped. Cells are trimmed since some writers emit
// ", " separators.
func ParseProgress(r io.Reader, layout Layout) (*Progress, error) {
	p := &Progress{Layout: layout}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	var origin float64
	absolute := false
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] < '0' || line[0] > '9' {
			continue
		}
		cells := strings.Split(line, ",")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}

		t, err := cell(cells, 0)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(p.Rows) == 0 {
			origin = t
			absolute = t*float64(layout.TimeUnit)/float64(time.Second) >= epochThreshold
		}
		if absolute {
			t -= origin
		}

		var execs float64
		for _, col := range layout.ExecColumns {
			v, err := cell(cells, col)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			execs += v
		}
		corpus, err := cell(cells, layout.CorpusColumn)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		p.Rows = append(p.Rows, ProgressRow{
			Elapsed:    time.Duration(t * float64(layout.TimeUnit)),
			Executions: int64(math.Round(execs)),
			CorpusSize: int(corpus),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	if len(p.Rows) == 0 {
		return nil, ErrNoProgressRows
	}
	return p, nil
}

func cell(cells []string, col int) (float64, error) {
	if col >= len(cells) {
		return 0, fmt.Errorf("missing column %d", col)
	}
	v, err := strconv.ParseFloat(cells[col], 64)
	if err != nil {
		return 0, fmt.Errorf("column %d: %w", col, err)
	}
	return v, nil
}

// Executions is the execution count of the last row.
func (p *Progress) Executions() int64 {
	return p.Rows[len(p.Rows)-1].Executions
}

// Elapsed is the time of the last row.
func (p *Progress) Elapsed() time.Duration {
	return p.Rows[len(p.Rows)-1].Elapsed
}

// AtLimit returns the last row, scanning from the start, whose executions do
// not exceed limit. ok is false when even the first row is above it.
func (p *Progress) AtLimit(limit int64) (row ProgressRow, ok bool) {
	for _, r := range p.Rows {
		if r.Executions > limit {
			break
		}
		row, ok = r, true
	}
	return row, ok
}

// CorpusSizeAt is the corpus size at AtLimit, 0 when no row qualifies.
func (p *Progress) CorpusSizeAt(limit int64) int {
	row, ok := p.AtLimit(limit)
	if !ok {
		return 0
	}
	return row.CorpusSize
}

// TimeAt is the elapsed time at AtLimit, 0 when no row qualifies.
func (p *Progress) TimeAt(limit int64) time.Duration {
	row, ok := p.AtLimit(limit)
	if !ok {
		return 0
	}
	return row.Elapsed
}

// TimeToReach is the elapsed time of the first row with at least target
// executions. ok is false when the campaign never got there.
func (p *Progress) TimeToReach(target int64) (time.Duration, bool) {
	for _, r := range p.Rows {
		if r.Executions >= target {
			return r.Elapsed, true
		}
	}
	return 0, false
}

// ReadProgress parses the campaign's progress log with the layout of its
// fuzzer.
func (c *Campaign) ReadProgress() (*Progress, error) {
	layout, err := LayoutFor(c.Fuzzer)
	if err != nil {
		return nil, fmt.Errorf("campaign %s: %w", c.ID, err)
	}
	f, err := os.Open(c.ProgressFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open progress log: %w", err)
	}
	defer f.Close()
	p, err := ParseProgress(f, layout)
	if err != nil {
		return nil, fmt.Errorf("campaign %s: %w", c.ID, err)
	}
	return p, nil
}
