package telemetry

type ActionCategory int

const (
	Fuzzing ActionCategory = iota
	Analysis
	Extraction
	Reporting
	Dispatching
)

func (a ActionCategory) String() string {
	switch a {
	case Fuzzing:
		return "fuzzing"
	case Analysis:
		return "analysis"
	case Extraction:
		return "extraction"
	case Reporting:
		return "reporting"
	case Dispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}
