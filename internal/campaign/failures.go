package campaign

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

// StackTraceElement is one frame of a Java stack trace.
type StackTraceElement struct {
	DeclaringClass string `json:"declaringClass"`
	FileName       string `json:"fileName,omitempty"`
	MethodName     string `json:"methodName"`
	LineNumber     int    `json:"lineNumber"`
}

func (e StackTraceElement) String() string {
	var loc string
	switch {
	case e.LineNumber == -2:
		loc = "Native Method"
	case e.FileName == "":
		loc = "Unknown Source"
	case e.LineNumber >= 0:
		loc = fmt.Sprintf("%s:%d", e.FileName, e.LineNumber)
	default:
		loc = e.FileName
	}
	return fmt.Sprintf("%s.%s(%s)", e.DeclaringClass, e.MethodName, loc)
}

// UnmarshalJSON defaults a missing lineNumber to -1.
func (e *StackTraceElement) UnmarshalJSON(data []byte) error {
	type plain StackTraceElement
	p := plain{LineNumber: -1}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = StackTraceElement(p)
	return nil
}

// Trace is a stack trace, innermost frame first.
type Trace []StackTraceElement

// Signature renders the trace one frame per line. Two failures with the
// same type and signature are the same failure.
func (t Trace) Signature() string {
	frames := make([]string, len(t))
	for i, e := range t {
		frames[i] = e.String()
	}
	return strings.Join(frames, "\n")
}

// Failure is one record of failures.json.
type Failure struct {
	Type           string
	Trace          Trace
	DetectionTime  time.Duration
	InducingInputs []string
}

type failureRecord struct {
	Failure struct {
		Type  string `json:"type"`
		Trace Trace  `json:"trace"`
	} `json:"failure"`
	FirstTime      float64  `json:"firstTime"`
	InducingInputs []string `json:"inducingInputs"`
}

func ReadFailures(path string) ([]Failure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read failures: %w", err)
	}
	var records []failureRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse failures %s: %w", path, err)
	}
	failures := make([]Failure, 0, len(records))
	for _, r := range records {
		failures = append(failures, Failure{
			Type:           r.Failure.Type,
			Trace:          r.Failure.Trace,
			DetectionTime:  time.Duration(r.FirstTime * float64(time.Millisecond)),
			InducingInputs: r.InducingInputs,
		})
	}
	return failures, nil
}

// Failures reads the campaign's failures.json.
func (c *Campaign) Failures() ([]Failure, error) {
	return ReadFailures(c.FailuresFile)
}

// KnownFailure is a failure that has been manually mapped to defects.
type KnownFailure struct {
	Subject           string   `json:"subject"`
	Type              string   `json:"type"`
	Trace             Trace    `json:"trace"`
	AssociatedDefects []string `json:"associatedDefects"`
}

// KnownFailures indexes known failures by subject, type and trace.
type KnownFailures struct {
	byKey map[string]*KnownFailure
}

func failureKey(subject, typ string, trace Trace) string {
	return strings.ToLower(subject) + "\x00" + typ + "\x00" + trace.Signature()
}

func NewKnownFailures(known []KnownFailure) *KnownFailures {
	k := &KnownFailures{byKey: make(map[string]*KnownFailure, len(known))}
	for i := range known {
		f := &known[i]
		k.byKey[failureKey(f.Subject, f.Type, f.Trace)] = f
	}
	return k
}

func LoadKnownFailures(path string) (*KnownFailures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read known failures: %w", err)
	}
	var known []KnownFailure
	if err := json.Unmarshal(data, &known); err != nil {
		return nil, fmt.Errorf("failed to parse known failures %s: %w", path, err)
	}
	return NewKnownFailures(known), nil
}

// Defects returns the defects a failure of subject maps to, nil for an
// unknown failure.
func (k *KnownFailures) Defects(subject string, f Failure) []string {
	if k == nil {
		return nil
	}
	known, ok := k.byKey[failureKey(subject, f.Type, f.Trace)]
	if !ok {
		return nil
	}
	return slices.Clone(known.AssociatedDefects)
}

func (k *KnownFailures) Len() int {
	if k == nil {
		return 0
	}
	return len(k.byKey)
}
