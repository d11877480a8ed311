// Package provenance records which processing stages ran, when, for how
// long and with which inputs and outputs. Stages are timed independently
// and collected into a Chain, which is finalized into one nested Step and
// written to disk once at the end of a run.
package provenance

import (
	"maps"
	"time"
)

// FileName is the name of the provenance file inside the provenance directory.
const FileName = "provenance.json"

// now is replaceable so tests can control stage timing.
var now = time.Now

// Step is one node of the provenance tree.
type Step struct {
	ActivityName        string            `json:"activity_name"`
	ActivityDescription string            `json:"activity_description"`
	StartTimeUnix       float64           `json:"start_time_unix"`
	ProcessingTimeMs    float64           `json:"processing_time_ms"`
	InputData           map[string]any    `json:"input_data"`
	OutputData          map[string]any    `json:"output_data"`
	Parameters          map[string]any    `json:"parameters,omitempty"`
	SoftwareVersion     map[string]string `json:"software_version,omitempty"`
	Steps               []Step            `json:"steps,omitempty"`
}

// Option sets the optional fields of a Step.
type Option func(*Step)

// WithParameters records the parameters a stage ran with.
func WithParameters(params map[string]any) Option {
	return func(s *Step) { s.Parameters = params }
}

// WithSoftwareVersion records the software a stage used.
func WithSoftwareVersion(versions map[string]string) Option {
	return func(s *Step) {
		if len(versions) > 0 {
			s.SoftwareVersion = versions
		}
	}
}

// Stage is an open provenance step whose clock started at Begin.
type Stage struct {
	name        string
	description string
	start       time.Time
}

// Begin opens a stage and captures its start time.
func Begin(name, description string) *Stage {
	return &Stage{name: name, description: description, start: now()}
}

// Name returns the stage activity name.
func (s *Stage) Name() string { return s.name }

// End closes the stage. processing_time_ms is the wall time since Begin.
func (s *Stage) End(input, output map[string]any, opts ...Option) Step {
	elapsed := now().Sub(s.start)
	step := Step{
		ActivityName:        s.name,
		ActivityDescription: s.description,
		StartTimeUnix:       float64(s.start.UnixNano()) / float64(time.Second),
		ProcessingTimeMs:    float64(elapsed) / float64(time.Millisecond),
		InputData:           nonNil(input),
		OutputData:          nonNil(output),
	}
	for _, opt := range opts {
		opt(&step)
	}
	return step
}

// Chain accumulates the steps of one run in execution order.
type Chain struct {
	steps []Step
}

// Append adds steps to the end of the chain.
func (c *Chain) Append(steps ...Step) {
	c.steps = append(c.steps, steps...)
}

// Len returns the number of recorded steps.
func (c *Chain) Len() int { return len(c.steps) }

// Steps returns a copy of the recorded steps.
func (c *Chain) Steps() []Step {
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// Finalize closes top with the chain as its children. The top-level
// output_data is MergeOutput of the children.
func (c *Chain) Finalize(top *Stage, input map[string]any, opts ...Option) Step {
	step := top.End(input, MergeOutput(c.steps), opts...)
	step.Steps = c.Steps()
	return step
}

// MergeOutput shallow-merges the output_data of steps in order.
// Later steps win on key collisions.
func MergeOutput(steps []Step) map[string]any {
	out := make(map[string]any)
	for _, s := range steps {
		maps.Copy(out, s.OutputData)
	}
	return out
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
