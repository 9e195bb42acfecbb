package camera

import (
	"fmt"
	"strings"
)

// Step names one configuration step
type Step string

const (
	StepSession      Step = "session"
	StepOutputFile   Step = "output-file"
	StepAssetWriter  Step = "asset-writer"
	StepWriterInputs Step = "writer-inputs"
	StepCameraInput  Step = "camera-input"
	StepMicrophone   Step = "microphone-input"
	StepSampleOutput Step = "sample-outputs"
	StepPhotoOutput  Step = "photo-output"
	StepPreview      Step = "preview"
	StepStart        Step = "start-session"
)

// StepResult is the outcome of one step. Err is nil on success.
type StepResult struct {
	Step Step
	Err  error
}

// SetupReport lists every step of the last configuration in execution order
type SetupReport struct {
	Steps []StepResult
}

func (r *SetupReport) record(step Step, err error) {
	for i := range r.Steps {
		if r.Steps[i].Step == step {
			r.Steps[i].Err = err
			return
		}
	}
	r.Steps = append(r.Steps, StepResult{Step: step, Err: err})
}

// Err returns the recorded error for step, or nil if it succeeded or never ran
func (r SetupReport) Err(step Step) error {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Err
		}
	}
	return nil
}

// Ran reports whether step was attempted
func (r SetupReport) Ran(step Step) bool {
	for _, s := range r.Steps {
		if s.Step == step {
			return true
		}
	}
	return false
}

// Failed returns the steps whose precondition failed
func (r SetupReport) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// OK reports whether every step succeeded
func (r SetupReport) OK() bool {
	return len(r.Failed()) == 0
}

func (r SetupReport) String() string {
	failed := r.Failed()
	if len(failed) == 0 {
		return fmt.Sprintf("%d steps ok", len(r.Steps))
	}
	parts := make([]string, 0, len(failed))
	for _, s := range failed {
		parts = append(parts, fmt.Sprintf("%s: %v", s.Step, s.Err))
	}
	return fmt.Sprintf("%d/%d steps failed (%s)", len(failed), len(r.Steps), strings.Join(parts, "; "))
}

// Capabilities is what the configured session can actually do
type Capabilities struct {
	Camera     bool `json:"camera"`
	Microphone bool `json:"microphone"`
	Flash      bool `json:"flash"`
	Writer     bool `json:"writer"`
	Preview    bool `json:"preview"`
	Photo      bool `json:"photo"`
}

// Degradations names the missing capabilities
func (c Capabilities) Degradations() []string {
	var out []string
	if !c.Camera {
		out = append(out, "no camera")
	}
	if !c.Microphone {
		out = append(out, "no microphone")
	}
	if !c.Flash {
		out = append(out, "flash unsupported")
	}
	if !c.Writer {
		out = append(out, "writer unavailable")
	}
	if !c.Preview {
		out = append(out, "preview unavailable")
	}
	if !c.Photo {
		out = append(out, "photo capture unavailable")
	}
	return out
}
