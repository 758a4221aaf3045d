package core

import "fmt"

// Action is the type of work a pipeline step performs. The executor keys
// its dispatch table on this enum.
type Action string

const (
	ActionSearch     Action = "search"
	ActionPICO       Action = "pico"
	ActionExpand     Action = "expand"
	ActionDetails    Action = "details"
	ActionRelated    Action = "related"
	ActionCiting     Action = "citing"
	ActionReferences Action = "references"
	ActionMetrics    Action = "metrics"
	ActionMerge      Action = "merge"
	ActionFilter     Action = "filter"
)

// ValidActions lists every action the executor understands, in a stable
// order for error messages.
var ValidActions = []Action{
	ActionSearch, ActionPICO, ActionExpand, ActionDetails, ActionRelated,
	ActionCiting, ActionReferences, ActionMetrics, ActionMerge, ActionFilter,
}

// Valid reports whether the action is a member of the closed set.
func (a Action) Valid() bool {
	for _, v := range ValidActions {
		if a == v {
			return true
		}
	}
	return false
}

// OnError selects a step's failure policy.
type OnError string

const (
	OnErrorSkip  OnError = "skip"  // Record the error, keep running downstream steps
	OnErrorAbort OnError = "abort" // Abort the pipeline after the current batch settles
)

// MaxPipelineSteps bounds the size of a pipeline config.
const MaxPipelineSteps = 32

// PipelineStep is one node in the DAG.
type PipelineStep struct {
	ID      string            `json:"id" yaml:"id"`
	Action  Action            `json:"action" yaml:"action"`
	Params  map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Inputs  []string          `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	OnError OnError           `json:"on_error,omitempty" yaml:"on_error,omitempty"`
}

// PipelineOutput controls finalization of the last step's articles.
type PipelineOutput struct {
	Format  string `json:"format,omitempty" yaml:"format,omitempty"`
	Limit   int    `json:"limit,omitempty" yaml:"limit,omitempty"`     // Default 20
	Ranking string `json:"ranking,omitempty" yaml:"ranking,omitempty"` // balanced | impact | recency | quality
}

// PipelineConfig is a full user-declared pipeline.
type PipelineConfig struct {
	Name           string            `json:"name,omitempty" yaml:"name,omitempty"`
	Steps          []PipelineStep    `json:"steps" yaml:"steps"`
	Output         PipelineOutput    `json:"output,omitempty" yaml:"output,omitempty"`
	Template       string            `json:"template,omitempty" yaml:"template,omitempty"`
	TemplateParams map[string]string `json:"template_params,omitempty" yaml:"template_params,omitempty"`
}

// StepResult is the typed record of one step's outputs.
type StepResult struct {
	StepID   string         `json:"step_id"`
	Action   Action         `json:"action"`
	Articles []Article      `json:"articles,omitempty"`
	PMIDs    []string       `json:"pmids,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// OK reports whether the step completed without error.
func (r *StepResult) OK() bool {
	return r.Error == ""
}

// SetMeta lazily initializes and writes a metadata entry.
func (r *StepResult) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}

// FailStep builds an error result for a step.
func FailStep(id string, action Action, err error) StepResult {
	return StepResult{StepID: id, Action: action, Error: err.Error()}
}

// Validate performs the pre-run structural checks: non-empty bounded step
// list, unique non-empty ids, known actions, and inputs referring only to
// earlier steps. Cycles cannot survive these checks since inputs are
// backward references, but the executor still guards its layering.
func (c *PipelineConfig) Validate() error {
	if len(c.Steps) == 0 {
		return NewError(KindInvalidInput, "pipeline has no steps")
	}
	if len(c.Steps) > MaxPipelineSteps {
		return NewError(KindInvalidInput, fmt.Sprintf("pipeline has %d steps, maximum is %d", len(c.Steps), MaxPipelineSteps))
	}
	seen := make(map[string]int, len(c.Steps))
	for i, step := range c.Steps {
		if step.ID == "" {
			return NewError(KindInvalidInput, fmt.Sprintf("step %d has an empty id", i))
		}
		if _, dup := seen[step.ID]; dup {
			return NewError(KindInvalidInput, fmt.Sprintf("duplicate step id %q", step.ID))
		}
		if !step.Action.Valid() {
			return NewError(KindInvalidInput, fmt.Sprintf("step %q has unknown action %q", step.ID, step.Action))
		}
		if step.OnError != "" && step.OnError != OnErrorSkip && step.OnError != OnErrorAbort {
			return NewError(KindInvalidInput, fmt.Sprintf("step %q has unknown on_error %q", step.ID, step.OnError))
		}
		for _, in := range step.Inputs {
			if _, ok := seen[in]; !ok {
				return NewError(KindInvalidInput, fmt.Sprintf("step %q references %q which is not an earlier step", step.ID, in))
			}
		}
		seen[step.ID] = i
	}
	return nil
}
