package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"litgate/internal/aggregate"
	"litgate/internal/core"
	"litgate/internal/enhance"
	"litgate/internal/logger"
	"litgate/internal/sources"
)

// DefaultOutputLimit bounds the final article list when the config does
// not set one.
const DefaultOutputLimit = 20

// Executor runs validated pipeline configs against the source registry.
type Executor struct {
	registry *sources.Registry
	enhancer *enhance.Enhancer
}

// NewExecutor builds an executor. The enhancer may be nil; expand steps
// then degrade to passing their topic through.
func NewExecutor(registry *sources.Registry, enhancer *enhance.Enhancer) *Executor {
	return &Executor{registry: registry, enhancer: enhancer}
}

// StepTiming records how long one step ran.
type StepTiming struct {
	StepID   string        `json:"step_id"`
	Duration time.Duration `json:"duration"`
	Articles int           `json:"articles"`
}

// Result is the full outcome of one pipeline run. StepResults follow
// declaration order.
type Result struct {
	Articles    []core.Article    `json:"articles"`
	StepResults []core.StepResult `json:"step_results"`
	Timings     []StepTiming      `json:"timings"`
}

// Execute validates and runs a pipeline. Steps are partitioned into
// batches by layered topological sort; each batch runs concurrently and
// settles before the next starts. An abort-policy step failure stops the
// run after its batch.
func (e *Executor) Execute(ctx context.Context, cfg *core.PipelineConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	batches, err := layerSteps(cfg.Steps)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(cfg.Steps))
	for i, s := range cfg.Steps {
		index[s.ID] = i
	}
	results := make([]core.StepResult, len(cfg.Steps))
	timings := make([]StepTiming, len(cfg.Steps))

	for _, batch := range batches {
		g, gctx := errgroup.WithContext(ctx)
		for _, step := range batch {
			step := step
			slot := index[step.ID]
			g.Go(func() error {
				started := time.Now()
				results[slot] = e.runStep(gctx, step, gatherInputs(step, index, results))
				timings[slot] = StepTiming{
					StepID:   step.ID,
					Duration: time.Since(started),
					Articles: len(results[slot].Articles),
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return partialResult(results, timings), err
		}

		// Abort policy settles per batch, never mid-batch.
		for _, step := range batch {
			r := &results[index[step.ID]]
			if !r.OK() && step.OnError == core.OnErrorAbort {
				res := partialResult(results, timings)
				return res, &core.Error{
					Kind:    core.KindPipelineAborted,
					Step:    step.ID,
					Message: fmt.Sprintf("step %q failed: %s", step.ID, r.Error),
				}
			}
		}
	}

	res := partialResult(results, timings)
	finalize(res, cfg)
	return res, nil
}

// runStep dispatches to the action handler and converts a handler error
// into a failed StepResult.
func (e *Executor) runStep(ctx context.Context, step core.PipelineStep, inputs []core.StepResult) core.StepResult {
	handler, ok := e.handlers()[step.Action]
	if !ok {
		// Validation admits only known actions.
		return core.FailStep(step.ID, step.Action, core.NewError(core.KindInvariantBroken,
			fmt.Sprintf("no handler for action %q", step.Action)))
	}
	result, err := handler(ctx, step, inputs)
	if err != nil {
		logger.Warn("pipeline step failed", "step", step.ID, "action", step.Action, "error", err)
		return core.FailStep(step.ID, step.Action, err)
	}
	result.StepID = step.ID
	result.Action = step.Action
	return result
}

// gatherInputs collects the already-settled results this step consumes,
// in the order the step declared them. Failed inputs are included; the
// handlers decide whether to skip their contribution.
func gatherInputs(step core.PipelineStep, index map[string]int, results []core.StepResult) []core.StepResult {
	inputs := make([]core.StepResult, 0, len(step.Inputs))
	for _, id := range step.Inputs {
		inputs = append(inputs, results[index[id]])
	}
	return inputs
}

// layerSteps partitions steps into topological batches (Kahn's layering).
// Validation already forbids forward references, so a cycle reaching this
// point is a bug, not bad input.
func layerSteps(steps []core.PipelineStep) ([][]core.PipelineStep, error) {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string)
	byID := make(map[string]core.PipelineStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		indegree[s.ID] = len(s.Inputs)
		for _, in := range s.Inputs {
			dependents[in] = append(dependents[in], s.ID)
		}
	}

	var ready []string
	for _, s := range steps {
		if indegree[s.ID] == 0 {
			ready = append(ready, s.ID)
		}
	}

	var batches [][]core.PipelineStep
	emitted := 0
	for len(ready) > 0 {
		batch := make([]core.PipelineStep, 0, len(ready))
		var next []string
		for _, id := range ready {
			batch = append(batch, byID[id])
			emitted++
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		batches = append(batches, batch)
		ready = next
	}

	if emitted != len(steps) {
		return nil, core.NewError(core.KindInvariantBroken, "pipeline graph contains a cycle")
	}
	return batches, nil
}

func partialResult(results []core.StepResult, timings []StepTiming) *Result {
	return &Result{StepResults: results, Timings: timings}
}

// finalize takes the last declared step's articles (when it succeeded),
// ranks them with the configured preset and truncates to the limit.
func finalize(res *Result, cfg *core.PipelineConfig) {
	last := res.StepResults[len(res.StepResults)-1]
	if !last.OK() {
		return
	}
	articles := last.Articles

	preset := cfg.Output.Ranking
	if preset == "" || preset == "balanced" {
		preset = aggregate.PresetDefault
	}
	aggregate.Rank(articles, "", aggregate.PresetWeights(preset))

	limit := cfg.Output.Limit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	if len(articles) > limit {
		articles = articles[:limit]
	}
	res.Articles = articles
}
