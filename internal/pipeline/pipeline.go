// Package pipeline composes a view processor's sequential field-group
// calls into a single pkg/fn.Stage pipeline, so each view's Process
// method reads as a declared list of steps instead of a hand-chained
// if-err-return-nil ladder (spec.md §4.6).
package pipeline

import (
	"context"

	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/internal/views"
	"github.com/docengine/itdoc/pkg/fn"
)

// Accumulator threads a view processor's document context and running
// result map through each Step. StepIndex/TotalSteps back the "step
// i/N – <title>" progress labels (spec.md §4.6 step 5).
type Accumulator struct {
	TaskID           string
	DocumentID       string
	PreprocessedText string
	Segments         []domain.Segment

	StepIndex  int
	TotalSteps int
	Result     map[string]any
}

// Step is one field-group stage: call the model, fold its output into
// the accumulator's Result under a key, and publish a progress event.
type Step = fn.Stage[Accumulator, Accumulator]

// Generate is the narrow capability a Step needs to produce one
// field group's raw model response.
type Generate func(ctx context.Context, acc Accumulator) (map[string]any, error)

// Transform turns a field group's raw model response into the value
// stored under its result key — typically views.ProcessStep plus
// views-package post-processing (repair, capping, translation-stripping).
type Transform func(obj map[string]any, acc Accumulator) any

// GenerateStep builds a Step that generates one field group, transforms
// its raw response into the stored result, and publishes the
// corresponding "step i/N" progress event. A generate error is fatal —
// it short-circuits the rest of the pipeline via fn.Pipeline.
func GenerateStep(key, label string, pub views.ProgressPublisher, generate Generate, transform Transform) Step {
	if pub == nil {
		pub = views.NoopPublisher{}
	}
	return func(ctx context.Context, acc Accumulator) fn.Result[Accumulator] {
		obj, err := generate(ctx, acc)
		if err != nil {
			return fn.Err[Accumulator](err)
		}
		acc.StepIndex++
		acc.Result[key] = transform(obj, acc)
		pub.Publish(domain.ProgressEvent{
			Type:         domain.ProgressEventProgress,
			TaskID:       acc.TaskID,
			DocumentID:   acc.DocumentID,
			CurrentStage: views.StepLabel(acc.StepIndex, acc.TotalSteps, label),
		})
		return fn.Ok(acc)
	}
}

// Run composes steps into a single fn.Pipeline and executes it,
// returning the accumulated result map or the first step's error.
func Run(ctx context.Context, acc Accumulator, steps ...Step) (map[string]any, error) {
	result := fn.Pipeline(steps...)(ctx, acc)
	out, err := result.Unwrap()
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}
