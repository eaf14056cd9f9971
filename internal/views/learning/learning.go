// Package learning implements the Learning view processor: four
// sequential LLM calls producing prerequisites, a learning path,
// learning methods, and related technologies (spec.md §4.6).
package learning

import (
	"context"

	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/internal/llmgw"
	"github.com/docengine/itdoc/internal/pipeline"
	"github.com/docengine/itdoc/internal/views"
)

const totalSteps = 4

// Gateway is the narrow LLM capability this processor needs.
type Gateway interface {
	GenerateJSON(ctx context.Context, documentID, callType, schemaHint string, messages []llmgw.Message) (map[string]any, error)
}

// Processor runs the Learning view's four-step script.
type Processor struct {
	Gateway   Gateway
	Publisher views.ProgressPublisher
}

func New(gw Gateway, pub views.ProgressPublisher) *Processor {
	if pub == nil {
		pub = views.NoopPublisher{}
	}
	return &Processor{Gateway: gw, Publisher: pub}
}

// Process runs prerequisites → learning_path → learning_methods →
// related_technologies in order, publishing a progress event after each.
func (p *Processor) Process(ctx context.Context, taskID, documentID, preprocessedText string, segments []domain.Segment) (map[string]any, error) {
	acc := pipeline.Accumulator{
		TaskID: taskID, DocumentID: documentID, PreprocessedText: preprocessedText,
		Segments: segments, TotalSteps: totalSteps, Result: make(map[string]any, totalSteps),
	}

	field := func(obj map[string]any, acc pipeline.Accumulator) any {
		return mergeFieldGroup(views.ProcessStep(obj, acc.Segments, acc.PreprocessedText))
	}

	result, err := pipeline.Run(ctx, acc,
		pipeline.GenerateStep("prerequisites", "prerequisites", p.Publisher,
			p.generate("learning_prerequisites",
				`{"required":[string],"recommended":[string],"source_ids":[int],"confidence":int}`,
				"List required and recommended prerequisite knowledge for this document."),
			field),
		pipeline.GenerateStep("learning_path", "learning_path", p.Publisher,
			p.generate("learning_path",
				`{"stages":[{"stage":int,"title":string,"content":string}],"source_ids":[int],"confidence":int}`,
				"Produce a numbered learning path of stages for mastering this document's subject."),
			field),
		pipeline.GenerateStep("learning_methods", "learning_methods", p.Publisher,
			p.generate("learning_methods",
				`{"theory":string,"practice":string,"source_ids":[int],"confidence":int}`,
				"Describe the theoretical and practical study methods best suited to this content."),
			field),
		pipeline.GenerateStep("related_technologies", "related_technologies", p.Publisher,
			p.generate("related_technologies",
				`{"technologies":[string],"source_ids":[int],"confidence":int}`,
				"List up to 10 related technologies mentioned or implied by this document."),
			func(obj map[string]any, acc pipeline.Accumulator) any {
				return mergeFieldGroup(stripTechTranslations(views.ProcessStep(obj, acc.Segments, acc.PreprocessedText)))
			}),
	)
	if err != nil {
		return nil, err
	}

	p.Publisher.Publish(domain.ProgressEvent{
		Type:         domain.ProgressEventCompleted,
		TaskID:       taskID,
		DocumentID:   documentID,
		Progress:     100,
		CurrentStage: "learning view complete",
	})
	return result, nil
}

// generate builds the pipeline.Generate closure for one field group's
// GenerateJSON call.
func (p *Processor) generate(callType, schemaHint, prompt string) pipeline.Generate {
	return func(ctx context.Context, acc pipeline.Accumulator) (map[string]any, error) {
		messages := []llmgw.Message{
			{Role: "system", Content: "You analyze IT documents to extract structured learning guidance. Respond with JSON only matching: " + schemaHint},
			{Role: "user", Content: prompt + "\n\n" + acc.PreprocessedText},
		}
		return p.Gateway.GenerateJSON(ctx, acc.DocumentID, callType, schemaHint, messages)
	}
}

func mergeFieldGroup(r views.StepResult) map[string]any {
	out := make(map[string]any, len(r.Data)+3)
	for k, v := range r.Data {
		out[k] = v
	}
	out["confidence"] = r.Confidence
	out["confidence_label"] = string(r.Label)
	out["sources"] = r.Sources
	return out
}

func stripTechTranslations(r views.StepResult) views.StepResult {
	raw, ok := r.Data["technologies"].([]any)
	if !ok {
		return r
	}
	cleaned := make([]any, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			cleaned = append(cleaned, views.StripTranslationParenthetical(s))
		}
	}
	if len(cleaned) > 10 {
		cleaned = cleaned[:10]
	}
	r.Data["technologies"] = cleaned
	return r
}
