// Package qa implements the Q&A view processor: summary, generated
// questions, and extracted answers (spec.md §4.6). Confidence/sources are
// optional here — a "weak display" contract rather than a hard validation
// requirement.
package qa

import (
	"context"

	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/internal/llmgw"
	"github.com/docengine/itdoc/internal/pipeline"
	"github.com/docengine/itdoc/internal/views"
)

const totalSteps = 3

type Gateway interface {
	GenerateJSON(ctx context.Context, documentID, callType, schemaHint string, messages []llmgw.Message) (map[string]any, error)
}

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

func (p *Processor) Process(ctx context.Context, taskID, documentID, preprocessedText string, segments []domain.Segment) (map[string]any, error) {
	acc := pipeline.Accumulator{
		TaskID: taskID, DocumentID: documentID, PreprocessedText: preprocessedText,
		Segments: segments, TotalSteps: totalSteps, Result: make(map[string]any, totalSteps),
	}

	result, err := pipeline.Run(ctx, acc,
		pipeline.GenerateStep("summary", "summary", p.Publisher,
			p.generate("qa_summary",
				`{"key_points":[string],"question_types":{"string":int},"difficulty":{"string":int},"total_questions":int,"source_ids":[int],"confidence":int}`,
				"Summarize this document's key points and classify the kinds of questions it could generate."),
			func(obj map[string]any, acc pipeline.Accumulator) any {
				return mergeFieldGroup(views.ProcessStep(obj, acc.Segments, acc.PreprocessedText))
			}),
		pipeline.GenerateStep("generated_questions", "generated_questions", p.Publisher,
			p.generate("qa_generated_questions",
				`{"generated_questions":[{"question":string,"answer":string,"hint":string,"difficulty":string,"confidence":int,"source_ids":[int]}]}`,
				"Generate representative question/answer pairs a reader of this document might ask."),
			func(obj map[string]any, acc pipeline.Accumulator) any {
				return repairQuestionList(obj, acc.Segments)
			}),
		pipeline.GenerateStep("extracted_answers", "extracted_answers", p.Publisher,
			p.generate("qa_extracted_answers",
				`{"answers":[string],"source_ids":[int],"confidence":int}`,
				"Extract up to 20 direct answers already present in the document's text."),
			func(obj map[string]any, acc pipeline.Accumulator) any {
				return mergeFieldGroup(views.ProcessStep(obj, acc.Segments, acc.PreprocessedText))
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
		CurrentStage: "qa view complete",
	})
	return result, nil
}

// generate builds the pipeline.Generate closure for one field group's
// GenerateJSON call.
func (p *Processor) generate(callType, schemaHint, instruction string) pipeline.Generate {
	return func(ctx context.Context, acc pipeline.Accumulator) (map[string]any, error) {
		messages := []llmgw.Message{
			{Role: "system", Content: "You generate Q&A study material from IT documents. Respond with JSON only matching: " + schemaHint},
			{Role: "user", Content: instruction + "\n\n" + acc.PreprocessedText},
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

// repairQuestionList applies the "weak display" contract: each question
// keeps whatever confidence/sources the model supplied (kept when present,
// never defaulted or required), instead of the strict field-group validation used
// elsewhere.
func repairQuestionList(obj map[string]any, segments []domain.Segment) []map[string]any {
	raw, _ := obj["generated_questions"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		q, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := map[string]any{
			"question": q["question"],
			"answer":   q["answer"],
		}
		if hint, ok := q["hint"].(string); ok && hint != "" {
			entry["hint"] = hint
		}
		if difficulty, ok := q["difficulty"].(string); ok && difficulty != "" {
			entry["difficulty"] = difficulty
		}
		if conf, ok := q["confidence"].(float64); ok {
			entry["confidence"] = int(conf)
		}
		if idsRaw, ok := q["source_ids"].([]any); ok && len(idsRaw) > 0 {
			var ids []int
			for _, v := range idsRaw {
				if f, ok := v.(float64); ok {
					ids = append(ids, int(f))
				}
			}
			sources := views.ResolveSources(ids, segments)
			if len(sources) > 0 {
				entry["sources"] = sources
			}
		}
		out = append(out, entry)
	}
	return out
}
