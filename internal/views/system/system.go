// Package system implements the System view processor: six sequential
// LLM calls covering configuration steps, components, an architecture
// diagram, a plain-language explanation, a checklist, and related
// technologies (spec.md §4.6).
package system

import (
	"context"

	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/internal/llmgw"
	"github.com/docengine/itdoc/internal/pipeline"
	"github.com/docengine/itdoc/internal/views"
)

const (
	totalSteps   = 6
	truncateHead = 15000
	truncateTail = 5000
)

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
	promptText, truncated := views.TruncateForPrompt(preprocessedText, truncateHead, truncateTail)

	acc := pipeline.Accumulator{
		TaskID: taskID, DocumentID: documentID, PreprocessedText: promptText,
		Segments: segments, TotalSteps: totalSteps, Result: make(map[string]any, 7),
	}
	if truncated {
		acc.Result["metadata"] = map[string]any{"truncated": true, "head_chars": truncateHead, "tail_chars": truncateTail}
	}

	result, err := pipeline.Run(ctx, acc,
		pipeline.GenerateStep("config_steps", "config_steps", p.Publisher,
			p.generate("system_config_steps",
				`{"config_steps":[{"step":int,"description":string,"confidence":int,"source_ids":[int]}]}`,
				"List the ordered configuration/deployment steps described in this document."),
			func(obj map[string]any, acc pipeline.Accumulator) any {
				return repairStepList(obj, "config_steps", acc.Segments)
			}),
		pipeline.GenerateStep("components", "components", p.Publisher,
			p.generate("system_components",
				`{"components":[{"name":string,"description":string,"type":string}]}`,
				"List the system components described or implied by this document."),
			func(obj map[string]any, acc pipeline.Accumulator) any { return obj["components"] }),
		pipeline.GenerateStep("architecture_view", "architecture_view", p.Publisher,
			p.generate("system_architecture_view",
				`{"architecture_view":string}`,
				"Produce a textual architecture overview, using a Mermaid diagram if useful."),
			func(obj map[string]any, acc pipeline.Accumulator) any { return obj["architecture_view"] }),
		pipeline.GenerateStep("plain_explanation", "plain_explanation", p.Publisher,
			p.generate("system_plain_explanation",
				`{"plain_explanation":string}`,
				"Explain this system in plain, non-technical language."),
			func(obj map[string]any, acc pipeline.Accumulator) any { return obj["plain_explanation"] }),
		pipeline.GenerateStep("checklist", "checklist", p.Publisher,
			p.generate("system_checklist",
				`{"checklist":{"items":[string]}}`,
				"Produce an operational checklist of up to 20 items for this system."),
			func(obj map[string]any, acc pipeline.Accumulator) any { return capChecklist(obj) }),
		pipeline.GenerateStep("related_technologies", "related_technologies", p.Publisher,
			p.generate("system_related_technologies",
				`{"related_technologies":{"technologies":[string]}}`,
				"List up to 20 related technologies for this system."),
			func(obj map[string]any, acc pipeline.Accumulator) any { return capRelatedTechnologies(obj) }),
	)
	if err != nil {
		return nil, err
	}

	p.Publisher.Publish(domain.ProgressEvent{
		Type:         domain.ProgressEventCompleted,
		TaskID:       taskID,
		DocumentID:   documentID,
		Progress:     100,
		CurrentStage: "system view complete",
	})
	return result, nil
}

// generate builds the pipeline.Generate closure for one field group's
// GenerateJSON call.
func (p *Processor) generate(callType, schemaHint, instruction string) pipeline.Generate {
	return func(ctx context.Context, acc pipeline.Accumulator) (map[string]any, error) {
		messages := []llmgw.Message{
			{Role: "system", Content: "You document IT systems from source material. Respond with JSON only matching: " + schemaHint},
			{Role: "user", Content: instruction + "\n\n" + acc.PreprocessedText},
		}
		return p.Gateway.GenerateJSON(ctx, acc.DocumentID, callType, schemaHint, messages)
	}
}

func repairStepList(obj map[string]any, key string, segments []domain.Segment) []map[string]any {
	raw, _ := obj[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		step, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := map[string]any{
			"step":        step["step"],
			"description": step["description"],
		}
		if conf, ok := step["confidence"].(float64); ok {
			entry["confidence"] = int(conf)
		}
		if idsRaw, ok := step["source_ids"].([]any); ok {
			var ids []int
			for _, v := range idsRaw {
				if f, ok := v.(float64); ok {
					ids = append(ids, int(f))
				}
			}
			if sources := views.ResolveSources(ids, segments); len(sources) > 0 {
				entry["sources"] = sources
			}
		}
		out = append(out, entry)
	}
	return out
}

func capChecklist(obj map[string]any) map[string]any {
	checklist, _ := obj["checklist"].(map[string]any)
	if checklist == nil {
		return map[string]any{"items": []any{}}
	}
	if items, ok := checklist["items"].([]any); ok && len(items) > 20 {
		checklist["items"] = items[:20]
	}
	return checklist
}

func capRelatedTechnologies(obj map[string]any) map[string]any {
	related, _ := obj["related_technologies"].(map[string]any)
	if related == nil {
		return map[string]any{"technologies": []any{}}
	}
	if techs, ok := related["technologies"].([]any); ok {
		cleaned := make([]any, 0, len(techs))
		for _, t := range techs {
			if s, ok := t.(string); ok {
				cleaned = append(cleaned, views.StripTranslationParenthetical(s))
			}
		}
		if len(cleaned) > 20 {
			cleaned = cleaned[:20]
		}
		related["technologies"] = cleaned
	}
	return related
}
