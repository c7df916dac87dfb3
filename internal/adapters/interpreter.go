// Package adapters holds the feature adapters that sit above the knowledge
// engine: they own the generation call and report verdicts back.
package adapters

import (
	"context"
	"fmt"
	"log"
	"strings"

	"kbengine/internal/domain"
	"kbengine/internal/integrations/llm"
	"kbengine/internal/knowledge"

	"github.com/google/uuid"
)

const (
	defaultContextExamples = 5
	defaultContextChars    = 2000
)

// Emitter matches knowledge.Emitter.
type Emitter = knowledge.Emitter

// Request carries anonymized input; the adapter never sees raw identifiable text.
type Request struct {
	Category     string
	ScenarioType string
	Specialty    string
	Input        string
	Instructions string
	SessionID    string
}

type Suggestion struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	ContextIDs []int64   `json:"context_ids"`
	Usage      llm.Usage `json:"usage"`
}

// Verdict is a reviewer's judgement of a Suggestion.
type Verdict struct {
	SessionID      string
	Category       string
	ScenarioType   string
	Specialty      string
	Input          string
	AISuggestion   string
	UserCorrection string
	IsCorrect      *bool
	Notes          string
	UserRole       string
	Metadata       domain.Metadata
}

type ValidationResult struct {
	FeedbackID int64 `json:"feedback_id"`
	// ExampleID is 0 when the verdict produced no validated pair.
	ExampleID int64 `json:"example_id"`
}

// Interpreter serves one module: the interpretation helper and the
// interview-prep generator are two Interpreters with different module names
// and system prompts.
type Interpreter struct {
	Module       string
	SystemPrompt string
	ExampleCount int
	MaxChars     int

	engine    *knowledge.Engine
	generator llm.Generator
	emitter   Emitter
}

func NewInterpreter(module, systemPrompt string, engine *knowledge.Engine, generator llm.Generator, emitter Emitter) *Interpreter {
	return &Interpreter{
		Module:       module,
		SystemPrompt: systemPrompt,
		ExampleCount: defaultContextExamples,
		MaxChars:     defaultContextChars,
		engine:       engine,
		generator:    generator,
		emitter:      emitter,
	}
}

func (it *Interpreter) Suggest(ctx context.Context, req Request) (Suggestion, error) {
	if strings.TrimSpace(req.Input) == "" {
		return Suggestion{}, &domain.ValidationError{Field: "input", Reason: "must not be empty"}
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	examples, err := it.engine.Retriever.Retrieve(ctx, domain.ExampleQuery{
		Module:    it.Module,
		Category:  req.Category,
		Specialty: req.Specialty,
		Limit:     it.ExampleCount,
	})
	if err != nil {
		return Suggestion{}, fmt.Errorf("retrieving context: %w", err)
	}

	text, usage, err := it.generator.Generate(ctx, it.SystemPrompt, buildUserPrompt(req, knowledge.BuildContextBlock(examples, it.MaxChars)))
	if err != nil {
		return Suggestion{}, err
	}

	ids := make([]int64, 0, len(examples))
	for _, ex := range examples {
		ids = append(ids, ex.ID)
	}
	contextIDs := knowledge.ExampleIDs(examples)
	if it.emitter != nil {
		it.emitter.Emit(ctx, it.Module, domain.MetricSuggestionsGenerated, 1, domain.Metadata{
			"session_id":    sessionID,
			"context_count": fmt.Sprint(len(ids)),
			"context_ids":   contextIDs,
		})
	}
	log.Printf("adapter suggest module=%s session=%s context=%d context_ids=%s tokens=%d", it.Module, sessionID, len(ids), contextIDs, usage.TotalTokens())
	return Suggestion{SessionID: sessionID, Text: text, ContextIDs: ids, Usage: usage}, nil
}

func buildUserPrompt(req Request, contextBlock string) string {
	var b strings.Builder
	if contextBlock != "" {
		b.WriteString("Validated examples from previous sessions:\n")
		b.WriteString(contextBlock)
		b.WriteString("\n\n")
	}
	if s := strings.TrimSpace(req.Instructions); s != "" {
		b.WriteString("Instructions: ")
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString("Input:\n")
	b.WriteString(strings.TrimSpace(req.Input))
	return b.String()
}

// Validate records the verdict, then stores the validated pair: the AI
// suggestion when it was correct, the correction when it was not. The two
// writes are separate; if the second fails the feedback row stays behind
// without its example and the error says so.
func (it *Interpreter) Validate(ctx context.Context, v Verdict) (ValidationResult, error) {
	feedbackID, err := it.engine.Feedback.Record(ctx, knowledge.RecordParams{
		Module:           it.Module,
		AISuggestion:     v.AISuggestion,
		UserCorrection:   v.UserCorrection,
		IsCorrect:        v.IsCorrect,
		ImprovementNotes: v.Notes,
		Metadata:         v.Metadata,
		SessionID:        v.SessionID,
		UserRole:         v.UserRole,
	})
	if err != nil {
		return ValidationResult{}, err
	}
	result := ValidationResult{FeedbackID: feedbackID}

	output := validatedOutput(v)
	if output == "" {
		return result, nil
	}
	exampleID, err := it.engine.Library.Add(ctx, knowledge.AddParams{
		Module:       it.Module,
		Category:     v.Category,
		ScenarioType: v.ScenarioType,
		Specialty:    v.Specialty,
		Input:        v.Input,
		Output:       output,
		Metadata:     v.Metadata,
		CreatedBy:    v.UserRole,
	})
	if err != nil {
		log.Printf("adapter validate orphaned feedback module=%s feedback_id=%d err=%v", it.Module, feedbackID, err)
		return result, fmt.Errorf("feedback %d recorded but example not stored: %w", feedbackID, err)
	}
	result.ExampleID = exampleID
	return result, nil
}

func validatedOutput(v Verdict) string {
	if v.IsCorrect == nil {
		return ""
	}
	if *v.IsCorrect {
		return strings.TrimSpace(v.AISuggestion)
	}
	return strings.TrimSpace(v.UserCorrection)
}
