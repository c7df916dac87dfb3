package knowledge

import (
	"context"
	"log"
	"strings"

	"kbengine/internal/domain"
)

// RecordParams is one validation event. IsCorrect is nil when the reviewer
// gave no verdict.
type RecordParams struct {
	Module           string          `json:"module" validate:"required"`
	AISuggestion     string          `json:"ai_suggestion" validate:"required"`
	UserCorrection   string          `json:"user_correction"`
	IsCorrect        *bool           `json:"is_correct"`
	FeedbackType     string          `json:"feedback_type"`
	ImprovementNotes string          `json:"improvement_notes"`
	Metadata         domain.Metadata `json:"metadata"`
	SessionID        string          `json:"session_id"`
	UserRole         string          `json:"user_role"`
}

// FeedbackLoop appends validation events. It never writes examples: storing
// a corrected pair is a separate Library.Add call made by the caller, and the
// two writes are not atomic.
type FeedbackLoop struct {
	store   FeedbackStore
	emitter Emitter
}

func NewFeedbackLoop(store FeedbackStore, emitter Emitter) *FeedbackLoop {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &FeedbackLoop{store: store, emitter: emitter}
}

func (f *FeedbackLoop) Record(ctx context.Context, p RecordParams) (int64, error) {
	p.Module = strings.TrimSpace(p.Module)
	p.AISuggestion = strings.TrimSpace(p.AISuggestion)
	p.UserCorrection = strings.TrimSpace(p.UserCorrection)
	if err := validateParams(p); err != nil {
		return 0, err
	}
	feedbackType := strings.TrimSpace(p.FeedbackType)
	if feedbackType == "" {
		feedbackType = domain.FeedbackTypeValidation
	}

	id, err := f.store.InsertFeedback(ctx, domain.FeedbackRecord{
		Module:           p.Module,
		SessionID:        p.SessionID,
		AISuggestion:     p.AISuggestion,
		UserCorrection:   p.UserCorrection,
		FeedbackType:     feedbackType,
		IsCorrect:        p.IsCorrect,
		ImprovementNotes: p.ImprovementNotes,
		Metadata:         p.Metadata,
		UserRole:         p.UserRole,
	})
	if err != nil {
		return 0, err
	}

	verdict := "unknown"
	if p.IsCorrect != nil {
		md := domain.Metadata{"feedback_type": feedbackType}
		if *p.IsCorrect {
			verdict = "correct"
			f.emitter.Emit(ctx, p.Module, domain.MetricValidationsCorrect, 1, md)
		} else {
			verdict = "incorrect"
			f.emitter.Emit(ctx, p.Module, domain.MetricCorrectionsNeeded, 1, md)
		}
	}
	log.Printf("feedback record module=%s id=%d verdict=%s has_correction=%t", p.Module, id, verdict, p.UserCorrection != "")
	return id, nil
}
