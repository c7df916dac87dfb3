package adapters

import (
	"context"
	"fmt"
	"log"

	"kbengine/internal/assessment"
	"kbengine/internal/domain"

	"github.com/google/uuid"
)

// ExamModule is the module name exam metrics are recorded under.
const ExamModule = "certification"

type Exam struct {
	ID         string                 `json:"id"`
	Questions  []assessment.Question  `json:"questions"`
	Shortfalls []assessment.Shortfall `json:"shortfalls,omitempty"`
	Requested  int                    `json:"requested"`
}

// ExamBuilder draws exams from a question bank. A thin bank yields a shorter
// exam, never an error.
type ExamBuilder struct {
	bank     []assessment.Question
	quotas   []assessment.TierQuota
	selector *assessment.Selector
	emitter  Emitter
}

func NewExamBuilder(bank []assessment.Question, quotas []assessment.TierQuota, selector *assessment.Selector, emitter Emitter) (*ExamBuilder, error) {
	if len(quotas) == 0 {
		quotas = assessment.DefaultQuotas
	}
	if err := assessment.ValidateQuotas(quotas); err != nil {
		return nil, err
	}
	return &ExamBuilder{bank: bank, quotas: quotas, selector: selector, emitter: emitter}, nil
}

// Build selects total questions; history switches to personalized buckets.
func (b *ExamBuilder) Build(ctx context.Context, total int, history *assessment.History) (Exam, error) {
	if total < 1 {
		return Exam{}, &domain.ValidationError{Field: "total", Reason: "must be >= 1"}
	}
	sel, err := b.selector.SelectPersonalized(b.bank, total, history, b.quotas)
	if err != nil {
		return Exam{}, err
	}
	exam := Exam{
		ID:         uuid.NewString(),
		Questions:  sel.Questions,
		Shortfalls: sel.Shortfalls,
		Requested:  total,
	}

	if b.emitter != nil {
		md := domain.Metadata{
			"exam_id":      exam.ID,
			"requested":    fmt.Sprint(total),
			"personalized": fmt.Sprint(history != nil && len(history.TopicAccuracy) > 0),
			"backfilled":   fmt.Sprint(sel.Backfilled),
			"bucket_gap":   fmt.Sprint(sel.Missing()),
		}
		b.emitter.Emit(ctx, ExamModule, domain.MetricExamsGenerated, float64(len(exam.Questions)), md)
		if missing := total - len(exam.Questions); missing > 0 {
			b.emitter.Emit(ctx, ExamModule, domain.MetricQuestionShortfall, float64(missing), md)
		}
	}
	log.Printf("adapter exam build id=%s requested=%d selected=%d bucket_missing=%d backfilled=%d", exam.ID, total, len(exam.Questions), sel.Missing(), sel.Backfilled)
	return exam, nil
}
