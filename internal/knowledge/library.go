package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strconv"
	"strings"

	"kbengine/internal/domain"
)

// AddParams describes one validated pair submitted to the library. Input
// must already be anonymized upstream.
type AddParams struct {
	Module       string          `json:"module" validate:"required"`
	Category     string          `json:"category"`
	ScenarioType string          `json:"scenario_type"`
	Specialty    string          `json:"specialty"`
	Input        string          `json:"input" validate:"required"`
	Output       string          `json:"output" validate:"required"`
	Metadata     domain.Metadata `json:"metadata"`
	CreatedBy    string          `json:"created_by"`
}

type Library struct {
	store   ExampleStore
	emitter Emitter
}

func NewLibrary(store ExampleStore, emitter Emitter) *Library {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &Library{store: store, emitter: emitter}
}

// ContentHash fingerprints an example by module, category and the text pair,
// so identical text stored under two modules stays two rows.
func ContentHash(module, category, input, output string) string {
	h := sha256.New()
	for _, part := range []string{module, category, input, output} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Add stores a validated pair and returns its id. Submitting the same pair
// again returns the existing id and bumps its usage count instead of
// inserting a second row.
func (l *Library) Add(ctx context.Context, p AddParams) (int64, error) {
	p.Module = strings.TrimSpace(p.Module)
	p.Category = strings.TrimSpace(p.Category)
	p.Specialty = strings.TrimSpace(p.Specialty)
	p.Input = strings.TrimSpace(p.Input)
	p.Output = strings.TrimSpace(p.Output)
	if err := validateParams(p); err != nil {
		return 0, err
	}

	ex := domain.Example{
		Module:          p.Module,
		Category:        p.Category,
		ScenarioType:    strings.TrimSpace(p.ScenarioType),
		Specialty:       p.Specialty,
		ContentHash:     ContentHash(p.Module, p.Category, p.Input, p.Output),
		AnonymizedInput: p.Input,
		ValidatedOutput: p.Output,
		Metadata:        p.Metadata,
		QualityScore:    domain.DefaultQualityScore,
		CreatedBy:       p.CreatedBy,
	}
	id, created, err := l.store.UpsertExample(ctx, ex)
	if err != nil {
		return 0, err
	}
	log.Printf("examples add module=%s category=%s id=%d created=%t", p.Module, p.Category, id, created)
	if created {
		l.emitter.Emit(ctx, p.Module, domain.MetricExamplesAdded, 1, domain.Metadata{
			"category": p.Category,
		})
	}
	return id, nil
}

func (l *Library) Get(ctx context.Context, id int64) (domain.Example, error) {
	return l.store.GetExample(ctx, id)
}

// Deactivate retires an example from retrieval. Rows are never deleted.
func (l *Library) Deactivate(ctx context.Context, id int64) error {
	if err := l.store.SetExampleActive(ctx, id, false); err != nil {
		return err
	}
	log.Printf("examples deactivate id=%d", id)
	return nil
}
