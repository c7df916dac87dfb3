// Package assessment selects exam questions under difficulty quotas and
// shuffles answer options without losing track of the correct one.
package assessment

import (
	"fmt"
	"log"
	"math/rand"
	"sync"

	"kbengine/internal/domain"
)

type Question struct {
	ID           string   `yaml:"id" json:"id" validate:"required"`
	Tier         string   `yaml:"tier" json:"tier" validate:"required"`
	Topic        string   `yaml:"topic" json:"topic"`
	Prompt       string   `yaml:"prompt" json:"prompt" validate:"required"`
	Options      []string `yaml:"options" json:"options" validate:"min=2,dive,required"`
	CorrectIndex int      `yaml:"correct_index" json:"correct_index" validate:"gte=0"`
}

// CorrectOption returns the text of the correct answer, or "" when the index
// is out of range.
func (q Question) CorrectOption() string {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectIndex]
}

type TierQuota struct {
	Tier    string `yaml:"tier" json:"tier"`
	Percent int    `yaml:"percent" json:"percent"`
}

// DefaultQuotas is the static difficulty distribution.
var DefaultQuotas = []TierQuota{
	{Tier: "easy", Percent: 30},
	{Tier: "medium", Percent: 40},
	{Tier: "hard", Percent: 20},
	{Tier: "expert", Percent: 10},
}

// Shortfall records a bucket that could not be filled from the pool.
type Shortfall struct {
	Bucket string `json:"bucket"`
	Wanted int    `json:"wanted"`
	Got    int    `json:"got"`
}

type Selection struct {
	Questions  []Question
	Shortfalls []Shortfall
	Backfilled int
}

// Missing is the total number of questions the shortfalls left unfilled
// before backfill.
func (s Selection) Missing() int {
	n := 0
	for _, sf := range s.Shortfalls {
		n += sf.Wanted - sf.Got
	}
	return n
}

// ValidateQuotas checks that percents are non-negative and sum to 100.
func ValidateQuotas(quotas []TierQuota) error {
	if len(quotas) == 0 {
		return &domain.ValidationError{Field: "quotas", Reason: "must not be empty"}
	}
	sum := 0
	seen := make(map[string]bool, len(quotas))
	for _, q := range quotas {
		if q.Tier == "" {
			return &domain.ValidationError{Field: "quotas", Reason: "tier must not be empty"}
		}
		if seen[q.Tier] {
			return &domain.ValidationError{Field: "quotas", Reason: fmt.Sprintf("duplicate tier %q", q.Tier)}
		}
		seen[q.Tier] = true
		if q.Percent < 0 {
			return &domain.ValidationError{Field: "quotas", Reason: fmt.Sprintf("tier %q has negative percent", q.Tier)}
		}
		sum += q.Percent
	}
	if sum != 100 {
		return &domain.ValidationError{Field: "quotas", Reason: fmt.Sprintf("percents sum to %d, want 100", sum)}
	}
	return nil
}

// ComputeQuotas partitions total by percent. Every entry but the last is
// floored; the last takes the remainder so the counts always sum to total.
func ComputeQuotas(total int, percents []int) []int {
	counts := make([]int, len(percents))
	if len(percents) == 0 || total <= 0 {
		return counts
	}
	assigned := 0
	for i := 0; i < len(percents)-1; i++ {
		counts[i] = total * percents[i] / 100
		assigned += counts[i]
	}
	counts[len(counts)-1] = total - assigned
	return counts
}

type bucket struct {
	name    string
	percent int
	match   func(Question) bool
}

// Selector draws questions with a private random source. It is safe for
// concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector seeds the random source. The same seed and pool give the same
// selection.
func NewSelector(seed int64) *Selector {
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// SelectQuestions fills per-tier quotas from pool, backfills any shortfall
// from the rest of the pool, then shuffles question order and options. Only
// invalid quotas produce an error; a thin pool degrades to fewer questions.
func (s *Selector) SelectQuestions(pool []Question, total int, quotas []TierQuota) (Selection, error) {
	if err := ValidateQuotas(quotas); err != nil {
		return Selection{}, err
	}
	buckets := make([]bucket, 0, len(quotas))
	for _, q := range quotas {
		tier := q.Tier
		buckets = append(buckets, bucket{
			name:    tier,
			percent: q.Percent,
			match:   func(x Question) bool { return x.Tier == tier },
		})
	}
	return s.fill(pool, total, buckets), nil
}

func (s *Selector) fill(pool []Question, total int, buckets []bucket) Selection {
	sel := Selection{Questions: []Question{}}
	if total <= 0 || len(pool) == 0 {
		if total > 0 {
			sel.Shortfalls = append(sel.Shortfalls, Shortfall{Bucket: "pool", Wanted: total})
			log.Printf("assessment select empty pool wanted=%d", total)
		}
		return sel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	percents := make([]int, len(buckets))
	for i, b := range buckets {
		percents[i] = b.percent
	}
	quotas := ComputeQuotas(total, percents)

	used := make([]bool, len(pool))
	chosen := make([]int, 0, total)
	for i, b := range buckets {
		want := quotas[i]
		if want == 0 {
			continue
		}
		candidates := make([]int, 0)
		for idx, q := range pool {
			if !used[idx] && b.match(q) {
				candidates = append(candidates, idx)
			}
		}
		s.rng.Shuffle(len(candidates), func(x, y int) { candidates[x], candidates[y] = candidates[y], candidates[x] })
		got := want
		if len(candidates) < want {
			got = len(candidates)
			sel.Shortfalls = append(sel.Shortfalls, Shortfall{Bucket: b.name, Wanted: want, Got: got})
			log.Printf("assessment select shortfall bucket=%s wanted=%d available=%d", b.name, want, got)
		}
		for _, idx := range candidates[:got] {
			used[idx] = true
			chosen = append(chosen, idx)
		}
	}

	if len(chosen) < total {
		rest := make([]int, 0)
		for idx := range pool {
			if !used[idx] {
				rest = append(rest, idx)
			}
		}
		s.rng.Shuffle(len(rest), func(x, y int) { rest[x], rest[y] = rest[y], rest[x] })
		need := total - len(chosen)
		if need > len(rest) {
			need = len(rest)
		}
		chosen = append(chosen, rest[:need]...)
		sel.Backfilled = need
		if len(chosen) < total {
			log.Printf("assessment select pool exhausted wanted=%d selected=%d", total, len(chosen))
		}
	}

	s.rng.Shuffle(len(chosen), func(x, y int) { chosen[x], chosen[y] = chosen[y], chosen[x] })
	for _, idx := range chosen {
		sel.Questions = append(sel.Questions, s.shuffleOptions(pool[idx]))
	}
	return sel
}

// shuffleOptions returns a copy of q with its options permuted and
// CorrectIndex following the correct text. Malformed questions are returned
// unchanged.
func (s *Selector) shuffleOptions(q Question) Question {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return q
	}
	perm := s.rng.Perm(len(q.Options))
	options := make([]string, len(q.Options))
	correct := 0
	for newIdx, oldIdx := range perm {
		options[newIdx] = q.Options[oldIdx]
		if oldIdx == q.CorrectIndex {
			correct = newIdx
		}
	}
	q.Options = options
	q.CorrectIndex = correct
	return q
}
