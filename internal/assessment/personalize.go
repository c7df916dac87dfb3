package assessment

const (
	weakAccuracy   = 0.6
	strongAccuracy = 0.8
)

// History is a student's past accuracy per topic, 0..1.
type History struct {
	TopicAccuracy map[string]float64 `json:"topic_accuracy" yaml:"topic_accuracy"`
}

func (h *History) empty() bool {
	return h == nil || len(h.TopicAccuracy) == 0
}

func (h *History) weak(topic string) bool {
	acc, ok := h.TopicAccuracy[topic]
	return ok && acc < weakAccuracy
}

func (h *History) strong(topic string) bool {
	acc, ok := h.TopicAccuracy[topic]
	return ok && acc >= strongAccuracy
}

// SelectPersonalized splits the exam 40% weak-area, 20% confidence-building
// and 40% mixed. Mixed is filled last so it only takes what the targeted
// buckets left. Without history it falls back to the static quotas.
func (s *Selector) SelectPersonalized(pool []Question, total int, history *History, fallback []TierQuota) (Selection, error) {
	if history.empty() {
		return s.SelectQuestions(pool, total, fallback)
	}
	buckets := []bucket{
		{name: "weak_area", percent: 40, match: func(q Question) bool { return history.weak(q.Topic) }},
		{name: "confidence", percent: 20, match: func(q Question) bool { return q.Tier == "easy" || history.strong(q.Topic) }},
		{name: "mixed", percent: 40, match: func(Question) bool { return true }},
	}
	return s.fill(pool, total, buckets), nil
}
