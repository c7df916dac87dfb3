package assessment

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var questionValidate = validator.New()

// LoadBank reads a YAML list of questions. Malformed entries and repeated
// ids are skipped with a log line rather than failing the whole bank.
func LoadBank(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question bank: %w", err)
	}
	var raw []Question
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing question bank: %w", err)
	}

	out := make([]Question, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, q := range raw {
		q.ID = strings.TrimSpace(q.ID)
		q.Tier = strings.ToLower(strings.TrimSpace(q.Tier))
		q.Topic = strings.TrimSpace(q.Topic)
		if err := checkQuestion(q); err != nil {
			log.Printf("assessment bank skip index=%d id=%q reason=%v", i, q.ID, err)
			continue
		}
		if seen[q.ID] {
			log.Printf("assessment bank skip index=%d id=%q reason=duplicate id", i, q.ID)
			continue
		}
		seen[q.ID] = true
		out = append(out, q)
	}
	log.Printf("assessment bank loaded path=%s questions=%d skipped=%d", path, len(out), len(raw)-len(out))
	return out, nil
}

func checkQuestion(q Question) error {
	if err := questionValidate.Struct(q); err != nil {
		return err
	}
	if q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("correct_index %d out of range for %d options", q.CorrectIndex, len(q.Options))
	}
	return nil
}
