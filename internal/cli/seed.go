package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
	"live-quiz-service/internal/domain"
)

type seedQuestion struct {
	Text       string `yaml:"text"`
	OptionA    string `yaml:"optionA"`
	OptionB    string `yaml:"optionB"`
	OptionC    string `yaml:"optionC"`
	OptionD    string `yaml:"optionD"`
	Correct    string `yaml:"correct"`
	Difficulty string `yaml:"difficulty"`
}

// loadSeedQuestions reads a YAML list of questions. A missing file yields no questions.
func loadSeedQuestions(path string) ([]domain.Question, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var raw []seedQuestion
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]domain.Question, 0, len(raw))
	for _, q := range raw {
		out = append(out, domain.Question{
			Text:       q.Text,
			OptionA:    q.OptionA,
			OptionB:    q.OptionB,
			OptionC:    q.OptionC,
			OptionD:    q.OptionD,
			Correct:    domain.Label(q.Correct),
			Difficulty: domain.Difficulty(q.Difficulty),
		})
	}
	return out, nil
}
