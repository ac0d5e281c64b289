package app

import (
	"math"

	"live-quiz-service/internal/domain"
)

const (
	pointsCorrect   = 2
	pointsIncorrect = -1
)

// ComputeScore derives an account's score from its answers against the current question set.
// Correctness comes from the flag recorded when the answer was written, so editing a question
// later never rescores it. Answers for questions no longer in the set are ignored.
func ComputeScore(questions []domain.Question, answers []domain.Answer) domain.ScoreResult {
	byQuestion := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	res := domain.ScoreResult{Total: len(questions)}
	responseSum := 0
	for _, q := range questions {
		a, ok := byQuestion[q.ID]
		if !ok || a.Value == nil {
			res.Skipped++
			continue
		}
		if a.IsCorrect {
			res.Correct++
		} else {
			res.Incorrect++
		}
		responseSum += a.ResponseTime
	}

	res.Score = pointsCorrect*res.Correct + pointsIncorrect*res.Incorrect
	if answered := res.Correct + res.Incorrect; answered > 0 {
		res.AvgResponseTime = int(math.Round(float64(responseSum) / float64(answered)))
	}
	return res
}
