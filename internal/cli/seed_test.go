package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"live-quiz-service/internal/domain"
)

func TestLoadSeedQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	raw := `
- text: What is 7 x 8?
  optionA: "54"
  optionB: "56"
  optionC: "58"
  optionD: "64"
  correct: b
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	questions, err := loadSeedQuestions(path)
	require.NoError(t, err)
	require.Len(t, questions, 1)

	q := questions[0]
	q.Normalize()
	require.NoError(t, q.Validate())
	assert.Equal(t, domain.LabelB, q.Correct)
	assert.Equal(t, domain.DifficultyMedium, q.Difficulty)
}

func TestLoadSeedQuestionsShippedFile(t *testing.T) {
	questions, err := loadSeedQuestions(filepath.Join("..", "..", "config", "questions.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, questions)
	for _, q := range questions {
		q.Normalize()
		assert.NoError(t, q.Validate(), q.Text)
	}
}

func TestLoadSeedQuestionsMissingFile(t *testing.T) {
	questions, err := loadSeedQuestions(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, questions)
}
