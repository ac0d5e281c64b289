package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"live-quiz-service/internal/domain"
)

const questionColumns = `id, text, option_a, option_b, option_c, option_d, correct, difficulty, created_by, created_at, updated_at`

// QuestionBank stores questions in the questions table, listed in creation order.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := b.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return out, nil
}

func (b *QuestionBank) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	row := b.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, err
}

func (b *QuestionBank) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	_, err := b.pool.Exec(ctx, `INSERT INTO questions (`+questionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		q.ID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, string(q.Correct), string(q.Difficulty), q.CreatedBy, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return domain.Question{}, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

func (b *QuestionBank) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	tag, err := b.pool.Exec(ctx, `UPDATE questions
		SET text=$2, option_a=$3, option_b=$4, option_c=$5, option_d=$6, correct=$7, difficulty=$8, updated_at=$9
		WHERE id=$1`,
		q.ID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, string(q.Correct), string(q.Difficulty), q.UpdatedAt)
	if err != nil {
		return domain.Question{}, fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (b *QuestionBank) DeleteQuestion(ctx context.Context, id string) error {
	tag, err := b.pool.Exec(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q                   domain.Question
		correct, difficulty string
	)
	err := row.Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &correct, &difficulty, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, err
		}
		return domain.Question{}, fmt.Errorf("scan question: %w", err)
	}
	q.Correct = domain.Label(correct)
	q.Difficulty = domain.Difficulty(difficulty)
	return q, nil
}
