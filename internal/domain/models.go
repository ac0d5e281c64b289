package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role controls which quiz operations an account may perform.
type Role string

const (
	RoleStudent    Role = "student"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r may operate the quiz and manage questions.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Account is a registered user. PasswordHash never leaves the server.
type Account struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"displayName"`
	Role         Role       `json:"role"`
	School       string     `json:"school,omitempty"`
	PasswordHash string     `json:"-"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Validate checks the fields every stored account must carry.
func (a Account) Validate() error {
	if strings.TrimSpace(a.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if strings.TrimSpace(a.DisplayName) == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	if !a.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, a.Role)
	}
	if a.Role == RoleStudent && strings.TrimSpace(a.School) == "" {
		return fmt.Errorf("%w: school is required for students", ErrInvalidInput)
	}
	return nil
}

// Principal is the authenticated caller resolved from a session token.
type Principal struct {
	AccountID string `json:"accountId"`
	Role      Role   `json:"role"`
}

// Label identifies one of the four options of a question.
type Label string

const (
	LabelA Label = "A"
	LabelB Label = "B"
	LabelC Label = "C"
	LabelD Label = "D"
)

func (l Label) Valid() bool {
	switch l {
	case LabelA, LabelB, LabelC, LabelD:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Question models an MCQ question with four labelled options and one correct label.
type Question struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	OptionA    string     `json:"optionA"`
	OptionB    string     `json:"optionB"`
	OptionC    string     `json:"optionC"`
	OptionD    string     `json:"optionD"`
	Correct    Label      `json:"correct,omitempty"`
	Difficulty Difficulty `json:"difficulty"`
	CreatedBy  string     `json:"createdBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Normalize fills defaults before validation.
func (q *Question) Normalize() {
	q.Text = strings.TrimSpace(q.Text)
	q.Correct = Label(strings.ToUpper(strings.TrimSpace(string(q.Correct))))
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
}

func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: question text is required", ErrInvalidInput)
	}
	options := []string{q.OptionA, q.OptionB, q.OptionC, q.OptionD}
	for i, option := range options {
		if strings.TrimSpace(option) == "" {
			return fmt.Errorf("%w: option %c is required", ErrInvalidInput, 'A'+i)
		}
	}
	if !q.Correct.Valid() {
		return fmt.Errorf("%w: correct option must be one of A, B, C, D", ErrInvalidInput)
	}
	if !q.Difficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, q.Difficulty)
	}
	return nil
}

// Redacted hides the correct label for callers that are answering the quiz.
func (q Question) Redacted() Question {
	q.Correct = ""
	q.CreatedBy = ""
	return q
}
