package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"live-quiz-service/internal/domain"
)

// QuestionSource is the backing question store (e.g., Postgres).
type QuestionSource interface {
	ListQuestions(ctx context.Context) ([]domain.Question, error)
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
}

const listKey = "questions"

// QuestionCache caches the question list with a TTL to avoid a DB hit on every answer.
// Writes go through to the source and drop the cached list.
type QuestionCache struct {
	source QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	questions []domain.Question
	expiresAt time.Time
	gen       uint64 // bumped on invalidate so in-flight loads do not repopulate stale data
}

func NewQuestionCache(source QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	if qs, ok := c.cached(); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(listKey, func() (interface{}, error) {
		if qs, ok := c.cached(); ok {
			return qs, nil
		}

		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		qs, err := c.source.ListQuestions(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.gen == gen {
			c.questions = qs
			c.expiresAt = c.clock().Add(c.ttlWithJitter())
		}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneQuestions(result.([]domain.Question)), nil
}

func (c *QuestionCache) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	qs, err := c.ListQuestions(ctx)
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range qs {
		if q.ID == id {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	defer c.Invalidate()
	return c.source.CreateQuestion(ctx, q)
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	defer c.Invalidate()
	return c.source.UpdateQuestion(ctx, q)
}

func (c *QuestionCache) DeleteQuestion(ctx context.Context, id string) error {
	defer c.Invalidate()
	return c.source.DeleteQuestion(ctx, id)
}

// Invalidate drops the cached list.
func (c *QuestionCache) Invalidate() {
	c.mu.Lock()
	c.questions = nil
	c.expiresAt = time.Time{}
	c.gen++
	c.mu.Unlock()
}

func (c *QuestionCache) cached() ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.questions != nil && c.expiresAt.After(c.clock()) {
		return cloneQuestions(c.questions), true
	}
	return nil, false
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cloneQuestions(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	copy(out, qs)
	return out
}
