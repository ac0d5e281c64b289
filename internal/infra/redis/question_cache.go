package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

// QuestionCache caches the question list in Redis so every instance shares one copy,
// and falls back to the source on a miss. Writes go through and delete the cached key.
//
//	SET {prefix}:questions <json list> EX ttl
type QuestionCache struct {
	client *redis.Client
	source memory.QuestionSource
	key    string
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, source memory.QuestionSource, prefix string, ttl time.Duration) *QuestionCache {
	if prefix == "" {
		prefix = "quiz"
	}
	return &QuestionCache{
		client: client,
		source: source,
		key:    prefix + ":questions",
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	if qs, ok := c.cached(ctx); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(c.key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.cached(ctx); ok {
			return qs, nil
		}

		qs, err := c.source.ListQuestions(ctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(qs); err == nil {
			_ = c.client.Set(ctx, c.key, data, c.ttlWithJitter()).Err()
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
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
	defer c.invalidate(ctx)
	return c.source.CreateQuestion(ctx, q)
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	defer c.invalidate(ctx)
	return c.source.UpdateQuestion(ctx, q)
}

func (c *QuestionCache) DeleteQuestion(ctx context.Context, id string) error {
	defer c.invalidate(ctx)
	return c.source.DeleteQuestion(ctx, id)
}

func (c *QuestionCache) invalidate(ctx context.Context) {
	_ = c.client.Del(ctx, c.key).Err()
}

func (c *QuestionCache) cached(ctx context.Context) ([]domain.Question, bool) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, false
	}
	return qs, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
