package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/domain"
)

// QuizStore keeps the quiz state and ledger in Redis so several service instances share them.
//
//	quiz:state                         HASH  epoch, phase, cycle, version, timestamps
//	quiz:answers:{cycle}:{account}     HASH  questionID -> answer JSON
//	quiz:answers:{cycle}:{account}:v   HASH  questionID -> value token (A-D or "-")
//	quiz:answers:index                 SET   every answer key of the current cycle
//	quiz:results                       HASH  accountID -> result JSON
//	quiz:results:scores                ZSET  accountID scored by result score
//
// Answer upserts run as a Lua script; transitions and result writes use WATCH/MULTI.
type QuizStore struct {
	client *redis.Client
	prefix string
}

const maxTxRetries = 16

// putAnswerScript checks the cycle and phase guard, skips identical values and writes the answer.
var putAnswerScript = redis.NewScript(`
local phase = redis.call('HGET', KEYS[1], 'phase')
if not phase then phase = 'waiting' end
local cycle = redis.call('HGET', KEYS[1], 'cycle')
if not cycle then cycle = '1' end
if cycle ~= ARGV[1] then return -1 end
local allowed = false
for p in string.gmatch(ARGV[2], '%S+') do
  if p == phase then allowed = true end
end
if not allowed then return -2 end
if redis.call('HGET', KEYS[3], ARGV[3]) == ARGV[4] then return 0 end
redis.call('HSET', KEYS[2], ARGV[3], ARGV[5])
redis.call('HSET', KEYS[3], ARGV[3], ARGV[4])
redis.call('SADD', KEYS[4], KEYS[2], KEYS[3])
return 1
`)

func NewQuizStore(client *redis.Client, prefix string) *QuizStore {
	if prefix == "" {
		prefix = "quiz"
	}
	return &QuizStore{client: client, prefix: prefix}
}

func (s *QuizStore) stateKey() string       { return s.prefix + ":state" }
func (s *QuizStore) answerIndexKey() string { return s.prefix + ":answers:index" }
func (s *QuizStore) resultsKey() string     { return s.prefix + ":results" }
func (s *QuizStore) scoresKey() string      { return s.prefix + ":results:scores" }

func (s *QuizStore) answersKey(cycle uint64, accountID string) string {
	return s.prefix + ":answers:" + strconv.FormatUint(cycle, 10) + ":" + accountID
}

func (s *QuizStore) State(ctx context.Context) (domain.QuizState, error) {
	st, err := s.readState(ctx, s.client)
	if err != nil || st.Epoch != "" {
		return st, err
	}
	// First reader of an empty store names the epoch; HSETNX keeps concurrent readers consistent.
	if err := s.client.HSetNX(ctx, s.stateKey(), "epoch", uuid.NewString()).Err(); err != nil {
		return domain.QuizState{}, fmt.Errorf("init quiz epoch: %w", err)
	}
	return s.readState(ctx, s.client)
}

func (s *QuizStore) Transition(ctx context.Context, fn func(domain.QuizState) (domain.QuizState, error)) (domain.QuizState, error) {
	var next domain.QuizState
	txf := func(tx *redis.Tx) error {
		cur, err := s.readState(ctx, tx)
		if err != nil {
			return err
		}
		if cur.Epoch == "" {
			cur.Epoch = uuid.NewString()
		}
		next, err = fn(cur)
		if err != nil {
			return err
		}
		if next.Epoch == "" {
			next.Epoch = cur.Epoch
		}

		var stale []string
		newCycle := next.Cycle != cur.Cycle
		if newCycle {
			stale, err = tx.SMembers(ctx, s.answerIndexKey()).Result()
			if err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.stateKey(), encodeState(next))
			if newCycle {
				pipe.Del(ctx, append(stale, s.answerIndexKey(), s.resultsKey(), s.scoresKey())...)
			}
			return nil
		})
		return err
	}
	if err := s.watch(ctx, txf, s.stateKey(), s.answerIndexKey()); err != nil {
		return domain.QuizState{}, err
	}
	return next, nil
}

func (s *QuizStore) PutAnswer(ctx context.Context, guard domain.WriteGuard, answer domain.Answer) (bool, error) {
	data, err := json.Marshal(answer)
	if err != nil {
		return false, fmt.Errorf("encode answer: %w", err)
	}
	phases := make([]string, len(guard.Phases))
	for i, p := range guard.Phases {
		phases[i] = string(p)
	}
	key := s.answersKey(guard.Cycle, answer.AccountID)
	keys := []string{s.stateKey(), key, key + ":v", s.answerIndexKey()}

	code, err := putAnswerScript.Run(ctx, s.client, keys,
		strconv.FormatUint(guard.Cycle, 10),
		strings.Join(phases, " "),
		answer.QuestionID,
		answer.ValueToken(),
		string(data),
	).Int()
	if err != nil {
		return false, fmt.Errorf("put answer: %w", err)
	}
	switch code {
	case -1:
		return false, domain.ErrStaleCycle
	case -2:
		return false, domain.ErrQuizNotActive
	case 0:
		return false, nil
	}
	return true, nil
}

func (s *QuizStore) Answers(ctx context.Context, accountID string) ([]domain.Answer, error) {
	state, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.HGetAll(ctx, s.answersKey(state.Cycle, accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(raw))
	for questionID, v := range raw {
		var a domain.Answer
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", questionID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *QuizStore) PutResult(ctx context.Context, guard domain.WriteGuard, result domain.Result, rank func([]domain.Result) []domain.Result) (domain.Result, error) {
	var saved domain.Result
	txf := func(tx *redis.Tx) error {
		cur, err := s.readState(ctx, tx)
		if err != nil {
			return err
		}
		if err := guard.Check(cur); err != nil {
			return err
		}
		raw, err := tx.HGetAll(ctx, s.resultsKey()).Result()
		if err != nil {
			return err
		}
		all := make([]domain.Result, 0, len(raw)+1)
		for accountID, v := range raw {
			var r domain.Result
			if err := json.Unmarshal([]byte(v), &r); err != nil {
				return fmt.Errorf("decode result %s: %w", accountID, err)
			}
			all = append(all, r)
		}
		all = append(all, result)
		ranked := rank(all)

		encoded := make(map[string]interface{}, len(ranked))
		scores := make([]redis.Z, 0, len(ranked))
		for _, r := range ranked {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			encoded[r.AccountID] = data
			scores = append(scores, redis.Z{Score: float64(r.Score), Member: r.AccountID})
			if r.AccountID == result.AccountID {
				saved = r
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.resultsKey(), s.scoresKey())
			pipe.HSet(ctx, s.resultsKey(), encoded)
			pipe.ZAdd(ctx, s.scoresKey(), scores...)
			return nil
		})
		return err
	}
	if err := s.watch(ctx, txf, s.stateKey(), s.resultsKey()); err != nil {
		return domain.Result{}, err
	}
	return saved, nil
}

// Results returns every result, highest score first.
func (s *QuizStore) Results(ctx context.Context) ([]domain.Result, error) {
	ids, err := s.client.ZRevRange(ctx, s.scoresKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Result{}, nil
	}
	values, err := s.client.HMGet(ctx, s.resultsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	out := make([]domain.Result, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r domain.Result
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("decode result %s: %w", ids[i], err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *QuizStore) Result(ctx context.Context, accountID string) (domain.Result, error) {
	v, err := s.client.HGet(ctx, s.resultsKey(), accountID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Result{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("load result: %w", err)
	}
	var r domain.Result
	if err := json.Unmarshal([]byte(v), &r); err != nil {
		return domain.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}

// watch runs txf under WATCH and retries when a concurrent writer touched the keys.
func (s *QuizStore) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("quiz store: too much contention on %v", keys)
}

func (s *QuizStore) readState(ctx context.Context, c redis.Cmdable) (domain.QuizState, error) {
	raw, err := c.HGetAll(ctx, s.stateKey()).Result()
	if err != nil {
		return domain.QuizState{}, fmt.Errorf("load quiz state: %w", err)
	}
	return decodeState(raw)
}

func encodeState(st domain.QuizState) map[string]interface{} {
	return map[string]interface{}{
		"epoch":       st.Epoch,
		"phase":       string(st.Phase),
		"cycle":       strconv.FormatUint(st.Cycle, 10),
		"version":     strconv.FormatUint(st.Version, 10),
		"startedAt":   formatTime(st.StartedAt),
		"endsAt":      formatTime(st.EndsAt),
		"completedAt": formatTime(st.CompletedAt),
		"resetAt":     formatTime(st.ResetAt),
	}
}

func decodeState(raw map[string]string) (domain.QuizState, error) {
	st := domain.InitialQuizState()
	if len(raw) == 0 {
		return st, nil
	}
	st.Epoch = raw["epoch"]
	if p := raw["phase"]; p != "" {
		st.Phase = domain.Phase(p)
	}
	var err error
	if v := raw["cycle"]; v != "" {
		if st.Cycle, err = strconv.ParseUint(v, 10, 64); err != nil {
			return st, fmt.Errorf("decode cycle: %w", err)
		}
	}
	if v := raw["version"]; v != "" {
		if st.Version, err = strconv.ParseUint(v, 10, 64); err != nil {
			return st, fmt.Errorf("decode version: %w", err)
		}
	}
	st.StartedAt = parseTime(raw["startedAt"])
	st.EndsAt = parseTime(raw["endsAt"])
	st.CompletedAt = parseTime(raw["completedAt"])
	st.ResetAt = parseTime(raw["resetAt"])
	return st, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}
