// Package client follows the live quiz state from outside the server. It prefers the
// websocket push channel and degrades to polling the state endpoint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/realtime"
)

var errPushDisabled = errors.New("push channel disabled on server")

// Config controls the heartbeat, reconnect and polling behaviour of a Watcher.
type Config struct {
	BaseURL string
	Token   string

	PingInterval time.Duration
	PongTimeout  time.Duration
	BaseDelay    time.Duration
	Multiplier   float64
	MaxAttempts  int
	PollInterval time.Duration

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 10 * time.Second
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 1.5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// Watcher keeps the newest quiz snapshot it has seen.
type Watcher struct {
	cfg      Config
	log      *slog.Logger
	onUpdate func(domain.QuizSnapshot)

	mu     sync.Mutex
	latest domain.QuizSnapshot
	have   bool
}

// New returns a Watcher. onUpdate may be nil; it runs under the watcher's lock and
// must not call back into the Watcher.
func New(cfg Config, onUpdate func(domain.QuizSnapshot)) *Watcher {
	cfg = cfg.withDefaults()
	return &Watcher{
		cfg:      cfg,
		log:      cfg.Logger.With("component", "watcher"),
		onUpdate: onUpdate,
	}
}

// Latest returns the newest snapshot applied so far.
func (w *Watcher) Latest() (domain.QuizSnapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest, w.have
}

// Apply stores snapshot if it is newer than the current one. Snapshots are complete,
// so older or duplicate deliveries can be dropped without losing anything. Versions
// only order snapshots of the same epoch; a snapshot from another epoch means the
// server's state started over and always replaces the current one.
func (w *Watcher) Apply(snapshot domain.QuizSnapshot) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.have && snapshot.Epoch == w.latest.Epoch && snapshot.Version <= w.latest.Version {
		return false
	}
	w.latest, w.have = snapshot, true
	if w.onUpdate != nil {
		w.onUpdate(snapshot)
	}
	return true
}

// Run follows the quiz until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = w.cfg.BaseDelay
	expo.Multiplier = w.cfg.Multiplier
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(w.cfg.MaxAttempts)), ctx)

	err := backoff.RetryNotify(func() error {
		healthy, err := w.session(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if healthy {
			policy.Reset()
		}
		return err
	}, policy, func(err error, next time.Duration) {
		w.log.Warn("push channel lost, reconnecting", "error", err, "retry_in", next)
	})
	if ctx.Err() != nil {
		return nil
	}

	w.log.Warn("falling back to polling", "error", err, "interval", w.cfg.PollInterval)
	return w.pollLoop(ctx)
}

// session runs one websocket connection. healthy reports whether the server proved
// alive at least once, which restarts the reconnect budget.
func (w *Watcher) session(ctx context.Context) (bool, error) {
	header := http.Header{}
	if w.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+w.cfg.Token)
	}
	conn, resp, err := w.cfg.Dialer.DialContext(ctx, wsURL(w.cfg.BaseURL), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, backoff.Permanent(errPushDisabled)
		}
		return false, fmt.Errorf("%w: dial: %v", domain.ErrConnectionLost, err)
	}
	defer conn.Close()
	w.log.Info("push channel connected")

	var healthy atomic.Bool
	pongs := make(chan struct{}, 1)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var env realtime.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			healthy.Store(true)
			switch env.Type {
			case realtime.TypePong:
				select {
				case pongs <- struct{}{}:
				default:
				}
			case realtime.TypeStateUpdate:
				var snap domain.QuizSnapshot
				if err := json.Unmarshal(env.Payload, &snap); err == nil {
					w.Apply(snap)
				}
			}
		}
	}()

	ping := func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(w.cfg.PongTimeout))
		return conn.WriteJSON(realtime.Envelope{Type: realtime.TypePing, Timestamp: time.Now().UnixMilli()})
	}

	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	if err := ping(); err != nil {
		return false, fmt.Errorf("%w: ping: %v", domain.ErrConnectionLost, err)
	}
	timeout := time.After(w.cfg.PongTimeout)

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return healthy.Load(), ctx.Err()
		case err := <-readErr:
			return healthy.Load(), fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
		case <-pongs:
			timeout = nil
		case <-ticker.C:
			if err := ping(); err != nil {
				return healthy.Load(), fmt.Errorf("%w: ping: %v", domain.ErrConnectionLost, err)
			}
			if timeout == nil {
				timeout = time.After(w.cfg.PongTimeout)
			}
		case <-timeout:
			return healthy.Load(), fmt.Errorf("%w: no pong within %s", domain.ErrConnectionLost, w.cfg.PongTimeout)
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll pulls the current state once and applies it.
func (w *Watcher) Poll(ctx context.Context) (domain.QuizSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+"/api/quiz/state", nil)
	if err != nil {
		return domain.QuizSnapshot{}, err
	}
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	}
	resp, err := w.cfg.HTTPClient.Do(req)
	if err != nil {
		return domain.QuizSnapshot{}, fmt.Errorf("poll state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.QuizSnapshot{}, fmt.Errorf("poll state: unexpected status %d", resp.StatusCode)
	}

	var snap domain.QuizSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return domain.QuizSnapshot{}, fmt.Errorf("decode state: %w", err)
	}
	w.Apply(snap)
	return snap, nil
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}
