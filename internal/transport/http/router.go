// Package http exposes the quiz over a JSON API and the realtime websocket endpoint.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/metrics"
	"live-quiz-service/internal/realtime"
)

// Deps wires the router. Hub nil disables /ws; Feed nil disables long polling.
type Deps struct {
	Quiz      *app.QuizService
	Questions *app.QuestionService
	Accounts  *app.AccountService
	Tokens    TokenService
	Feed      *app.Feed
	Hub       *realtime.Hub
	Logger    *slog.Logger

	AllowedOrigins   []string
	AnswersPerMinute int
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	auth := &authHandler{accounts: d.Accounts, tokens: d.Tokens}
	quiz := &quizHandler{quiz: d.Quiz, feed: d.Feed}
	ledger := &ledgerHandler{quiz: d.Quiz}
	questions := &questionHandler{questions: d.Questions, quiz: d.Quiz}
	accounts := &accountHandler{accounts: d.Accounts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				loggerFrom(r.Context()).Warn("health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	// Without a hub /ws is left unrouted, so clients see 404 and poll instead.
	if d.Hub != nil {
		r.With(authenticate(d.Tokens)).Get("/ws", NewWSHandler(d.Quiz, d.Hub, origins).ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(d.Tokens))
			staff := requireRole(domain.RoleAdmin, domain.RoleSuperAdmin)
			superAdmin := requireRole(domain.RoleSuperAdmin)
			student := requireRole(domain.RoleStudent)

			r.Get("/auth/me", auth.Me)

			r.Route("/quiz", func(r chi.Router) {
				r.Get("/state", quiz.State)
				r.With(staff).Post("/start", quiz.Start)
				r.With(staff).Post("/complete", quiz.Complete)
				r.With(superAdmin).Post("/reset", quiz.Reset)
			})

			writes := []func(http.Handler) http.Handler{student}
			if d.AnswersPerMinute > 0 {
				writes = append(writes, httprate.Limit(d.AnswersPerMinute, time.Minute, httprate.WithKeyFuncs(accountKey)))
			}

			r.Route("/answers", func(r chi.Router) {
				r.Get("/", ledger.ListAnswers)
				r.With(writes...).Post("/", ledger.SubmitAnswer)
			})

			r.Route("/results", func(r chi.Router) {
				r.Get("/", ledger.ListResults)
				r.Get("/{accountId}", ledger.GetResult)
				r.With(writes...).Post("/", ledger.SubmitResult)
			})

			r.Route("/questions", func(r chi.Router) {
				r.Get("/", questions.List)
				r.Get("/{id}", questions.Get)
				r.With(staff).Post("/", questions.Create)
				r.With(staff).Put("/{id}", questions.Update)
				r.With(staff).Delete("/{id}", questions.Delete)
			})

			r.Route("/accounts", func(r chi.Router) {
				r.With(staff).Get("/", accounts.List)
				r.With(staff).Get("/{id}", accounts.Get)
				r.With(superAdmin).Post("/", accounts.Create)
				r.With(superAdmin).Put("/{id}", accounts.Update)
				r.With(superAdmin).Delete("/{id}", accounts.Delete)
			})
		})
	})

	return r
}
