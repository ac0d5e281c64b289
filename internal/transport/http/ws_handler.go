package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/realtime"
)

type WSHandler struct {
	quiz     *app.QuizService
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(quiz *app.QuizService, hub *realtime.Hub, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		quiz: quiz,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// ServeWS upgrades an authenticated request and hands the connection to the hub, which
// sends the current snapshot first and every later transition after it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	snap, err := h.quiz.State(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		loggerFrom(r.Context()).Warn("ws upgrade failed", "error", err)
		return
	}
	h.hub.Serve(conn, snap, principalFrom(r.Context()))
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
