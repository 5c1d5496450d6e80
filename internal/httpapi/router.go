// Package httpapi exposes the operational HTTP surface: health probes,
// status, manual trigger, and a synthetic message dispatch endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/weeklyops/reportbot/internal/gateway"
	"github.com/weeklyops/reportbot/internal/report"
	"github.com/weeklyops/reportbot/internal/store"
)

type Store interface {
	Ping(ctx context.Context) error
	PendingTodos(ctx context.Context) ([]store.Todo, error)
}

type Reports interface {
	NextAnchor(from time.Time) time.Time
	GetOrCreate(ctx context.Context, anchor time.Time) *report.Artifact
	SendCard(ctx context.Context, anchor time.Time) bool
	IsSkipped(ctx context.Context, anchor time.Time) (bool, error)
}

type Gateway interface {
	HandleMessage(ctx context.Context, in gateway.MessageInput) gateway.Output
}

type Dependencies struct {
	Store         Store
	Reports       Reports
	Gateway       Gateway
	BotMentionKey string
	Logger        *slog.Logger
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("component", "httpapi")

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		anchor := deps.Reports.NextAnchor(time.Now())
		skipped, err := deps.Reports.IsSkipped(r.Context(), anchor)
		if err != nil {
			logger.Error("status skip lookup failed", "error", err)
		}
		todos, err := deps.Store.PendingTodos(r.Context())
		if err != nil {
			logger.Error("status todo lookup failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "todo lookup failed"})
			return
		}

		items := make([]map[string]any, 0, len(todos))
		for _, todo := range todos {
			items = append(items, map[string]any{"id": todo.ID, "content": todo.Content})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"next_report_date": report.WeekDate(anchor),
			"is_skipped":       skipped,
			"pending_todos":    len(todos),
			"todos":            items,
		})
	})

	mux.HandleFunc("POST /api/trigger", func(w http.ResponseWriter, r *http.Request) {
		anchor := deps.Reports.NextAnchor(time.Now())
		artifact := deps.Reports.GetOrCreate(r.Context(), anchor)
		if artifact == nil {
			writeJSON(w, http.StatusOK, map[string]any{"week": report.WeekDate(anchor), "created": false})
			return
		}
		sent := deps.Reports.SendCard(r.Context(), anchor)
		writeJSON(w, http.StatusOK, map[string]any{
			"week":    report.WeekDate(anchor),
			"created": true,
			"sent":    sent,
			"doc_url": artifact.URL,
		})
	})

	mux.HandleFunc("POST /api/dispatch", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text   string `json:"text"`
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if body.Text == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
			return
		}

		// Synthetic messages carry the bot mention so the gateway treats
		// them as addressed to the bot.
		in := gateway.MessageInput{
			MessageID:  uuid.NewString(),
			CreateTime: time.Now().UTC().Format(time.RFC3339Nano),
			FromUserID: body.UserID,
			Text:       deps.BotMentionKey + " " + body.Text,
			Mentions:   []gateway.Mention{{Key: deps.BotMentionKey, Name: "bot"}},
		}
		out := deps.Gateway.HandleMessage(r.Context(), in)
		writeJSON(w, http.StatusOK, map[string]any{"handled": out.Handled, "reply": out.Reply})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
