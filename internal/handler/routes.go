package handler

import (
	"net/http"

	"github.com/rs/zerolog"
)

// NewRouter assembles the API. Everything under /api requires an
// identity; /health does not.
func NewRouter(habits *HabitHandler, battles *BattleHandler, notifications *NotificationHandler, logger zerolog.Logger) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /api/habits", habits.Create)
	api.HandleFunc("GET /api/habits", habits.List)
	api.HandleFunc("GET /api/habits/{id}", habits.Get)
	api.HandleFunc("PUT /api/habits/{id}", habits.Update)
	api.HandleFunc("DELETE /api/habits/{id}", habits.Delete)
	api.HandleFunc("POST /api/habits/{id}/status", habits.MarkStatus)
	api.HandleFunc("POST /api/habits/{id}/note", habits.SetNote)

	api.HandleFunc("GET /api/dashboard", habits.Dashboard)
	api.HandleFunc("GET /api/user/stats", habits.Stats)
	api.HandleFunc("GET /api/progress/weekly", habits.Weekly)
	api.HandleFunc("GET /api/progress/heatmap", habits.Heatmap)

	api.HandleFunc("POST /api/battles", battles.Create)
	api.HandleFunc("GET /api/battles", battles.List)
	api.HandleFunc("GET /api/battles/{id}", battles.Get)
	api.HandleFunc("POST /api/battles/{id}/streak", battles.UpdateStreak)
	api.HandleFunc("POST /api/battles/{id}/sync", battles.Sync)
	api.HandleFunc("POST /api/battles/{id}/nudge", battles.Nudge)

	api.HandleFunc("GET /api/notifications", notifications.List)
	api.HandleFunc("POST /api/notifications/{id}/read", notifications.MarkRead)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", Health)
	root.Handle("/api/", RequireUser(api))

	return AccessLog(logger, root)
}
