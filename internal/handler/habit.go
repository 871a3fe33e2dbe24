package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"rehabit-server/internal/pkg/datekey"
	"rehabit-server/internal/service"
)

// HabitHandler serves the habit CRUD and progress views.
type HabitHandler struct {
	habits *service.HabitService
	today  func() datekey.Key
	logger zerolog.Logger
}

// NewHabitHandler creates a new HabitHandler instance.
func NewHabitHandler(habits *service.HabitService, today func() datekey.Key, logger zerolog.Logger) *HabitHandler {
	return &HabitHandler{habits: habits, today: today, logger: logger}
}

type habitRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Frequency   string            `json:"frequency"`
	Color       string            `json:"color"`
	StartDate   string            `json:"startDate"`
	EndDate     string            `json:"endDate"`
	History     map[string]string `json:"history,omitempty"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// parseDay validates an optional date field; empty falls back to def.
func parseDay(s string, def datekey.Key) (datekey.Key, bool) {
	if s == "" {
		return def, true
	}
	day, err := datekey.Parse(s)
	if err != nil {
		return "", false
	}
	return day, true
}

func toKeyMap(in map[string]string) (map[datekey.Key]string, bool) {
	if in == nil {
		return nil, true
	}
	out := make(map[datekey.Key]string, len(in))
	for k, v := range in {
		day, err := datekey.Parse(k)
		if err != nil {
			return nil, false
		}
		out[day] = v
	}
	return out, true
}

// POST /api/habits
func (h *HabitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	start, ok := parseDay(req.StartDate, "")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid startDate")
		return
	}
	end, ok := parseDay(req.EndDate, "")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid endDate")
		return
	}

	habit, err := h.habits.Create(r.Context(), userID(r), service.CreateHabitInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Frequency:   req.Frequency,
		Color:       req.Color,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("create habit")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

// GET /api/habits
func (h *HabitHandler) List(w http.ResponseWriter, r *http.Request) {
	habits, err := h.habits.List(r.Context(), userID(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("list habits")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habits)
}

// GET /api/habits/{id}
func (h *HabitHandler) Get(w http.ResponseWriter, r *http.Request) {
	habit, err := h.habits.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// PUT /api/habits/{id}
func (h *HabitHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	start, ok := parseDay(req.StartDate, "")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid startDate")
		return
	}
	end, ok := parseDay(req.EndDate, "")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid endDate")
		return
	}
	history, ok := toKeyMap(req.History)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid history key")
		return
	}
	notes, ok := toKeyMap(req.Notes)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid notes key")
		return
	}

	habit, err := h.habits.Update(r.Context(), userID(r), r.PathValue("id"), service.UpdateHabitInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Frequency:   req.Frequency,
		Color:       req.Color,
		StartDate:   start,
		EndDate:     end,
		History:     history,
		Notes:       notes,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("update habit")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// DELETE /api/habits/{id}
func (h *HabitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.habits.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type markRequest struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

// POST /api/habits/{id}/status
func (h *HabitHandler) MarkStatus(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	day, ok := parseDay(req.Date, h.today())
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	habit, err := h.habits.MarkStatus(r.Context(), userID(r), r.PathValue("id"), day, req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

type noteRequest struct {
	Date string `json:"date"`
	Text string `json:"text"`
}

// POST /api/habits/{id}/note
func (h *HabitHandler) SetNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	day, ok := parseDay(req.Date, h.today())
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	if err := h.habits.RecordNote(r.Context(), userID(r), r.PathValue("id"), day, req.Text); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// GET /api/dashboard?date=YYYY-MM-DD
func (h *HabitHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	day, ok := parseDay(r.URL.Query().Get("date"), h.today())
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	stats, err := h.habits.Dashboard(r.Context(), userID(r), day)
	if err != nil {
		h.logger.Error().Err(err).Msg("dashboard")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":       stats.Day,
		"completed":  stats.Done,
		"total":      stats.Total,
		"percentage": stats.Percentage(),
		"habits":     stats.Habits,
	})
}

// GET /api/user/stats
func (h *HabitHandler) Stats(w http.ResponseWriter, r *http.Request) {
	streakDays, habitCount, err := h.habits.Stats(r.Context(), userID(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("user stats")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"streak":     streakDays,
		"habitCount": habitCount,
	})
}

// GET /api/progress/weekly?end=YYYY-MM-DD
func (h *HabitHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	end, ok := parseDay(r.URL.Query().Get("end"), h.today())
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}

	series, err := h.habits.Weekly(r.Context(), userID(r), end)
	if err != nil {
		h.logger.Error().Err(err).Msg("weekly progress")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// GET /api/progress/heatmap?year=2024
func (h *HabitHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	year := h.today().Time(nil).Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = y
	}

	cells, longest, err := h.habits.HeatmapYear(r.Context(), userID(r), year)
	if err != nil {
		h.logger.Error().Err(err).Msg("heatmap")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":          year,
		"cells":         cells,
		"longestStreak": longest,
	})
}
