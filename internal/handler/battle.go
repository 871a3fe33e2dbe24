package handler

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"rehabit-server/internal/model"
	"rehabit-server/internal/service"
)

// BattleHandler serves the streak battle endpoints.
type BattleHandler struct {
	battles    *service.BattleService
	reconciler *service.Reconciler
	logger     zerolog.Logger
}

// NewBattleHandler creates a new BattleHandler instance.
func NewBattleHandler(battles *service.BattleService, reconciler *service.Reconciler, logger zerolog.Logger) *BattleHandler {
	return &BattleHandler{battles: battles, reconciler: reconciler, logger: logger}
}

// battleResponse decorates a battle with per-participant render-time
// fields the stored state deliberately omits.
type battleResponse struct {
	*model.Battle
	DaysRemaining int            `json:"daysRemaining"`
	DisplayBonus  map[string]int `json:"displayBonus"`
}

func (h *BattleHandler) render(b *model.Battle) battleResponse {
	bonus := make(map[string]int, len(b.Participants))
	for _, p := range b.Participants {
		bonus[p.UserID] = h.battles.DisplayBonus(b, p.UserID)
	}
	return battleResponse{
		Battle:        b,
		DaysRemaining: h.battles.DaysRemaining(b),
		DisplayBonus:  bonus,
	}
}

type createBattleRequest struct {
	OpponentUsername string `json:"opponentUsername"`
	HabitLabel       string `json:"habitLabel"`
	Duration         int    `json:"duration"`
	Stake            int    `json:"stake"`
}

// POST /api/battles
func (h *BattleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.HabitLabel = strings.TrimSpace(req.HabitLabel)
	if req.HabitLabel == "" {
		writeError(w, http.StatusBadRequest, "habitLabel is required")
		return
	}
	if req.OpponentUsername == "" {
		writeError(w, http.StatusBadRequest, "opponentUsername is required")
		return
	}

	b, err := h.battles.Create(r.Context(), userID(r), req.OpponentUsername, req.HabitLabel, req.Duration, req.Stake)
	if err != nil {
		h.logger.Error().Err(err).Msg("create battle")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.render(b))
}

// GET /api/battles
func (h *BattleHandler) List(w http.ResponseWriter, r *http.Request) {
	battles, err := h.battles.ListActive(r.Context(), userID(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("list battles")
		writeServiceError(w, err)
		return
	}
	out := make([]battleResponse, 0, len(battles))
	for _, b := range battles {
		out = append(out, h.render(b))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/battles/{id}
func (h *BattleHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.battles.Get(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.render(b))
}

type streakRequest struct {
	Completed bool `json:"completed"`
}

// POST /api/battles/{id}/streak
//
// The direct daily action. A repeat for the same day is a 409;
// corrections go through the sync endpoint.
func (h *BattleHandler) UpdateStreak(w http.ResponseWriter, r *http.Request) {
	var req streakRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	b, err := h.battles.UpdateStreak(r.Context(), r.PathValue("id"), userID(r), req.Completed)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.render(b))
}

// POST /api/battles/{id}/sync
//
// Idempotent: replaying the same completion state converges, and a
// changed state becomes a same-day correction.
func (h *BattleHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req streakRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	b, err := h.reconciler.SyncBattle(r.Context(), r.PathValue("id"), userID(r), req.Completed)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.render(b))
}

// POST /api/battles/{id}/nudge
func (h *BattleHandler) Nudge(w http.ResponseWriter, r *http.Request) {
	if err := h.battles.Nudge(r.Context(), r.PathValue("id"), userID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "nudged"})
}
