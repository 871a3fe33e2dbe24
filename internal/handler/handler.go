// Package handler implements the HTTP API. Handlers decode the
// request, call a service, and encode the result; the auth
// collaborator in front of the server supplies the user identity via
// the X-User-ID header.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"rehabit-server/internal/pkg/lock"
	"rehabit-server/internal/repository"
	"rehabit-server/internal/service"
)

const userIDHeader = "X-User-ID"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, out any) error {
	return json.NewDecoder(r.Body).Decode(out)
}

// writeServiceError maps service sentinels onto HTTP statuses.
// Unrecognized errors become opaque 500s; the caller logs the detail.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrHabitNotFound),
		errors.Is(err, service.ErrBattleNotFound),
		errors.Is(err, repository.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotOwner),
		errors.Is(err, service.ErrNotAParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrAlreadyUpdatedToday):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidDateRange),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrSelfBattle):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lock.ErrLockTimeout):
		writeError(w, http.StatusServiceUnavailable, "try again later")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// userID pulls the authenticated user from the request. An empty
// return means RequireUser already rejected the request.
func userID(r *http.Request) string {
	return r.Header.Get(userIDHeader)
}

// RequireUser rejects requests that arrive without an identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(userIDHeader) == "" {
			writeError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AccessLog logs one line per request.
func AccessLog(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Health reports liveness.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
