package user

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"go-predict/internal/apperr"
	"go-predict/internal/httpx"
	"go-predict/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// RequestCode handles POST /auth/request-code.
func (h *Handler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req RequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, r, apperr.Validation("invalid request body"))
		return
	}
	if err := h.service.RequestCode(r.Context(), req.Phone); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyCode handles POST /auth/verify.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, r, apperr.Validation("invalid request body"))
		return
	}
	res, err := h.service.VerifyCode(r.Context(), &req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Leaderboard handles GET /api/leaderboard?limit=&skip=.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", DefaultLimit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	page, err := h.service.Leaderboard(r.Context(), limit, skip)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

// GetUser handles GET /api/users/{id}. A missing user is a 404; any
// downstream failure (balance, rank, notification count) collapses into a
// generic 422 so ledger detail stays internal.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, r, apperr.Validation("invalid user id"))
		return
	}

	info, err := h.service.Info(r.Context(), id)
	if err != nil {
		if apperr.IsKind(err, apperr.KindInternal) {
			log.WithField("user_id", id).WithError(err).Error("user info lookup failed")
			httpx.JSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "could not load user info"})
			return
		}
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, info)
}

// GetTrades handles GET /api/users/{id}/trades. Only the user themselves
// or an admin may read a trade history.
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	selfID, _, admin, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, r, apperr.Validation("invalid user id"))
		return
	}
	if id != selfID && !admin {
		httpx.Error(w, r, apperr.Forbidden("not allowed to read another user's trades"))
		return
	}

	trades, err := h.service.Trades(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

// UpdateMe handles PUT /api/users/me.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	selfID, _, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, r, apperr.Validation("invalid request body"))
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), selfID, &req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

// ConfirmEmail handles GET /confirm-email?token=.
func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httpx.Error(w, r, apperr.Validation("token is required"))
		return
	}
	if err := h.service.ConfirmEmail(r.Context(), token); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"confirmed": true})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.Validation(name + " must be a non-negative integer")
	}
	return v, nil
}
