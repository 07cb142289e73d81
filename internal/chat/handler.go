package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"go-predict/internal/apperr"
	"go-predict/internal/httpx"
	"go-predict/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict to the web app origin before exposing publicly
	},
}

type Handler struct {
	service *Service
	hub     *Hub
}

func NewHandler(service *Service, hub *Hub) *Handler {
	return &Handler{service: service, hub: hub}
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

func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, apperr.Validation(name + " must be a positive integer")
	}
	return v, nil
}

// GetRoomMessages handles GET /api/chat/messages?roomId=&limit=&skip=.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := queryID(r, "roomId")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if roomID == 0 {
		httpx.Error(w, r, apperr.Validation("roomId is required"))
		return
	}
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

	page, err := h.service.LatestByRoom(r.Context(), roomID, limit, skip)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

// GetNotifications handles GET /api/chat/notifications. Without a userId
// parameter it returns the session user's unread notifications; reading
// another user's requires admin.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	selfID, _, admin, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := queryID(r, "userId")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if userID == 0 {
		userID = selfID
	}
	if userID != selfID && !admin {
		httpx.Error(w, r, apperr.Forbidden("not allowed to read another user's notifications"))
		return
	}

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

	page, err := h.service.LatestByUser(r.Context(), userID, limit, skip)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

// CreateMessage handles POST /api/chat/messages.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	selfID, _, admin, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, r, apperr.Validation("invalid request body"))
		return
	}

	msg, err := h.service.Create(r.Context(), &req, Requester{ID: selfID, Admin: admin})
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, msg)
}

// SetRead handles POST /api/chat/messages/{id}/read. Success has no body.
func (h *Handler) SetRead(w http.ResponseWriter, r *http.Request) {
	selfID, _, admin, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, r, apperr.Validation("invalid message id"))
		return
	}

	if err := h.service.SetRead(r.Context(), id, Requester{ID: selfID, Admin: admin}); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeWs upgrades GET /ws?roomId= to a websocket subscribed to one room.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, _, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, err := queryID(r, "roomId")
	if err != nil || roomID == 0 {
		httpx.Error(w, r, apperr.Validation("roomId is required"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:    h.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		roomID: roomID,
	}
	h.hub.Register <- client

	go client.writePump()
	go client.readPump()
}
