package chat

import (
	"context"

	"go-predict/internal/apperr"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Store is what the service needs from the repository. *Repository
// implements it; tests substitute a stub.
type Store interface {
	LatestByRoom(ctx context.Context, roomID int64, limit, skip int) (*Page, error)
	LatestByUser(ctx context.Context, userID int64, limit, skip int) (*Page, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	Create(ctx context.Context, msg *Message) (*Message, error)
	Save(ctx context.Context, msg *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	MarkReadIfUnset(ctx context.Context, id int64) (bool, error)
}

// Broadcaster fans a stored message out to live room subscribers. Delivery
// is best-effort; the store remains the source of truth.
type Broadcaster interface {
	BroadcastMessage(msg *Message)
}

type Service struct {
	store Store
	hub   Broadcaster
}

func NewService(store Store, hub Broadcaster) *Service {
	return &Service{store: store, hub: hub}
}

func clampWindow(limit, skip int) (int, int, error) {
	if limit < 0 || skip < 0 {
		return 0, 0, apperr.Validation("limit and skip must be non-negative")
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, skip, nil
}

func (s *Service) LatestByRoom(ctx context.Context, roomID int64, limit, skip int) (*Page, error) {
	if roomID <= 0 {
		return nil, apperr.Validation("invalid room id")
	}
	limit, skip, err := clampWindow(limit, skip)
	if err != nil {
		return nil, err
	}
	return s.store.LatestByRoom(ctx, roomID, limit, skip)
}

func (s *Service) LatestByUser(ctx context.Context, userID int64, limit, skip int) (*Page, error) {
	if userID <= 0 {
		return nil, apperr.Validation("invalid user id")
	}
	limit, skip, err := clampWindow(limit, skip)
	if err != nil {
		return nil, err
	}
	return s.store.LatestByUser(ctx, userID, limit, skip)
}

func (s *Service) CountUnread(ctx context.Context, userID int64) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

// Create stores a message authored by the requester and fans it out to live
// subscribers of its room.
func (s *Service) Create(ctx context.Context, req *CreateRequest, from Requester) (*Message, error) {
	if req.RoomID <= 0 {
		return nil, apperr.Validation("invalid room id")
	}
	msgType := req.Type
	if msgType == "" {
		msgType = TypeMessage
	}
	if msgType != TypeMessage && !IsNotificationType(msgType) {
		return nil, apperr.Validation("unknown message type")
	}
	if IsNotificationType(msgType) && !from.Admin {
		return nil, apperr.Forbidden("only admins may create notifications")
	}

	msg := &Message{
		RoomID:  req.RoomID,
		UserID:  from.ID,
		Type:    msgType,
		Message: req.Message,
		Payload: req.Payload,
	}
	stored, err := s.store.Create(ctx, msg)
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.BroadcastMessage(stored)
	}
	return stored, nil
}

func (s *Service) Save(ctx context.Context, msg *Message) error {
	return s.store.Save(ctx, msg)
}

// SetRead stamps a message's read marker. Only the message's owner or an
// admin may do this. A message already marked keeps its original timestamp;
// the repeated call still succeeds.
func (s *Service) SetRead(ctx context.Context, messageID int64, from Requester) error {
	msg, err := s.store.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if !from.Admin && msg.UserID != from.ID {
		return apperr.Forbidden("not allowed to mark this message read")
	}
	_, err = s.store.MarkReadIfUnset(ctx, messageID)
	return err
}
