package chat

import (
	"context"
	"database/sql"
	"errors"

	"go-predict/internal/apperr"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// LatestByRoom returns one page of a room's messages, newest first, each
// carrying a snapshot of its sender's current profile. The total is counted
// over the full matching set before the window is applied, so it stays the
// same whatever limit/skip the caller picks.
func (r *Repository) LatestByRoom(ctx context.Context, roomID int64, limit, skip int) (*Page, error) {
	var total int64
	countQuery := "SELECT COUNT(*) FROM chat_messages WHERE room_id = $1"
	if err := r.db.QueryRowContext(ctx, countQuery, roomID).Scan(&total); err != nil {
		return nil, apperr.Internal("failed to count room messages", err)
	}

	page := &Page{Total: total, Data: []*Message{}}
	if total == 0 || skip >= int(total) {
		return page, nil
	}

	query := `
		SELECT m.id, m.room_id, m.user_id, m.type, m.message, m.payload, m.date, m.read,
		       u.username, u.name, u.profile_picture
		FROM chat_messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1
		ORDER BY m.date DESC, m.id DESC
		OFFSET $2 LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, roomID, skip, limit)
	if err != nil {
		return nil, apperr.Internal("failed to query room messages", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg := &Message{}
		var payload []byte
		var read sql.NullTime
		var username, name, picture sql.NullString
		if err := rows.Scan(
			&msg.ID, &msg.RoomID, &msg.UserID, &msg.Type, &msg.Message,
			&payload, &msg.Date, &read,
			&username, &name, &picture,
		); err != nil {
			return nil, apperr.Internal("failed to scan room message", err)
		}
		msg.Payload = payload
		if read.Valid {
			t := read.Time
			msg.Read = &t
		}
		if username.Valid {
			msg.Sender = &Sender{
				Username:       username.String,
				Name:           name.String,
				ProfilePicture: picture.String,
			}
		}
		page.Data = append(page.Data, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("failed to read room messages", err)
	}
	return page, nil
}

// LatestByUser returns one page of a user's unread notifications, newest
// first. Only the whitelisted notification types qualify; room chat and
// already-read messages never appear. No sender join here.
func (r *Repository) LatestByUser(ctx context.Context, userID int64, limit, skip int) (*Page, error) {
	var total int64
	countQuery := `
		SELECT COUNT(*) FROM chat_messages
		WHERE user_id = $1 AND read IS NULL AND type IN ($2, $3, $4)
	`
	err := r.db.QueryRowContext(ctx, countQuery,
		userID, NotificationTypes[0], NotificationTypes[1], NotificationTypes[2],
	).Scan(&total)
	if err != nil {
		return nil, apperr.Internal("failed to count notifications", err)
	}

	page := &Page{Total: total, Data: []*Message{}}
	if total == 0 || skip >= int(total) {
		return page, nil
	}

	query := `
		SELECT id, room_id, user_id, type, message, payload, date
		FROM chat_messages
		WHERE user_id = $1 AND read IS NULL AND type IN ($2, $3, $4)
		ORDER BY date DESC, id DESC
		OFFSET $5 LIMIT $6
	`
	rows, err := r.db.QueryContext(ctx, query,
		userID, NotificationTypes[0], NotificationTypes[1], NotificationTypes[2],
		skip, limit,
	)
	if err != nil {
		return nil, apperr.Internal("failed to query notifications", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg := &Message{}
		var payload []byte
		if err := rows.Scan(
			&msg.ID, &msg.RoomID, &msg.UserID, &msg.Type, &msg.Message,
			&payload, &msg.Date,
		); err != nil {
			return nil, apperr.Internal("failed to scan notification", err)
		}
		msg.Payload = payload
		page.Data = append(page.Data, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("failed to read notifications", err)
	}
	return page, nil
}

// CountUnread counts a user's unread notifications without paging.
func (r *Repository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var total int64
	query := `
		SELECT COUNT(*) FROM chat_messages
		WHERE user_id = $1 AND read IS NULL AND type IN ($2, $3, $4)
	`
	err := r.db.QueryRowContext(ctx, query,
		userID, NotificationTypes[0], NotificationTypes[1], NotificationTypes[2],
	).Scan(&total)
	if err != nil {
		return 0, apperr.Internal("failed to count unread notifications", err)
	}
	return total, nil
}

// Create stores the record as given. Validation happens upstream.
func (r *Repository) Create(ctx context.Context, msg *Message) (*Message, error) {
	query := `
		INSERT INTO chat_messages (room_id, user_id, type, message, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, date
	`
	var payload interface{}
	if len(msg.Payload) > 0 {
		payload = []byte(msg.Payload)
	}
	err := r.db.QueryRowContext(ctx, query,
		msg.RoomID, msg.UserID, msg.Type, msg.Message, payload,
	).Scan(&msg.ID, &msg.Date)
	if err != nil {
		return nil, apperr.Internal("failed to create message", err)
	}
	return msg, nil
}

// Save writes the mutable fields of an existing message back to the store.
func (r *Repository) Save(ctx context.Context, msg *Message) error {
	query := `
		UPDATE chat_messages
		SET room_id = $2, user_id = $3, type = $4, message = $5, payload = $6, read = $7
		WHERE id = $1
	`
	var payload interface{}
	if len(msg.Payload) > 0 {
		payload = []byte(msg.Payload)
	}
	res, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.RoomID, msg.UserID, msg.Type, msg.Message, payload, msg.Read,
	)
	if err != nil {
		return apperr.Internal("failed to save message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal("failed to save message", err)
	}
	if n == 0 {
		return apperr.NotFound("message not found")
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Message, error) {
	msg := &Message{}
	var payload []byte
	var read sql.NullTime
	query := `
		SELECT id, room_id, user_id, type, message, payload, date, read
		FROM chat_messages WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.RoomID, &msg.UserID, &msg.Type, &msg.Message,
		&payload, &msg.Date, &read,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, apperr.Internal("failed to load message", err)
	}
	msg.Payload = payload
	if read.Valid {
		t := read.Time
		msg.Read = &t
	}
	return msg, nil
}

// MarkReadIfUnset stamps the read marker atomically. The WHERE clause makes
// the first successful call win; later calls affect no rows and report
// already=true.
func (r *Repository) MarkReadIfUnset(ctx context.Context, id int64) (already bool, err error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE chat_messages SET read = now() WHERE id = $1 AND read IS NULL", id)
	if err != nil {
		return false, apperr.Internal("failed to mark message read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal("failed to mark message read", err)
	}
	return n == 0, nil
}
