package chat

import (
	"encoding/json"
	"time"
)

// Message type values. TypeMessage is ordinary room chat; the rest are
// user-directed notifications.
const (
	TypeMessage        = "message"
	TypeTrade          = "trade"
	TypePayout         = "payout"
	TypeMarketResolved = "market_resolved"
)

// NotificationTypes is the fixed whitelist used by the unread-notification
// query. Room chat is deliberately not in it.
var NotificationTypes = [3]string{TypeTrade, TypePayout, TypeMarketResolved}

func IsNotificationType(t string) bool {
	for _, nt := range NotificationTypes {
		if t == nt {
			return true
		}
	}
	return false
}

// Sender is the denormalized snapshot of a message's author, joined in at
// read time so it always reflects the current profile.
type Sender struct {
	Username       string `json:"username"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture"`
}

type Message struct {
	ID      int64           `json:"id"`
	RoomID  int64           `json:"room_id"`
	UserID  int64           `json:"user_id"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Date    time.Time       `json:"date"`
	Read    *time.Time      `json:"read,omitempty"`

	// Sender is populated by room queries only. Nil when the author's
	// account no longer exists.
	Sender *Sender `json:"sender,omitempty"`
}

// Page is one window of a paginated query. Total counts the full matching
// set, independent of the window requested.
type Page struct {
	Total int64      `json:"total"`
	Data  []*Message `json:"data"`
}

// Requester carries the identity fields the read-state authorization rule
// needs.
type Requester struct {
	ID    int64
	Admin bool
}

// CreateRequest is the JSON body for posting a room message.
type CreateRequest struct {
	RoomID  int64           `json:"room_id"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
