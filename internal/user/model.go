package user

import "time"

type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	ProfilePicture string    `json:"profile_picture"`
	WalletAddress  string    `json:"wallet_address,omitempty"`
	Phone          string    `json:"-"`
	Email          string    `json:"email,omitempty"`
	Confirmed      bool      `json:"confirmed"`
	Admin          bool      `json:"admin"`
	AmountWon      float64   `json:"amount_won"`
	CreatedAt      time.Time `json:"created_at"`
}

type LeaderboardEntry struct {
	Username  string  `json:"username"`
	AmountWon float64 `json:"amount_won"`
}

type LeaderboardPage struct {
	Total int64              `json:"total"`
	Users []LeaderboardEntry `json:"users"`
	Limit int                `json:"limit"`
	Skip  int                `json:"skip"`
}

// Info is the user-detail response: profile plus the derived fields the web
// app shows next to it.
type Info struct {
	User
	Balance             string `json:"balance"`
	Rank                int64  `json:"rank"`
	UnreadNotifications int64  `json:"unread_notifications"`
}

type RequestCodeRequest struct {
	Phone string `json:"phone"`
}

type VerifyRequest struct {
	Phone    string `json:"phone"`
	Code     string `json:"code"`
	Username string `json:"username,omitempty"` // required on first login only
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int64  `json:"id"`
	Username    string `json:"username"`
}

// UpdateRequest uses pointers so absent fields stay untouched.
type UpdateRequest struct {
	Username       *string `json:"username,omitempty"`
	Name           *string `json:"name,omitempty"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
	WalletAddress  *string `json:"wallet_address,omitempty"`
	Email          *string `json:"email,omitempty"`
}
