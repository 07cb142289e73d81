package user

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"go-predict/internal/apperr"
	"go-predict/internal/middleware"
	"go-predict/internal/wallet"
)

const (
	codeTTL     = 5 * time.Minute
	rankTTL     = 30 * time.Second
	tokenIssuer = "go-predict"
	tokenTTL    = 24 * time.Hour
	confirmTTL  = 48 * time.Hour

	DefaultLimit = 100
	MaxLimit     = 500
)

var phoneRE = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

// Store is what the service needs from the repository.
type Store interface {
	Create(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	Update(ctx context.Context, u *User) error
	ConfirmEmail(ctx context.Context, id int64, email string) error
	Leaderboard(ctx context.Context, limit, skip int) (*LeaderboardPage, error)
	Rank(ctx context.Context, id int64) (int64, error)
}

// KV holds verification-code hashes and short-lived rank snapshots.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Ledger is the token-ledger collaborator.
type Ledger interface {
	Balance(ctx context.Context, address string) (string, error)
	Transactions(ctx context.Context, address string) ([]wallet.Transaction, error)
}

type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notifications is satisfied by the chat service; it feeds the unread count
// on the user-info response.
type Notifications interface {
	CountUnread(ctx context.Context, userID int64) (int64, error)
}

// Limiter throttles verification-code requests per phone number.
type Limiter interface {
	Allow(key string) bool
}

type Service struct {
	repo          Store
	kv            KV
	ledger        Ledger
	sms           CodeSender
	mailer        Mailer
	notifications Notifications
	codeLimiter   Limiter
	jwtSecret     string
	publicBaseURL string
}

func NewService(
	repo Store,
	kv KV,
	ledger Ledger,
	sms CodeSender,
	mailer Mailer,
	codeLimiter Limiter,
	jwtSecret, publicBaseURL string,
) *Service {
	return &Service{
		repo:          repo,
		kv:            kv,
		ledger:        ledger,
		sms:           sms,
		mailer:        mailer,
		codeLimiter:   codeLimiter,
		jwtSecret:     jwtSecret,
		publicBaseURL: publicBaseURL,
	}
}

// SetNotifications wires the chat service in after construction; the two
// services reference each other so one side has to be late-bound.
func (s *Service) SetNotifications(n Notifications) { s.notifications = n }

type sessionClaims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
	jwt.RegisteredClaims
}

type confirmClaims struct {
	Purpose string `json:"purpose"`
	Email   string `json:"email"`
	UserID  int64  `json:"user_id"`
	jwt.RegisteredClaims
}

// ---------------------------------------------------------------------------
// Phone authentication
// ---------------------------------------------------------------------------

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// RequestCode sends a six-digit verification code to the phone. Only the
// bcrypt hash of the code is stored, with a five-minute TTL.
func (s *Service) RequestCode(ctx context.Context, phone string) error {
	if !phoneRE.MatchString(phone) {
		return apperr.Validation("phone must be in E.164 format")
	}
	if !s.codeLimiter.Allow(phone) {
		return apperr.Validation("too many code requests, try again later")
	}

	code, err := generateCode()
	if err != nil {
		return apperr.Internal("failed to generate verification code", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal("failed to hash verification code", err)
	}
	if err := s.kv.Set(ctx, "verify:"+phone, string(hash), codeTTL); err != nil {
		return apperr.Internal("failed to store verification code", err)
	}
	if err := s.sms.SendCode(ctx, phone, code); err != nil {
		return apperr.Internal("failed to send verification code", err)
	}
	return nil
}

// VerifyCode checks the code, creates the account on first login, and
// issues a session token.
func (s *Service) VerifyCode(ctx context.Context, req *VerifyRequest) (*LoginResponse, error) {
	if !phoneRE.MatchString(req.Phone) {
		return nil, apperr.Validation("phone must be in E.164 format")
	}

	key := "verify:" + req.Phone
	hash, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, apperr.Internal("failed to load verification code", err)
	}
	if !ok {
		return nil, apperr.Validation("invalid or expired code")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Code)) != nil {
		return nil, apperr.Validation("invalid or expired code")
	}
	if err := s.kv.Del(ctx, key); err != nil {
		log.WithError(err).Warn("failed to delete used verification code")
	}

	u, err := s.repo.GetByPhone(ctx, req.Phone)
	if apperr.IsKind(err, apperr.KindNotFound) {
		if req.Username == "" {
			return nil, apperr.Validation("username is required for first login")
		}
		if !usernameRE.MatchString(req.Username) {
			return nil, apperr.Validation("username must be 3-24 characters of letters, digits or underscore")
		}
		u, err = s.repo.Create(ctx, &User{Username: req.Username, Phone: req.Phone})
	}
	if err != nil {
		return nil, err
	}

	token, err := s.issueToken(u)
	if err != nil {
		return nil, apperr.Internal("failed to sign session token", err)
	}
	return &LoginResponse{AccessToken: token, ID: u.ID, Username: u.Username}, nil
}

func (s *Service) issueToken(u *User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		ID:       u.ID,
		Username: u.Username,
		Admin:    u.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	})
	return token.SignedString([]byte(s.jwtSecret))
}

// ValidateToken implements middleware.TokenValidator.
func (s *Service) ValidateToken(tokenString string) (int64, string, bool, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, "", false, fmt.Errorf("invalid token: %w", err)
	}
	return claims.ID, claims.Username, claims.Admin, nil
}

var _ middleware.TokenValidator = (*Service)(nil)

// ---------------------------------------------------------------------------
// Profile, leaderboard, info
// ---------------------------------------------------------------------------

func (s *Service) Leaderboard(ctx context.Context, limit, skip int) (*LeaderboardPage, error) {
	if limit < 0 || skip < 0 {
		return nil, apperr.Validation("limit and skip must be non-negative")
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return s.repo.Leaderboard(ctx, limit, skip)
}

func (s *Service) rank(ctx context.Context, id int64) (int64, error) {
	key := fmt.Sprintf("rank:%d", id)
	if cached, ok, err := s.kv.Get(ctx, key); err == nil && ok {
		var rank int64
		if _, err := fmt.Sscanf(cached, "%d", &rank); err == nil {
			return rank, nil
		}
	}

	rank, err := s.repo.Rank(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.kv.Set(ctx, key, fmt.Sprintf("%d", rank), rankTTL); err != nil {
		log.WithError(err).Warn("failed to cache rank")
	}
	return rank, nil
}

// Info assembles the user-detail response. A missing user is NotFound;
// balance, rank and notification-count failures are Internal and the
// handler reports them with one generic message.
func (s *Service) Info(ctx context.Context, id int64) (*Info, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	info := &Info{User: *u, Balance: "0"}

	if u.WalletAddress != "" {
		balance, err := s.ledger.Balance(ctx, u.WalletAddress)
		if err != nil {
			return nil, err
		}
		info.Balance = balance
	}

	rank, err := s.rank(ctx, id)
	if err != nil {
		return nil, err
	}
	info.Rank = rank

	if s.notifications != nil {
		unread, err := s.notifications.CountUnread(ctx, id)
		if err != nil {
			return nil, err
		}
		info.UnreadNotifications = unread
	}
	return info, nil
}

// Trades proxies the user's trade history from the token ledger. Users
// without a wallet have an empty history.
func (s *Service) Trades(ctx context.Context, id int64) ([]wallet.Transaction, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.WalletAddress == "" {
		return []wallet.Transaction{}, nil
	}
	return s.ledger.Transactions(ctx, u.WalletAddress)
}

// UpdateProfile applies the fields present in the request. Changing the
// email clears the confirmed flag and sends a fresh confirmation mail.
func (s *Service) UpdateProfile(ctx context.Context, id int64, req *UpdateRequest) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Username != nil {
		if !usernameRE.MatchString(*req.Username) {
			return nil, apperr.Validation("username must be 3-24 characters of letters, digits or underscore")
		}
		u.Username = *req.Username
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.ProfilePicture != nil {
		u.ProfilePicture = *req.ProfilePicture
	}
	if req.WalletAddress != nil {
		u.WalletAddress = *req.WalletAddress
	}

	emailChanged := false
	if req.Email != nil && *req.Email != u.Email {
		u.Email = *req.Email
		u.Confirmed = false
		emailChanged = u.Email != ""
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}

	if emailChanged {
		if err := s.sendConfirmationMail(ctx, u); err != nil {
			// The profile update already succeeded; the user can re-trigger
			// the mail by saving the email again.
			log.WithError(err).WithField("user_id", u.ID).Warn("failed to send confirmation mail")
		}
	}
	return u, nil
}

func (s *Service) sendConfirmationMail(ctx context.Context, u *User) error {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, confirmClaims{
		Purpose: "confirm_email",
		Email:   u.Email,
		UserID:  u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(confirmTTL)),
		},
	})
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return err
	}

	link := s.publicBaseURL + "/confirm-email?token=" + signed
	body := "Hi " + u.Username + ",\n\nConfirm your email address by opening:\n" + link + "\n"
	return s.mailer.Send(ctx, u.Email, "Confirm your email", body)
}

// ConfirmEmail validates a confirmation token and marks the address
// confirmed, unless the email changed again since the mail went out.
func (s *Service) ConfirmEmail(ctx context.Context, tokenString string) error {
	claims := &confirmClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid || claims.Purpose != "confirm_email" {
		return apperr.Validation("invalid confirmation token")
	}
	return s.repo.ConfirmEmail(ctx, claims.UserID, claims.Email)
}
