package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"go-predict/internal/apperr"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// conflictFor translates a unique-index violation into the Conflict the
// caller can act on. The unique indexes replace the original
// check-then-write pattern, so duplicates are caught atomically at insert
// or update time.
func conflictFor(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "users_username_key":
		return apperr.Conflict("username already taken")
	case "users_phone_key":
		return apperr.Conflict("phone already registered")
	case "users_email_key":
		return apperr.Conflict("email already in use")
	case "users_wallet_address_key":
		return apperr.Conflict("wallet address already in use")
	}
	return apperr.Conflict("duplicate value")
}

const userColumns = `id, username, name, profile_picture, wallet_address, phone, email,
	confirmed, admin, amount_won, created_at`

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	var wallet, email sql.NullString
	err := row.Scan(
		&u.ID, &u.Username, &u.Name, &u.ProfilePicture, &wallet, &u.Phone, &email,
		&u.Confirmed, &u.Admin, &u.AmountWon, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.WalletAddress = wallet.String
	u.Email = email.String
	return u, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	query := `
		INSERT INTO users (username, name, profile_picture, wallet_address, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		u.Username, u.Name, u.ProfilePicture, nullable(u.WalletAddress), u.Phone, nullable(u.Email),
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if conflict := conflictFor(err); conflict != nil {
			return nil, conflict
		}
		return nil, apperr.Internal("failed to create user", err)
	}
	return u, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	return u, nil
}

func (r *Repository) GetByPhone(ctx context.Context, phone string) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE phone = $1"
	u, err := scanUser(r.db.QueryRowContext(ctx, query, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	return u, nil
}

func (r *Repository) Update(ctx context.Context, u *User) error {
	query := `
		UPDATE users
		SET username = $2, name = $3, profile_picture = $4, wallet_address = $5,
		    email = $6, confirmed = $7
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		u.ID, u.Username, u.Name, u.ProfilePicture, nullable(u.WalletAddress),
		nullable(u.Email), u.Confirmed,
	)
	if err != nil {
		if conflict := conflictFor(err); conflict != nil {
			return conflict
		}
		return apperr.Internal("failed to update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal("failed to update user", err)
	}
	if n == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// ConfirmEmail flips the confirmed flag, but only while the stored email
// still matches the one the confirmation token was minted for.
func (r *Repository) ConfirmEmail(ctx context.Context, id int64, email string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET confirmed = TRUE WHERE id = $1 AND email = $2", id, email)
	if err != nil {
		return apperr.Internal("failed to confirm email", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal("failed to confirm email", err)
	}
	if n == 0 {
		return apperr.Validation("confirmation link is no longer valid")
	}
	return nil
}

// Leaderboard returns one window of users ordered by winnings. The total
// counts all users so the page length is min(limit, total-skip).
func (r *Repository) Leaderboard(ctx context.Context, limit, skip int) (*LeaderboardPage, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return nil, apperr.Internal("failed to count users", err)
	}

	page := &LeaderboardPage{Total: total, Users: []LeaderboardEntry{}, Limit: limit, Skip: skip}
	if total == 0 || skip >= int(total) {
		return page, nil
	}

	query := `
		SELECT username, amount_won FROM users
		ORDER BY amount_won DESC, id ASC
		OFFSET $1 LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, skip, limit)
	if err != nil {
		return nil, apperr.Internal("failed to query leaderboard", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.AmountWon); err != nil {
			return nil, apperr.Internal("failed to scan leaderboard row", err)
		}
		page.Users = append(page.Users, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("failed to read leaderboard", err)
	}
	return page, nil
}

// Rank is 1 plus the number of users with strictly more winnings. Ties
// share a rank.
func (r *Repository) Rank(ctx context.Context, id int64) (int64, error) {
	var rank int64
	query := `
		SELECT 1 + COUNT(*) FROM users
		WHERE amount_won > (SELECT amount_won FROM users WHERE id = $1)
	`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&rank); err != nil {
		return 0, apperr.Internal("failed to compute rank", err)
	}
	return rank, nil
}
