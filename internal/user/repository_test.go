package user

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-predict/internal/apperr"
)

func TestLeaderboardPaging(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	countRE := regexp.QuoteMeta("SELECT COUNT(*) FROM users")

	mock.ExpectQuery(countRE).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("ORDER BY amount_won DESC").WithArgs(0, 2).
		WillReturnRows(sqlmock.NewRows([]string{"username", "amount_won"}).
			AddRow("alice", 320.5).
			AddRow("bob", 120.0))

	page, err := repo.Leaderboard(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Users, 2)
	assert.Equal(t, "alice", page.Users[0].Username)
	assert.Equal(t, 320.5, page.Users[0].AmountWon)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 0, page.Skip)

	// A window past the end keeps the total but runs no row query.
	mock.ExpectQuery(countRE).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	page, err = repo.Leaderboard(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Empty(t, page.Users)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRank(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery("SELECT 1 \\+ COUNT").WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"rank"}).AddRow(4))

	rank, err := repo.Rank(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rank)
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	_, err = repo.Create(context.Background(), &User{Username: "alice", Phone: "+15550001111"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "username already taken", apperr.Public(err))
}

func TestUpdateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectExec("UPDATE users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err = repo.Update(context.Background(), &User{ID: 1, Username: "alice", Email: "a@b.c"})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "email already in use", apperr.Public(err))
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery("FROM users WHERE id").WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetByID(context.Background(), 404)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestGetByPhoneScansNullableFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "username", "name", "profile_picture", "wallet_address", "phone",
		"email", "confirmed", "admin", "amount_won", "created_at",
	}).AddRow(7, "alice", "", "", nil, "+15550001111", nil, false, false, 0.0, time.Now())

	mock.ExpectQuery("FROM users WHERE phone").WithArgs("+15550001111").
		WillReturnRows(rows)

	u, err := repo.GetByPhone(context.Background(), "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Empty(t, u.WalletAddress)
	assert.Empty(t, u.Email)
}

func TestConfirmEmailStaleLink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectExec("SET confirmed = TRUE").WithArgs(int64(7), "old@b.c").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.ConfirmEmail(context.Background(), 7, "old@b.c")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
