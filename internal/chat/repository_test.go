package chat

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-predict/internal/apperr"
)

var roomColumns = []string{
	"id", "room_id", "user_id", "type", "message", "payload", "date", "read",
	"username", "name", "profile_picture",
}

func roomRows(n int, startID int64) *sqlmock.Rows {
	rows := sqlmock.NewRows(roomColumns)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		id := startID - int64(i)
		rows.AddRow(id, 1, 42, TypeMessage, fmt.Sprintf("msg %d", id), nil,
			base.Add(-time.Duration(i)*time.Minute), nil, "alice", "Alice", "a.png")
	}
	return rows
}

func TestLatestByRoomPaging(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	countRE := regexp.QuoteMeta("SELECT COUNT(*) FROM chat_messages WHERE room_id = $1")

	// 150 stored messages, first window of 100.
	mock.ExpectQuery(countRE).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(150))
	mock.ExpectQuery("LEFT JOIN users").WithArgs(int64(1), 0, 100).
		WillReturnRows(roomRows(100, 150))

	page, err := repo.LatestByRoom(context.Background(), 1, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(150), page.Total)
	assert.Len(t, page.Data, 100)

	// Second window: 50 remain.
	mock.ExpectQuery(countRE).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(150))
	mock.ExpectQuery("LEFT JOIN users").WithArgs(int64(1), 100, 100).
		WillReturnRows(roomRows(50, 50))

	page, err = repo.LatestByRoom(context.Background(), 1, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(150), page.Total)
	assert.Len(t, page.Data, 50)

	// Window past the end: total still reported, no row query issued.
	mock.ExpectQuery(countRE).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(150))

	page, err = repo.LatestByRoom(context.Background(), 1, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(150), page.Total)
	assert.Empty(t, page.Data)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestByRoomEmptyRoom(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM chat_messages WHERE room_id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	page, err := repo.LatestByRoom(context.Background(), 9, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestByRoomDeletedSender(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	rows := sqlmock.NewRows(roomColumns).
		AddRow(7, 1, 42, TypeMessage, "hello", []byte(`{"a":1}`),
			time.Now(), nil, "alice", "Alice", "a.png").
		AddRow(6, 1, 99, TypeMessage, "ghost", nil,
			time.Now(), nil, nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("LEFT JOIN users").WillReturnRows(rows)

	page, err := repo.LatestByRoom(context.Background(), 1, 100, 0)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)

	require.NotNil(t, page.Data[0].Sender)
	assert.Equal(t, "alice", page.Data[0].Sender.Username)
	assert.JSONEq(t, `{"a":1}`, string(page.Data[0].Payload))

	// The author of the second message no longer exists.
	assert.Nil(t, page.Data[1].Sender)
}

func TestLatestByUserFiltersByWhitelist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	countRE := regexp.QuoteMeta("WHERE user_id = $1 AND read IS NULL AND type IN ($2, $3, $4)")
	mock.ExpectQuery(countRE).
		WithArgs(int64(42), TypeTrade, TypePayout, TypeMarketResolved).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := sqlmock.NewRows([]string{"id", "room_id", "user_id", "type", "message", "payload", "date"}).
		AddRow(3, 1, 42, TypePayout, "you won", []byte(`{"amount":"12.5"}`), time.Now())
	mock.ExpectQuery("read IS NULL").
		WithArgs(int64(42), TypeTrade, TypePayout, TypeMarketResolved, 0, 100).
		WillReturnRows(rows)

	page, err := repo.LatestByUser(context.Background(), 42, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, TypePayout, page.Data[0].Type)
	assert.Nil(t, page.Data[0].Read)
	assert.Nil(t, page.Data[0].Sender)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery("FROM chat_messages WHERE id").WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(roomColumns[:8]))

	_, err = repo.GetByID(context.Background(), 404)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestMarkReadIfUnset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	updateRE := regexp.QuoteMeta("UPDATE chat_messages SET read = now() WHERE id = $1 AND read IS NULL")

	mock.ExpectExec(updateRE).WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	already, err := repo.MarkReadIfUnset(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, already)

	// Second call matches no rows: the original timestamp survives.
	mock.ExpectExec(updateRE).WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	already, err = repo.MarkReadIfUnset(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, already)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMissingMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectExec("UPDATE chat_messages").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Save(context.Background(), &Message{ID: 999, RoomID: 1, UserID: 1, Type: TypeMessage})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCreateReturnsStoredRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO chat_messages").
		WithArgs(int64(1), int64(42), TypeMessage, "hi", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "date"}).AddRow(11, now))

	msg, err := repo.Create(context.Background(), &Message{
		RoomID: 1, UserID: 42, Type: TypeMessage, Message: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), msg.ID)
	assert.Equal(t, now, msg.Date)
}
