package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"

	"messenger-service/internal/models"
)

// ReadStatusRepository tracks per-(user, message) read markers.
type ReadStatusRepository interface {
	// FanOut creates one unread row per member for the message. Each
	// insert is an independent failure domain: the first error is
	// returned together with the members already written.
	FanOut(ctx context.Context, messageID int, memberIDs []int) (written []int, err error)
	MarkRoomRead(ctx context.Context, userID int, roomID int, readAt time.Time) (int64, error)
	UnreadCountForRoom(ctx context.Context, userID int, roomID int) (int, error)
	UnreadByRoom(ctx context.Context, userID int) ([]models.RoomUnread, error)
	TotalUnread(ctx context.Context, userID int) (int, error)
}

// ReadStatusRepo is the sqlx implementation of ReadStatusRepository.
type ReadStatusRepo struct {
	db *sqlx.DB
}

// NewReadStatusRepo constructs a ReadStatusRepo.
func NewReadStatusRepo(db *sqlx.DB) *ReadStatusRepo {
	return &ReadStatusRepo{db: db}
}

// FanOut inserts unread markers one by one; a failing member does not
// roll back the ones already written, the caller logs and carries on.
func (r *ReadStatusRepo) FanOut(ctx context.Context, messageID int, memberIDs []int) ([]int, error) {
	written := make([]int, 0, len(memberIDs))
	for _, userID := range memberIDs {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO read_statuses (user_id, message_id, is_read) VALUES ($1, $2, FALSE)
             ON CONFLICT (user_id, message_id) DO NOTHING`, userID, messageID)
		if err != nil {
			return written, pkgerrors.Wrapf(err, "insert read status for user %d", userID)
		}
		written = append(written, userID)
	}
	return written, nil
}

// MarkRoomRead flips all of the user's unread markers in the room and
// reports how many were flipped. Strictly retroactive.
func (r *ReadStatusRepo) MarkRoomRead(ctx context.Context, userID int, roomID int, readAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE read_statuses rs SET is_read = TRUE, read_at = $1
         FROM messages m
         WHERE m.id = rs.message_id AND rs.user_id = $2 AND m.room_id = $3 AND rs.is_read = FALSE`,
		readAt, userID, roomID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "mark room read")
	}
	return res.RowsAffected()
}

// UnreadCountForRoom counts the user's unread markers in one room.
func (r *ReadStatusRepo) UnreadCountForRoom(ctx context.Context, userID int, roomID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM read_statuses rs
         INNER JOIN messages m ON m.id = rs.message_id
         WHERE rs.user_id=$1 AND m.room_id=$2 AND rs.is_read = FALSE AND m.is_deleted = FALSE`,
		userID, roomID)
	return count, err
}

// UnreadByRoom returns the user's unread counts grouped by room.
func (r *ReadStatusRepo) UnreadByRoom(ctx context.Context, userID int) ([]models.RoomUnread, error) {
	var rows []models.RoomUnread
	err := r.db.SelectContext(ctx, &rows,
		`SELECT m.room_id AS room_id, COUNT(*) AS count FROM read_statuses rs
         INNER JOIN messages m ON m.id = rs.message_id
         INNER JOIN rooms r ON r.id = m.room_id
         WHERE rs.user_id=$1 AND rs.is_read = FALSE AND m.is_deleted = FALSE AND r.is_deleted = FALSE
         GROUP BY m.room_id`, userID)
	return rows, err
}

// TotalUnread counts the user's unread markers across all live rooms.
func (r *ReadStatusRepo) TotalUnread(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM read_statuses rs
         INNER JOIN messages m ON m.id = rs.message_id
         INNER JOIN rooms r ON r.id = m.room_id
         WHERE rs.user_id=$1 AND rs.is_read = FALSE AND m.is_deleted = FALSE AND r.is_deleted = FALSE`,
		userID)
	return count, err
}
