package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"

	"messenger-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	Create(ctx context.Context, roomID int, senderID int, senderName string, content string, isFile bool) (models.Message, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
	ListPage(ctx context.Context, roomID int, offset int, limit int) ([]models.Message, error)
	LastMessage(ctx context.Context, roomID int) (*models.Message, error)
	Edit(ctx context.Context, messageID int, content string, editedAt time.Time) (models.Message, error)
	SoftDelete(ctx context.Context, messageID int) error
}

// MessageRepo is the sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, room_id, sender_id, sender_name, content, is_file, is_deleted, created_at, edited_at`

// Create persists a message.
func (r *MessageRepo) Create(ctx context.Context, roomID int, senderID int, senderName string, content string, isFile bool) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (room_id, sender_id, sender_name, content, is_file)
         VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		roomID, senderID, senderName, content, isFile).StructScan(&msg)
	if err != nil {
		return models.Message{}, pkgerrors.Wrap(err, "insert message")
	}
	return msg, nil
}

// Get fetches a single message, deleted ones included so delete and edit
// checks can distinguish "gone" from "hidden".
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListPage returns one history page, newest first, deleted messages hidden.
func (r *MessageRepo) ListPage(ctx context.Context, roomID int, offset int, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE room_id=$1 AND is_deleted = FALSE
         ORDER BY created_at DESC, id DESC
         OFFSET $2 LIMIT $3`, roomID, offset, limit)
	return msgs, err
}

// LastMessage returns the room's newest visible message, or nil.
func (r *MessageRepo) LastMessage(ctx context.Context, roomID int) (*models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages
         WHERE room_id=$1 AND is_deleted = FALSE
         ORDER BY created_at DESC, id DESC LIMIT 1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Edit updates content and edited timestamp. Validation (author, window,
// kind) happens in the pipeline before this is called.
func (r *MessageRepo) Edit(ctx context.Context, messageID int, content string, editedAt time.Time) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET content=$1, edited_at=$2 WHERE id=$3 RETURNING `+messageColumns,
		content, editedAt, messageID).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, pkgerrors.Wrap(err, "update message")
	}
	return msg, nil
}

// SoftDelete flags the message deleted; content stays in the row.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return pkgerrors.Wrap(err, "soft delete message")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
