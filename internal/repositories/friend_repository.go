package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"

	"messenger-service/internal/models"
)

var (
	ErrRequestNotFound = errors.New("friend request not found")
	ErrRequestExists   = errors.New("friend request already exists")
)

// FriendRepository persists the directed friend-request graph.
type FriendRepository interface {
	SendRequest(ctx context.Context, fromUserID int, toUserID int) (models.FriendLink, error)
	GetRequest(ctx context.Context, requestID int) (models.FriendLink, error)
	AcceptRequest(ctx context.Context, requestID int, toUserID int) (models.FriendLink, error)
	// DeleteRequest removes a pending request; used by both reject
	// (requester = recipient) and cancel (requester = sender).
	DeleteRequest(ctx context.Context, requestID int, userID int) (models.FriendLink, error)
	AreFriends(ctx context.Context, userID int, otherID int) (bool, error)
	FriendIDs(ctx context.Context, userID int) ([]int, error)
	PendingFor(ctx context.Context, userID int) ([]models.FriendLink, error)
	PendingCount(ctx context.Context, userID int) (int, error)
}

// FriendRepo is the sqlx implementation of FriendRepository.
type FriendRepo struct {
	db *sqlx.DB
}

// NewFriendRepo constructs a FriendRepo.
func NewFriendRepo(db *sqlx.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

const friendColumns = `id, from_user_id, to_user_id, is_accepted, created_at`

// SendRequest creates a pending directed request, unique per ordered pair.
// A request already open in either direction is ErrRequestExists.
func (r *FriendRepo) SendRequest(ctx context.Context, fromUserID int, toUserID int) (models.FriendLink, error) {
	if fromUserID == toUserID {
		return models.FriendLink{}, errors.New("cannot friend yourself")
	}

	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM friend_links
         WHERE (from_user_id=$1 AND to_user_id=$2) OR (from_user_id=$2 AND to_user_id=$1))`,
		fromUserID, toUserID)
	if err != nil {
		return models.FriendLink{}, pkgerrors.Wrap(err, "check existing request")
	}
	if exists {
		return models.FriendLink{}, ErrRequestExists
	}

	var link models.FriendLink
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO friend_links (from_user_id, to_user_id) VALUES ($1, $2) RETURNING `+friendColumns,
		fromUserID, toUserID).StructScan(&link)
	if err != nil {
		return models.FriendLink{}, pkgerrors.Wrap(err, "insert friend request")
	}
	return link, nil
}

// GetRequest fetches one request by id.
func (r *FriendRepo) GetRequest(ctx context.Context, requestID int) (models.FriendLink, error) {
	var link models.FriendLink
	err := r.db.GetContext(ctx, &link,
		`SELECT `+friendColumns+` FROM friend_links WHERE id=$1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendLink{}, ErrRequestNotFound
	}
	return link, err
}

// AcceptRequest flips a pending request addressed to toUserID.
func (r *FriendRepo) AcceptRequest(ctx context.Context, requestID int, toUserID int) (models.FriendLink, error) {
	var link models.FriendLink
	err := r.db.QueryRowxContext(ctx,
		`UPDATE friend_links SET is_accepted = TRUE
         WHERE id=$1 AND to_user_id=$2 AND is_accepted = FALSE RETURNING `+friendColumns,
		requestID, toUserID).StructScan(&link)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendLink{}, ErrRequestNotFound
	}
	if err != nil {
		return models.FriendLink{}, pkgerrors.Wrap(err, "accept friend request")
	}
	return link, nil
}

// DeleteRequest removes a pending request the user is party to.
func (r *FriendRepo) DeleteRequest(ctx context.Context, requestID int, userID int) (models.FriendLink, error) {
	var link models.FriendLink
	err := r.db.QueryRowxContext(ctx,
		`DELETE FROM friend_links
         WHERE id=$1 AND is_accepted = FALSE AND (from_user_id=$2 OR to_user_id=$2)
         RETURNING `+friendColumns,
		requestID, userID).StructScan(&link)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendLink{}, ErrRequestNotFound
	}
	if err != nil {
		return models.FriendLink{}, pkgerrors.Wrap(err, "delete friend request")
	}
	return link, nil
}

// AreFriends reports an accepted link in either direction.
func (r *FriendRepo) AreFriends(ctx context.Context, userID int, otherID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM friend_links
         WHERE is_accepted = TRUE
         AND ((from_user_id=$1 AND to_user_id=$2) OR (from_user_id=$2 AND to_user_id=$1)))`,
		userID, otherID)
	return exists, err
}

// FriendIDs lists the user's friends, both directions merged.
func (r *FriendRepo) FriendIDs(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT CASE WHEN from_user_id=$1 THEN to_user_id ELSE from_user_id END AS friend_id
         FROM friend_links WHERE is_accepted = TRUE AND (from_user_id=$1 OR to_user_id=$1)
         ORDER BY friend_id ASC`, userID)
	return ids, err
}

// PendingFor returns requests waiting on the user.
func (r *FriendRepo) PendingFor(ctx context.Context, userID int) ([]models.FriendLink, error) {
	var links []models.FriendLink
	err := r.db.SelectContext(ctx, &links,
		`SELECT `+friendColumns+` FROM friend_links
         WHERE to_user_id=$1 AND is_accepted = FALSE ORDER BY created_at DESC`, userID)
	return links, err
}

// PendingCount counts requests waiting on the user.
func (r *FriendRepo) PendingCount(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM friend_links WHERE to_user_id=$1 AND is_accepted = FALSE`, userID)
	return count, err
}
