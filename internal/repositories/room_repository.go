package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"

	"messenger-service/internal/models"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrAlreadyMember = errors.New("already a member")
	ErrNotMember     = errors.New("not a member")
)

// RoomRepository abstracts room and membership persistence. Membership
// transitions that must not interleave (kick vs. leave on the same room)
// run inside transactions holding the room row lock.
type RoomRepository interface {
	GetOrCreatePrivate(ctx context.Context, userID int, friendID int) (models.Room, bool, error)
	CreateGroup(ctx context.Context, adminID int, name string, memberIDs []int) (models.Room, error)
	GetRoom(ctx context.Context, roomID int) (models.Room, error)
	GetRoomByUID(ctx context.Context, roomUID string) (models.Room, error)
	ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error)
	IsMember(ctx context.Context, roomID int, userID int) (bool, error)
	MemberIDs(ctx context.Context, roomID int) ([]int, error)
	CoMemberIDs(ctx context.Context, userID int) ([]int, error)
	AddMember(ctx context.Context, roomID int, userID int) error
	KickMember(ctx context.Context, roomID int, userID int) error
	LeaveGroup(ctx context.Context, roomID int, userID int) (newAdminID *int, roomDeleted bool, err error)
	TransferAdmin(ctx context.Context, roomID int, newAdminID int) error
	SoftDeleteRoom(ctx context.Context, roomID int) error
}

// RoomRepo is the sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, room_uid, name, kind, admin_id, is_deleted, created_at`

// GetOrCreatePrivate returns the private room for the pair, creating room,
// pairing record and both memberships atomically when absent. The pair is
// canonicalized by id order so argument order never matters.
func (r *RoomRepo) GetOrCreatePrivate(ctx context.Context, userID int, friendID int) (models.Room, bool, error) {
	if userID == friendID {
		return models.Room{}, false, errors.New("cannot create private room with self")
	}
	pair := []int{userID, friendID}
	sort.Ints(pair)
	userA, userB := pair[0], pair[1]

	var room models.Room
	query := `SELECT r.id, r.room_uid, r.name, r.kind, r.admin_id, r.is_deleted, r.created_at
        FROM rooms r INNER JOIN private_pairs p ON p.room_id = r.id
        WHERE p.user_a=$1 AND p.user_b=$2 AND r.is_deleted = FALSE`
	err := r.db.GetContext(ctx, &room, query, userA, userB)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, false, pkgerrors.Wrap(err, "lookup private pair")
	}

	room, err = r.createPrivatePair(ctx, userA, userB)
	if err != nil {
		// A concurrent caller can win the insert between our lookup and
		// our commit; the pair constraint flags it, their room stands.
		if isUniqueViolation(err) {
			if err := r.db.GetContext(ctx, &room, query, userA, userB); err != nil {
				return models.Room{}, false, pkgerrors.Wrap(err, "lookup private pair after conflict")
			}
			return room, false, nil
		}
		return models.Room{}, false, err
	}
	return room, true, nil
}

func (r *RoomRepo) createPrivatePair(ctx context.Context, userA, userB int) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, pkgerrors.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room models.Room
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO rooms (room_uid, name, kind) VALUES ($1, $2, 'private') RETURNING `+roomColumns,
		uuid.NewString(), privateRoomName(userA, userB)).StructScan(&room); err != nil {
		return models.Room{}, pkgerrors.Wrap(err, "insert private room")
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO private_pairs (room_id, user_a, user_b) VALUES ($1, $2, $3)`,
		room.ID, userA, userB); err != nil {
		return models.Room{}, pkgerrors.Wrap(err, "insert private pair")
	}
	for _, id := range []int{userA, userB} {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, id); err != nil {
			return models.Room{}, pkgerrors.Wrap(err, "insert member")
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, pkgerrors.Wrap(err, "commit private room")
	}
	return room, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func privateRoomName(userA, userB int) string {
	return fmt.Sprintf("private_%d_%d", userA, userB)
}

// CreateGroup creates a group room with its admin and deduplicated member
// set in one transaction.
func (r *RoomRepo) CreateGroup(ctx context.Context, adminID int, name string, memberIDs []int) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, pkgerrors.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room models.Room
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO rooms (room_uid, name, kind, admin_id) VALUES ($1, $2, 'group', $3) RETURNING `+roomColumns,
		uuid.NewString(), name, adminID).StructScan(&room); err != nil {
		return models.Room{}, pkgerrors.Wrap(err, "insert group room")
	}

	memberSet := map[int]struct{}{adminID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, id); err != nil {
			return models.Room{}, pkgerrors.Wrap(err, "insert member")
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, pkgerrors.Wrap(err, "commit group room")
	}
	return room, nil
}

// GetRoom fetches a live room by id. Deleted rooms read as not found.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT `+roomColumns+` FROM rooms WHERE id=$1 AND is_deleted = FALSE`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// GetRoomByUID fetches a live room by its external uid.
func (r *RoomRepo) GetRoomByUID(ctx context.Context, roomUID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT `+roomColumns+` FROM rooms WHERE room_uid=$1 AND is_deleted = FALSE`, roomUID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// ListRoomsForUser returns the user's live rooms, newest first.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT r.id, r.room_uid, r.name, r.kind, r.admin_id, r.is_deleted, r.created_at
         FROM rooms r INNER JOIN room_members rm ON rm.room_id = r.id
         WHERE rm.user_id=$1 AND r.is_deleted = FALSE
         ORDER BY r.created_at DESC`, userID)
	return rooms, err
}

// IsMember checks current membership against a live room.
func (r *RoomRepo) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(
            SELECT 1 FROM room_members rm INNER JOIN rooms r ON r.id = rm.room_id
            WHERE rm.room_id=$1 AND rm.user_id=$2 AND r.is_deleted = FALSE)`, roomID, userID)
	return exists, err
}

// MemberIDs returns the room's member ids ordered ascending.
func (r *RoomRepo) MemberIDs(ctx context.Context, roomID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM room_members WHERE room_id=$1 ORDER BY user_id ASC`, roomID)
	return ids, err
}

// CoMemberIDs returns the distinct set of other users sharing any live
// room with the user. Feeds the presence fan-out.
func (r *RoomRepo) CoMemberIDs(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT DISTINCT rm2.user_id
         FROM room_members rm1
         INNER JOIN room_members rm2 ON rm2.room_id = rm1.room_id
         INNER JOIN rooms r ON r.id = rm1.room_id
         WHERE rm1.user_id=$1 AND rm2.user_id<>$1 AND r.is_deleted = FALSE
         ORDER BY rm2.user_id ASC`, userID)
	return ids, err
}

// AddMember inserts a membership row; an existing row is ErrAlreadyMember.
func (r *RoomRepo) AddMember(ctx context.Context, roomID int, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)
         ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, userID)
	if err != nil {
		return pkgerrors.Wrap(err, "insert member")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrAlreadyMember
	}
	return nil
}

// KickMember removes a membership row under the room lock.
func (r *RoomRepo) KickMember(ctx context.Context, roomID int, userID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockRoom(ctx, tx, roomID); err != nil {
		return err
	}
	var res sql.Result
	res, err = tx.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if err != nil {
		return pkgerrors.Wrap(err, "delete member")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		err = ErrNotMember
		return err
	}
	return tx.Commit()
}

// LeaveGroup removes the member and, in the same transaction, reassigns
// admin rights to the lowest remaining member id or deletes the room when
// nobody is left.
func (r *RoomRepo) LeaveGroup(ctx context.Context, roomID int, userID int) (*int, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, pkgerrors.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room models.Room
	err = tx.GetContext(ctx, &room,
		`SELECT `+roomColumns+` FROM rooms WHERE id=$1 AND is_deleted = FALSE FOR UPDATE`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrRoomNotFound
		return nil, false, err
	}
	if err != nil {
		return nil, false, pkgerrors.Wrap(err, "lock room")
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(err, "delete member")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if count == 0 {
		err = ErrNotMember
		return nil, false, err
	}

	var remaining []int
	if err = tx.SelectContext(ctx, &remaining,
		`SELECT user_id FROM room_members WHERE room_id=$1 ORDER BY user_id ASC`, roomID); err != nil {
		return nil, false, pkgerrors.Wrap(err, "list remaining members")
	}

	if len(remaining) == 0 {
		if err = softDeleteRoomTx(ctx, tx, roomID); err != nil {
			return nil, false, err
		}
		if err = tx.Commit(); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	var newAdminID *int
	if room.IsAdmin(userID) {
		candidate := remaining[0]
		if _, err = tx.ExecContext(ctx,
			`UPDATE rooms SET admin_id=$1 WHERE id=$2`, candidate, roomID); err != nil {
			return nil, false, pkgerrors.Wrap(err, "reassign admin")
		}
		newAdminID = &candidate
	}

	if err = tx.Commit(); err != nil {
		return nil, false, err
	}
	return newAdminID, false, nil
}

// TransferAdmin reassigns group admin rights.
func (r *RoomRepo) TransferAdmin(ctx context.Context, roomID int, newAdminID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET admin_id=$1 WHERE id=$2 AND is_deleted = FALSE`, newAdminID, roomID)
	if err != nil {
		return pkgerrors.Wrap(err, "update admin")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// SoftDeleteRoom flags the room deleted and cascades a soft delete to its
// messages in one transaction.
func (r *RoomRepo) SoftDeleteRoom(ctx context.Context, roomID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = softDeleteRoomTx(ctx, tx, roomID); err != nil {
		return err
	}
	return tx.Commit()
}

func softDeleteRoomTx(ctx context.Context, tx *sqlx.Tx, roomID int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE rooms SET is_deleted = TRUE WHERE id=$1 AND is_deleted = FALSE`, roomID)
	if err != nil {
		return pkgerrors.Wrap(err, "soft delete room")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET is_deleted = TRUE WHERE room_id=$1`, roomID); err != nil {
		return pkgerrors.Wrap(err, "soft delete room messages")
	}
	return nil
}

func lockRoom(ctx context.Context, tx *sqlx.Tx, roomID int) error {
	var id int
	err := tx.GetContext(ctx, &id,
		`SELECT id FROM rooms WHERE id=$1 AND is_deleted = FALSE FOR UPDATE`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoomNotFound
	}
	if err != nil {
		return pkgerrors.Wrap(err, "lock room")
	}
	return nil
}
