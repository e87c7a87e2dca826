// Package postgres provides the PostgreSQL Store backend using pgx v5.
// Membership operations run in transactions with row locks so concurrent
// joins for a room's last slot resolve to exactly one winner.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/config"
	"github.com/blockduel/backend/internal/dbserver"
)

// Store implements dbserver.Store on a pgx connection pool.
type Store struct {
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// New creates a connected Store from the given configuration.
//
// Precondition: cfg must contain valid connection parameters.
// Postcondition: Returns a Store whose pool has been pinged, or a non-nil
// error.
func New(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{logger: logger, pool: pool}, nil
}

// NewFromPool wraps an existing pool, used by tests that manage their own
// container lifecycle.
func NewFromPool(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{logger: logger, pool: pool}
}

// Close releases all pool resources.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateUser(ctx context.Context, username, password string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, password) VALUES ($1, $2)`,
		username, password,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return dbserver.ErrUserExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (dbserver.UserRecord, error) {
	var u dbserver.UserRecord
	err := s.pool.QueryRow(ctx,
		`SELECT username, password, online, current_room_id, wins, losses
		 FROM users WHERE username = $1`,
		username,
	).Scan(&u.Username, &u.Password, &u.Online, &u.CurrentRoomID, &u.Wins, &u.Losses)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dbserver.UserRecord{}, dbserver.ErrUserNotFound
		}
		return dbserver.UserRecord{}, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

func (s *Store) SetUserOnline(ctx context.Context, username string, online bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET online = $2 WHERE username = $1`,
		username, online,
	)
	if err != nil {
		return fmt.Errorf("updating user presence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dbserver.ErrUserNotFound
	}
	return nil
}

func (s *Store) ListAvailableUsers(ctx context.Context) ([]dbserver.UserRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT username, password, online, current_room_id, wins, losses
		 FROM users
		 WHERE online AND current_room_id IS NULL
		 ORDER BY username`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying available users: %w", err)
	}
	defer rows.Close()

	var out []dbserver.UserRecord
	for rows.Next() {
		var u dbserver.UserRecord
		if err = rows.Scan(&u.Username, &u.Password, &u.Online, &u.CurrentRoomID, &u.Wins, &u.Losses); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CreateRoom allocates the smallest unused integer id under an advisory
// lock, so concurrent creates never collide on an id.
//
// Postcondition: The owner's current_room_id points at the new room.
func (s *Store) CreateRoom(ctx context.Context, owner string, settings map[string]any) (dbserver.RoomRecord, error) {
	var room dbserver.RoomRecord
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := lockUser(ctx, tx, owner)
		if err != nil {
			return err
		}
		if current != nil {
			return dbserver.ErrAlreadyInRoom
		}

		if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('rooms'))`); err != nil {
			return fmt.Errorf("acquiring room id lock: %w", err)
		}
		id, err := smallestUnusedID(ctx, tx)
		if err != nil {
			return err
		}

		if settings == nil {
			settings = map[string]any{}
		}
		raw, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("encoding room settings: %w", err)
		}
		if _, err = tx.Exec(ctx,
			`INSERT INTO rooms (id, owner, settings) VALUES ($1, $2, $3)`,
			id, owner, raw,
		); err != nil {
			return fmt.Errorf("inserting room: %w", err)
		}
		if err = placeUser(ctx, tx, id, owner); err != nil {
			return err
		}

		room, err = readRoom(ctx, tx, id)
		return err
	})
	return room, err
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (dbserver.RoomRecord, error) {
	var room dbserver.RoomRecord
	err := s.withTx(ctx, func(tx pgx.Tx) (err error) {
		room, err = readRoom(ctx, tx, roomID)
		return err
	})
	return room, err
}

func (s *Store) ListRooms(ctx context.Context) ([]dbserver.RoomRecord, error) {
	var rooms []dbserver.RoomRecord
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// Ids are string-rendered integers; order by value, not lexically.
		rows, err := tx.Query(ctx, `SELECT id FROM rooms ORDER BY id::bigint`)
		if err != nil {
			return fmt.Errorf("querying rooms: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err = rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scanning room id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err = rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			room, err := readRoom(ctx, tx, id)
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	return rooms, err
}

// AddUserToRoom serializes on the room row, so of two users racing for the
// last slot exactly one commits.
func (s *Store) AddUserToRoom(ctx context.Context, roomID, username string) (dbserver.RoomRecord, error) {
	var room dbserver.RoomRecord
	err := s.withTx(ctx, func(tx pgx.Tx) (err error) {
		room, err = addUser(ctx, tx, roomID, username)
		return err
	})
	return room, err
}

func (s *Store) AddUserToMemberRoom(ctx context.Context, invitee, inviter string) (dbserver.RoomRecord, error) {
	var room dbserver.RoomRecord
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		hostRoom, err := lockUser(ctx, tx, inviter)
		if err != nil {
			if errors.Is(err, dbserver.ErrUserNotFound) {
				return dbserver.ErrRoomNotFound
			}
			return err
		}
		if hostRoom == nil {
			return dbserver.ErrRoomNotFound
		}
		room, err = addUser(ctx, tx, *hostRoom, invitee)
		return err
	})
	return room, err
}

func (s *Store) RemoveUserFromRoom(ctx context.Context, roomID, username string) (dbserver.RoomRecord, error) {
	var room dbserver.RoomRecord
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockRoom(ctx, tx, roomID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM room_members WHERE room_id = $1 AND username = $2`,
			roomID, username,
		)
		if err != nil {
			return fmt.Errorf("removing room member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return dbserver.ErrNotInRoom
		}
		if _, err = tx.Exec(ctx,
			`UPDATE users SET current_room_id = NULL WHERE username = $1`,
			username,
		); err != nil {
			return fmt.Errorf("clearing user room: %w", err)
		}

		members, err := roomMembers(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			if _, err = tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
				return fmt.Errorf("deleting empty room: %w", err)
			}
			room = dbserver.RoomRecord{ID: roomID, Users: []string{}}
			return nil
		}

		// Ownership follows the earliest surviving member.
		if _, err = tx.Exec(ctx,
			`UPDATE rooms SET owner = $2 WHERE id = $1`,
			roomID, members[0],
		); err != nil {
			return fmt.Errorf("transferring room ownership: %w", err)
		}
		room, err = readRoom(ctx, tx, roomID)
		return err
	})
	return room, err
}

func (s *Store) DeleteRoom(ctx context.Context, roomID string) (dbserver.RoomRecord, error) {
	var room dbserver.RoomRecord
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockRoom(ctx, tx, roomID); err != nil {
			return err
		}
		var err error
		room, err = readRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}

		if _, err = tx.Exec(ctx,
			`UPDATE users SET current_room_id = NULL WHERE current_room_id = $1`,
			roomID,
		); err != nil {
			return fmt.Errorf("clearing member rooms: %w", err)
		}
		if _, err = tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
			return fmt.Errorf("deleting room: %w", err)
		}
		return nil
	})
	return room, err
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// lockUser locks the user's row and returns their current room id.
func lockUser(ctx context.Context, tx pgx.Tx, username string) (*string, error) {
	var current *string
	err := tx.QueryRow(ctx,
		`SELECT current_room_id FROM users WHERE username = $1 FOR UPDATE`,
		username,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dbserver.ErrUserNotFound
		}
		return nil, fmt.Errorf("locking user: %w", err)
	}
	return current, nil
}

// lockRoom locks the room's row so membership changes serialize.
func lockRoom(ctx context.Context, tx pgx.Tx, roomID string) error {
	var id string
	err := tx.QueryRow(ctx,
		`SELECT id FROM rooms WHERE id = $1 FOR UPDATE`,
		roomID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dbserver.ErrRoomNotFound
		}
		return fmt.Errorf("locking room: %w", err)
	}
	return nil
}

func addUser(ctx context.Context, tx pgx.Tx, roomID, username string) (dbserver.RoomRecord, error) {
	current, err := lockUser(ctx, tx, username)
	if err != nil {
		return dbserver.RoomRecord{}, err
	}
	if current != nil {
		return dbserver.RoomRecord{}, dbserver.ErrAlreadyInRoom
	}
	if err = lockRoom(ctx, tx, roomID); err != nil {
		return dbserver.RoomRecord{}, err
	}

	members, err := roomMembers(ctx, tx, roomID)
	if err != nil {
		return dbserver.RoomRecord{}, err
	}
	if len(members) >= 2 {
		return dbserver.RoomRecord{}, dbserver.ErrRoomFull
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO room_members (room_id, username) VALUES ($1, $2)`,
		roomID, username,
	); err != nil {
		return dbserver.RoomRecord{}, fmt.Errorf("inserting room member: %w", err)
	}
	if err = placeUser(ctx, tx, roomID, username); err != nil {
		return dbserver.RoomRecord{}, err
	}
	return readRoom(ctx, tx, roomID)
}

func placeUser(ctx context.Context, tx pgx.Tx, roomID, username string) error {
	if _, err := tx.Exec(ctx,
		`UPDATE users SET current_room_id = $2 WHERE username = $1`,
		username, roomID,
	); err != nil {
		return fmt.Errorf("setting user room: %w", err)
	}
	return nil
}

func roomMembers(ctx context.Context, tx pgx.Tx, roomID string) ([]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT username FROM room_members WHERE room_id = $1 ORDER BY joined_at`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying room members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var username string
		if err = rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("scanning room member: %w", err)
		}
		members = append(members, username)
	}
	return members, rows.Err()
}

func readRoom(ctx context.Context, tx pgx.Tx, roomID string) (dbserver.RoomRecord, error) {
	var (
		room dbserver.RoomRecord
		raw  []byte
	)
	err := tx.QueryRow(ctx,
		`SELECT id, owner, settings FROM rooms WHERE id = $1`,
		roomID,
	).Scan(&room.ID, &room.Owner, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dbserver.RoomRecord{}, dbserver.ErrRoomNotFound
		}
		return dbserver.RoomRecord{}, fmt.Errorf("querying room: %w", err)
	}
	if err = json.Unmarshal(raw, &room.Settings); err != nil {
		return dbserver.RoomRecord{}, fmt.Errorf("decoding room settings: %w", err)
	}

	room.Users, err = roomMembers(ctx, tx, roomID)
	return room, err
}

// smallestUnusedID returns the lowest non-negative integer, as text, not
// naming a room. Caller holds the advisory room id lock.
func smallestUnusedID(ctx context.Context, tx pgx.Tx) (string, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM rooms`)
	if err != nil {
		return "", fmt.Errorf("querying room ids: %w", err)
	}
	defer rows.Close()

	taken := make(map[int]struct{})
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scanning room id: %w", err)
		}
		if n, convErr := strconv.Atoi(id); convErr == nil {
			taken[n] = struct{}{}
		}
	}
	if err = rows.Err(); err != nil {
		return "", err
	}

	for i := 0; ; i++ {
		if _, ok := taken[i]; !ok {
			return strconv.Itoa(i), nil
		}
	}
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
