package directory

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists rooms and memberships in PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "loom").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("directory: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("directory: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "loom"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("directory: nil pool")
	}
	return st, nil
}

// CreateRoom inserts a room row. A unique violation on the key column maps to
// ErrKeyConflict so the service can regenerate and retry.
func (s *PostgresStore) CreateRoom(ctx context.Context, room Room) error {
	if s == nil || s.pool == nil {
		return errors.New("directory: nil store")
	}
	if room.ID == "" || room.Key == "" || room.OwnerID == "" {
		return ErrValidation
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rooms := pgIdent(s.schema, "rooms")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+rooms+` (id, key, owner_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		room.ID, room.Key, room.OwnerID, room.CreatedAt,
	)
	if pgIsUniqueViolation(err) {
		return ErrKeyConflict
	}
	return err
}

// ResolveKey is the privileged key lookup. It returns exactly one room id or
// ErrRoomNotFound; no listing query exists on this store.
func (s *PostgresStore) ResolveKey(ctx context.Context, key string) (string, error) {
	if s == nil || s.pool == nil {
		return "", errors.New("directory: nil store")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrValidation
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rooms := pgIdent(s.schema, "rooms")

	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM `+rooms+` WHERE key = $1`,
		key,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrRoomNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddMembership inserts a membership row; a duplicate (room_id, user_id) is a
// no-op via ON CONFLICT DO NOTHING.
func (s *PostgresStore) AddMembership(ctx context.Context, m Membership) error {
	if s == nil || s.pool == nil {
		return errors.New("directory: nil store")
	}
	if m.RoomID == "" || m.UserID == "" {
		return ErrValidation
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	members := pgIdent(s.schema, "room_members")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+members+` (room_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (room_id, user_id) DO NOTHING`,
		m.RoomID, m.UserID, m.Role, m.CreatedAt,
	)
	return err
}

// GetRoom returns the room row only when userID is the owner or has a
// membership row. A non-member sees ErrRoomNotFound, not a permission error,
// to keep room existence unprobeable.
func (s *PostgresStore) GetRoom(ctx context.Context, roomID, userID string) (Room, error) {
	if s == nil || s.pool == nil {
		return Room{}, errors.New("directory: nil store")
	}
	roomID = strings.TrimSpace(roomID)
	userID = strings.TrimSpace(userID)
	if roomID == "" || userID == "" {
		return Room{}, ErrValidation
	}
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	rooms := pgIdent(s.schema, "rooms")
	members := pgIdent(s.schema, "room_members")

	var out Room
	err := s.pool.QueryRow(ctx,
		`SELECT r.id, r.key, r.owner_id, r.created_at
		   FROM `+rooms+` r
		  WHERE r.id = $1
		    AND (r.owner_id = $2
		         OR EXISTS (SELECT 1 FROM `+members+` m
		                     WHERE m.room_id = r.id AND m.user_id = $2))`,
		roomID, userID,
	).Scan(&out.ID, &out.Key, &out.OwnerID, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, err
	}
	return out, nil
}

// IsMember checks if userID is the owner of or a member of roomID.
func (s *PostgresStore) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("directory: nil store")
	}
	roomID = strings.TrimSpace(roomID)
	userID = strings.TrimSpace(userID)
	if roomID == "" || userID == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	rooms := pgIdent(s.schema, "rooms")
	members := pgIdent(s.schema, "room_members")

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1
		  WHERE EXISTS (SELECT 1 FROM `+rooms+` WHERE id = $1 AND owner_id = $2)
		     OR EXISTS (SELECT 1 FROM `+members+` WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
