package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uww-saigusa/messageboard/internal/domain"
	"github.com/uww-saigusa/messageboard/internal/repository"
)

const uniqueViolation = "23505"

// Repository implements repository.Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.Store   = (*Repository)(nil)
	_ repository.Session = (*session)(nil)
)

// querier is the part of *pgxpool.Conn a session needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Session acquires one pooled connection for the duration of fn.
func (r *Repository) Session(ctx context.Context, fn func(repository.Session) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	return fn(&session{q: conn})
}

// Ping checks database reachability.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type session struct {
	q querier
}

// CreateUser inserts a user.
func (s *session) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.q.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUserByEmail fetches a user by email.
func (s *session) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = $1`
	return scanUser(s.q.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (s *session) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id = $1`
	return scanUser(s.q.QueryRow(ctx, query, id))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListMessages returns messages in id order.
func (s *session) ListMessages(ctx context.Context, offset, limit int) ([]domain.Message, error) {
	const query = `SELECT id, content, created_at FROM messages ORDER BY id OFFSET $1 LIMIT $2`
	rows, err := s.q.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetMessageByID fetches a single message.
func (s *session) GetMessageByID(ctx context.Context, id int64) (*domain.Message, error) {
	const query = `SELECT id, content, created_at FROM messages WHERE id = $1`
	return scanMessage(s.q.QueryRow(ctx, query, id))
}

// CreateMessage inserts a message and records the generated id and timestamp.
func (s *session) CreateMessage(ctx context.Context, message *domain.Message) error {
	const query = `INSERT INTO messages (content) VALUES ($1) RETURNING id, created_at`
	return s.q.QueryRow(ctx, query, message.Content).Scan(&message.ID, &message.CreatedAt)
}

// UpdateMessageContent replaces the content of an existing message.
func (s *session) UpdateMessageContent(ctx context.Context, id int64, content string) (*domain.Message, error) {
	const query = `UPDATE messages SET content = $2 WHERE id = $1 RETURNING id, content, created_at`
	return scanMessage(s.q.QueryRow(ctx, query, id, content))
}

// DeleteMessage removes a message.
func (s *session) DeleteMessage(ctx context.Context, id int64) error {
	const query = `DELETE FROM messages WHERE id = $1`
	tag, err := s.q.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	if err := row.Scan(&m.ID, &m.Content, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
