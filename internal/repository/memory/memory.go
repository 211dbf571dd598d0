// Package memory provides an in-process repository.Store used by tests and
// by the API when STORE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/uww-saigusa/messageboard/internal/domain"
	"github.com/uww-saigusa/messageboard/internal/repository"
)

var (
	_ repository.Store   = (*Store)(nil)
	_ repository.Session = (*Store)(nil)
)

// Store keeps users and messages in maps guarded by a mutex.
type Store struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	messages map[int64]domain.Message
	nextID   int64
	now      func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the timestamp source for created messages.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		users:    make(map[string]domain.User),
		messages: make(map[int64]domain.Message),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session runs fn against the store itself; there is no connection to release.
func (s *Store) Session(ctx context.Context, fn func(repository.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// CreateUser inserts a user keyed by email.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Email]; exists {
		return repository.ErrDuplicate
	}
	s.users[user.Email] = *user
	return nil
}

// GetUserByEmail fetches a user by email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// GetUserByID scans users for the identifier.
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

// RemoveUser deletes a user by email. The API never removes users; tests use
// it to simulate an identity vanishing after a token was issued.
func (s *Store) RemoveUser(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, email)
}

// UserCount reports the number of stored users.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// ListMessages returns messages in id order.
func (s *Store) ListMessages(_ context.Context, offset, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	messages := make([]domain.Message, 0)
	if offset >= len(ids) || limit <= 0 {
		return messages, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	for _, id := range ids[offset:end] {
		messages = append(messages, s.messages[id])
	}
	return messages, nil
}

// GetMessageByID fetches a single message.
func (s *Store) GetMessageByID(_ context.Context, id int64) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

// CreateMessage assigns the next id and creation time.
func (s *Store) CreateMessage(_ context.Context, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message.ID = s.nextID
	message.CreatedAt = s.now().UTC()
	s.messages[message.ID] = *message
	return nil
}

// UpdateMessageContent replaces message content.
func (s *Store) UpdateMessageContent(_ context.Context, id int64, content string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.Content = content
	s.messages[id] = m
	return &m, nil
}

// DeleteMessage removes a message.
func (s *Store) DeleteMessage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

// MessageCount reports the number of stored messages.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
