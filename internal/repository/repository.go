package repository

import (
	"context"

	"github.com/uww-saigusa/messageboard/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// MessageRepository persists board messages. CreateMessage assigns ID and
// CreatedAt on the passed message.
type MessageRepository interface {
	ListMessages(ctx context.Context, offset, limit int) ([]domain.Message, error)
	GetMessageByID(ctx context.Context, id int64) (*domain.Message, error)
	CreateMessage(ctx context.Context, message *domain.Message) error
	UpdateMessageContent(ctx context.Context, id int64, content string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
}

// Session is the set of repositories bound to one acquired connection.
type Session interface {
	UserRepository
	MessageRepository
}

// Store hands out scoped sessions. The session passed to fn is released when
// fn returns, whatever the outcome, and must not be retained.
type Store interface {
	Session(ctx context.Context, fn func(Session) error) error
	Ping(ctx context.Context) error
}
