package message

import (
	"context"
	"time"

	"log/slog"

	"github.com/uww-saigusa/messageboard/internal/domain"
	"github.com/uww-saigusa/messageboard/internal/repository"
	"github.com/uww-saigusa/messageboard/pkg/config"
)

// DefaultPageSize is used by transports when the caller gives no limit.
const DefaultPageSize = 10

// PageCache stores listing pages. Implementations swallow and log their own errors.
type PageCache interface {
	GetPage(ctx context.Context, skip, limit int) ([]domain.Message, bool)
	SetPage(ctx context.Context, skip, limit int, messages []domain.Message)
	Invalidate(ctx context.Context)
}

// Publisher receives an event after every successful write.
type Publisher interface {
	Publish(event domain.MessageEvent)
}

// Service implements message CRUD on top of a repository.Store.
type Service struct {
	store       repository.Store
	cache       PageCache
	publisher   Publisher
	logger      *slog.Logger
	maxPageSize int
	now         func() time.Time
}

// New constructs a Service. cache and publisher may be nil.
func New(store repository.Store, cache PageCache, publisher Publisher, logger *slog.Logger, cfg config.APIConfig) Service {
	maxPage := cfg.MaxPageSize
	if maxPage <= 0 {
		maxPage = 100
	}
	return Service{
		store:       store,
		cache:       cache,
		publisher:   publisher,
		logger:      logger,
		maxPageSize: maxPage,
		now:         time.Now,
	}
}

// List returns up to limit messages in id order starting at skip.
func (s Service) List(ctx context.Context, skip, limit int) ([]domain.Message, error) {
	if verr := domain.ValidatePage(skip, limit); verr != nil {
		return nil, verr
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	if s.cache != nil {
		if cached, ok := s.cache.GetPage(ctx, skip, limit); ok {
			return cached, nil
		}
	}
	var messages []domain.Message
	err := s.store.Session(ctx, func(sess repository.Session) error {
		page, err := sess.ListMessages(ctx, skip, limit)
		if err != nil {
			return err
		}
		messages = page
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetPage(ctx, skip, limit, messages)
	}
	return messages, nil
}

// Get returns one message or repository.ErrNotFound.
func (s Service) Get(ctx context.Context, id int64) (*domain.Message, error) {
	var message *domain.Message
	err := s.store.Session(ctx, func(sess repository.Session) error {
		found, err := sess.GetMessageByID(ctx, id)
		if err != nil {
			return err
		}
		message = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// Create validates and stores a new message.
func (s Service) Create(ctx context.Context, content string) (*domain.Message, error) {
	if verr := domain.ValidateMessageContent(content); verr != nil {
		return nil, verr
	}
	message := &domain.Message{Content: content}
	err := s.store.Session(ctx, func(sess repository.Session) error {
		return sess.CreateMessage(ctx, message)
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, domain.MessageEventCreated, message.ID, message)
	s.logger.Info("message created", "message_id", message.ID)
	return message, nil
}

// Update replaces the content of an existing message.
func (s Service) Update(ctx context.Context, id int64, content string) (*domain.Message, error) {
	if verr := domain.ValidateMessageContent(content); verr != nil {
		return nil, verr
	}
	var message *domain.Message
	err := s.store.Session(ctx, func(sess repository.Session) error {
		if _, err := sess.GetMessageByID(ctx, id); err != nil {
			return err
		}
		updated, err := sess.UpdateMessageContent(ctx, id, content)
		if err != nil {
			return err
		}
		message = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, domain.MessageEventUpdated, message.ID, message)
	s.logger.Info("message updated", "message_id", message.ID)
	return message, nil
}

// Delete removes a message, returning repository.ErrNotFound when absent.
func (s Service) Delete(ctx context.Context, id int64) error {
	err := s.store.Session(ctx, func(sess repository.Session) error {
		if _, err := sess.GetMessageByID(ctx, id); err != nil {
			return err
		}
		return sess.DeleteMessage(ctx, id)
	})
	if err != nil {
		return err
	}
	s.changed(ctx, domain.MessageEventDeleted, id, nil)
	s.logger.Info("message deleted", "message_id", id)
	return nil
}

func (s Service) changed(ctx context.Context, eventType string, id int64, message *domain.Message) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.publisher != nil {
		var snapshot *domain.Message
		if message != nil {
			copied := *message
			snapshot = &copied
		}
		s.publisher.Publish(domain.MessageEvent{
			Type:       eventType,
			MessageID:  id,
			Message:    snapshot,
			OccurredAt: s.now().UTC(),
		})
	}
}
