package store

import (
	"context"
	"time"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/sync"
	"github.com/wappzakelijk/console/pkg/common"
)

func messageTopic(conversationID string) sync.Topic {
	return sync.Topic{Kind: sync.KindMessage, Scope: conversationID}
}

// ListMessages loads the full history of one conversation in chronological
// order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var items []domain.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CreateMessage persists a message and returns it with the server-assigned
// identity. The client token, if present, is stored and echoed on the
// change event so optimistic rows correlate. Repeated submissions with the
// same token return the already-persisted row.
func (s *Store) CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.Token != "" {
		var existing domain.Message
		err := s.db.WithContext(ctx).
			Where("conversation_id = ? AND client_token = ?", msg.ConversationID, msg.Token).
			First(&existing).Error
		if err == nil {
			return existing, nil
		}
	}

	msg.ID = common.UUID()
	msg.CreatedAt = time.Now()
	if msg.Status == "" {
		if msg.Direction == domain.DirectionOutbound {
			msg.Status = domain.MessageSent
		} else {
			msg.Status = domain.MessageDelivered
		}
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return domain.Message{}, err
	}
	s.publish(messageTopic(msg.ConversationID), sync.OpInsert, msg)
	return msg, nil
}

// UpdateMessageStatus records a delivery transition reported by the
// gateway.
func (s *Store) UpdateMessageStatus(ctx context.Context, id, status string) (domain.Message, error) {
	err := s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return domain.Message{}, err
	}
	var msg domain.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return domain.Message{}, err
	}
	s.publish(messageTopic(msg.ConversationID), sync.OpUpdate, msg)
	return msg, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	var msg domain.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Message{}).Error; err != nil {
		return err
	}
	s.publish(messageTopic(msg.ConversationID), sync.OpDelete, msg)
	return nil
}
