package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/sync"
	"github.com/wappzakelijk/console/pkg/common"
)

const inboxPageSize = 50

func conversationTopic() sync.Topic {
	return sync.Topic{Kind: sync.KindConversation}
}

// ListConversations loads the inbox page for one company, most recently
// active first. Status filters to open or closed when non-empty.
func (s *Store) ListConversations(ctx context.Context, companyID, status string) ([]domain.Conversation, error) {
	q := s.db.WithContext(ctx).
		Preload("Contact").
		Where("company_id = ?", companyID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var items []domain.Conversation
	err := q.Order("last_message_at DESC NULLS LAST").
		Order("created_at DESC").
		Limit(inboxPageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.WithContext(ctx).Preload("Contact").
		Where("id = ?", id).First(&conv).Error
	return conv, err
}

// CreateConversation opens a thread with a contact; one open thread per
// contact is expected but not enforced here.
func (s *Store) CreateConversation(ctx context.Context, conv domain.Conversation) (domain.Conversation, error) {
	now := time.Now()
	conv.ID = common.UUID()
	conv.Status = domain.ConversationOpen
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return domain.Conversation{}, err
	}
	s.publish(conversationTopic(), sync.OpInsert, conv)
	return conv, nil
}

// FindOrCreateConversation returns the open thread with a contact,
// creating one when none exists. Closed threads are not reopened.
func (s *Store) FindOrCreateConversation(ctx context.Context, companyID, contactID string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.WithContext(ctx).Preload("Contact").
		Where("company_id = ? AND contact_id = ? AND status = ?", companyID, contactID, domain.ConversationOpen).
		First(&conv).Error
	if err == nil {
		return conv, nil
	}
	if err != gorm.ErrRecordNotFound {
		return domain.Conversation{}, err
	}
	return s.CreateConversation(ctx, domain.Conversation{
		CompanyID: companyID,
		ContactID: contactID,
	})
}

// UpdateConversationStatus transitions a thread between open and closed.
func (s *Store) UpdateConversationStatus(ctx context.Context, id, status string) (domain.Conversation, error) {
	err := s.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return domain.Conversation{}, err
	}
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	s.publish(conversationTopic(), sync.OpUpdate, conv)
	return conv, nil
}

// AssignConversation sets or clears the agent owning the thread.
func (s *Store) AssignConversation(ctx context.Context, id string, agent *string) (domain.Conversation, error) {
	err := s.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"assigned_to": agent,
			"updated_at":  time.Now(),
		}).Error
	if err != nil {
		return domain.Conversation{}, err
	}
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	s.publish(conversationTopic(), sync.OpUpdate, conv)
	return conv, nil
}

// TouchConversation advances last_message_at, but never backwards: a
// delayed confirmation for an old message must not reorder the inbox.
func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", id).
		Where("last_message_at IS NULL OR last_message_at < ?", at).
		Updates(map[string]interface{}{
			"last_message_at": at,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	s.publish(conversationTopic(), sync.OpUpdate, conv)
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Conversation{}).Error
	})
	if err != nil {
		return err
	}
	s.publish(conversationTopic(), sync.OpDelete, conv)
	return nil
}
