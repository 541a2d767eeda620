package store

import (
	"context"
	"time"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/sync"
	"github.com/wappzakelijk/console/pkg/common"
)

func broadcastTopic() sync.Topic {
	return sync.Topic{Kind: sync.KindBroadcast}
}

func (s *Store) ListBroadcasts(ctx context.Context, companyID string) ([]domain.Broadcast, error) {
	var items []domain.Broadcast
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetBroadcast(ctx context.Context, id string) (domain.Broadcast, error) {
	var b domain.Broadcast
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	return b, err
}

// CreateBroadcast saves a draft campaign.
func (s *Store) CreateBroadcast(ctx context.Context, b domain.Broadcast) (domain.Broadcast, error) {
	now := time.Now()
	b.ID = common.UUID()
	b.Status = domain.BroadcastDraft
	b.CreatedAt = now
	b.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&b).Error; err != nil {
		return domain.Broadcast{}, err
	}
	s.publish(broadcastTopic(), sync.OpInsert, b)
	return b, nil
}

// UpdateBroadcastStatus moves a campaign through draft, sending, sent and
// records how many recipients it reached.
func (s *Store) UpdateBroadcastStatus(ctx context.Context, id, status string, recipients int) (domain.Broadcast, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if recipients >= 0 {
		updates["recipient_count"] = recipients
	}
	err := s.db.WithContext(ctx).Model(&domain.Broadcast{}).
		Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return domain.Broadcast{}, err
	}
	b, err := s.GetBroadcast(ctx, id)
	if err != nil {
		return domain.Broadcast{}, err
	}
	s.publish(broadcastTopic(), sync.OpUpdate, b)
	return b, nil
}

func (s *Store) DeleteBroadcast(ctx context.Context, id string) error {
	b, err := s.GetBroadcast(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Broadcast{}).Error; err != nil {
		return err
	}
	s.publish(broadcastTopic(), sync.OpDelete, b)
	return nil
}
