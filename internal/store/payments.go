package store

import (
	"context"
	"time"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/sync"
	"github.com/wappzakelijk/console/pkg/common"
)

func paymentTopic() sync.Topic {
	return sync.Topic{Kind: sync.KindPaymentLink}
}

func (s *Store) ListPaymentLinks(ctx context.Context, companyID string) ([]domain.PaymentLink, error) {
	var items []domain.PaymentLink
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetPaymentLink(ctx context.Context, id string) (domain.PaymentLink, error) {
	var p domain.PaymentLink
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	return p, err
}

// CreatePaymentLink records an issued link request; LinkURL stays nil
// until the provider responds.
func (s *Store) CreatePaymentLink(ctx context.Context, p domain.PaymentLink) (domain.PaymentLink, error) {
	now := time.Now()
	p.ID = common.UUID()
	p.Status = domain.PaymentOpen
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return domain.PaymentLink{}, err
	}
	s.publish(paymentTopic(), sync.OpInsert, p)
	return p, nil
}

// SetPaymentLinkURL stores the provider-issued URL on the pending record.
func (s *Store) SetPaymentLinkURL(ctx context.Context, id, url string) (domain.PaymentLink, error) {
	err := s.db.WithContext(ctx).Model(&domain.PaymentLink{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"link_url":   url,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return domain.PaymentLink{}, err
	}
	p, err := s.GetPaymentLink(ctx, id)
	if err != nil {
		return domain.PaymentLink{}, err
	}
	s.publish(paymentTopic(), sync.OpUpdate, p)
	return p, nil
}

// MarkPaymentPaid settles the link, normally driven by a provider
// webhook.
func (s *Store) MarkPaymentPaid(ctx context.Context, id string) (domain.PaymentLink, error) {
	err := s.db.WithContext(ctx).Model(&domain.PaymentLink{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.PaymentPaid,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return domain.PaymentLink{}, err
	}
	p, err := s.GetPaymentLink(ctx, id)
	if err != nil {
		return domain.PaymentLink{}, err
	}
	s.publish(paymentTopic(), sync.OpUpdate, p)
	return p, nil
}
