package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/sync"
	"github.com/wappzakelijk/console/pkg/common"
)

func contactTopic() sync.Topic {
	return sync.Topic{Kind: sync.KindContact}
}

// ListContacts returns a company's contacts, optionally filtered by a
// case-insensitive name or phone search.
func (s *Store) ListContacts(ctx context.Context, companyID, search string) ([]domain.Contact, error) {
	q := s.db.WithContext(ctx).Where("company_id = ?", companyID)
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(COALESCE(name, '')) LIKE ? OR phone LIKE ?", like, "%"+search+"%")
	}
	var items []domain.Contact
	err := q.Order("updated_at DESC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetContact(ctx context.Context, id string) (domain.Contact, error) {
	var c domain.Contact
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	return c, err
}

func (s *Store) GetContactByPhone(ctx context.Context, companyID, phone string) (domain.Contact, error) {
	var c domain.Contact
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND phone = ?", companyID, common.TrimPhone(phone)).
		First(&c).Error
	return c, err
}

// UpsertContact creates or updates the record keyed by (company, phone).
// The normalized phone number is the identity; name and opt-in follow the
// latest write.
func (s *Store) UpsertContact(ctx context.Context, contact domain.Contact) (domain.Contact, error) {
	contact.Phone = common.TrimPhone(contact.Phone)
	now := time.Now()

	var existing domain.Contact
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND phone = ?", contact.CompanyID, contact.Phone).
		First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"opt_in":     contact.OptIn,
			"updated_at": now,
		}
		if contact.Name != nil {
			updates["name"] = contact.Name
		}
		if contact.Labels != nil {
			updates["labels"] = contact.Labels
		}
		if err := s.db.WithContext(ctx).Model(&domain.Contact{}).
			Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return domain.Contact{}, err
		}
		existing, err = s.GetContact(ctx, existing.ID)
		if err != nil {
			return domain.Contact{}, err
		}
		s.publish(contactTopic(), sync.OpUpdate, existing)
		return existing, nil
	case err == gorm.ErrRecordNotFound:
		contact.ID = common.UUID()
		contact.CreatedAt = now
		contact.UpdatedAt = now
		if err := s.db.WithContext(ctx).Create(&contact).Error; err != nil {
			return domain.Contact{}, err
		}
		s.publish(contactTopic(), sync.OpInsert, contact)
		return contact, nil
	default:
		return domain.Contact{}, err
	}
}

// SetContactOptIn flips broadcast consent for a contact.
func (s *Store) SetContactOptIn(ctx context.Context, id string, optIn bool) (domain.Contact, error) {
	err := s.db.WithContext(ctx).Model(&domain.Contact{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"opt_in":     optIn,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return domain.Contact{}, err
	}
	c, err := s.GetContact(ctx, id)
	if err != nil {
		return domain.Contact{}, err
	}
	s.publish(contactTopic(), sync.OpUpdate, c)
	return c, nil
}

// ListOptInContacts returns the broadcast audience for a company.
func (s *Store) ListOptInContacts(ctx context.Context, companyID string) ([]domain.Contact, error) {
	var items []domain.Contact
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND opt_in = ?", companyID, true).
		Order("phone ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	c, err := s.GetContact(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Contact{}).Error; err != nil {
		return err
	}
	s.publish(contactTopic(), sync.OpDelete, c)
	return nil
}
