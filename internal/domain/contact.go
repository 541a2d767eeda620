package domain

import "time"

// Contact is a customer phone record. Phone is the canonical key within a
// company; the display name may be absent.
type Contact struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	CompanyID string    `json:"company_id" gorm:"index:idx_contact_phone,unique;size:64"`
	Name      *string   `json:"name" gorm:"size:128"`
	Phone     string    `json:"phone" gorm:"index:idx_contact_phone,unique;size:32"`
	Labels    []string  `json:"labels" gorm:"serializer:json"`
	OptIn     bool      `json:"opt_in"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

func (c Contact) EntityID() string {
	return c.ID
}

func (c Contact) ClientToken() string {
	return ""
}

// DisplayName falls back to the phone number when no name is known.
func (c Contact) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.Phone
}
