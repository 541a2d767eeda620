package domain

import "time"

const (
	BroadcastDraft   = "draft"
	BroadcastSending = "sending"
	BroadcastSent    = "sent"
)

// Broadcast is a campaign message sent to all opted-in contacts. The
// template may contain a {{naam}} placeholder resolved per recipient.
type Broadcast struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	CompanyID      string    `json:"company_id" gorm:"index;size:64"`
	Name           string    `json:"name" gorm:"size:128"`
	Template       string    `json:"template"`
	Status         string    `json:"status" gorm:"index;size:16"` // draft, sending, sent
	RecipientCount int       `json:"recipient_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Broadcast) TableName() string {
	return "broadcasts"
}

func (b Broadcast) EntityID() string {
	return b.ID
}

func (b Broadcast) ClientToken() string {
	return ""
}
