package domain

import "time"

const (
	ConversationOpen   = "open"
	ConversationClosed = "closed"
)

// Conversation is one WhatsApp thread between the company and a contact.
// The row is owned by the remote store; everything the console holds is a
// derived cache maintained by the sync engine.
type Conversation struct {
	ID            string     `json:"id" gorm:"primaryKey;size:64"`
	CompanyID     string     `json:"company_id" gorm:"index;size:64"`
	ContactID     string     `json:"contact_id" gorm:"index;size:64"`
	Status        string     `json:"status" gorm:"index;size:16"` // open, closed
	AssignedTo    *string    `json:"assigned_to" gorm:"size:64"`
	Labels        []string   `json:"labels" gorm:"serializer:json"`
	LastMessageAt *time.Time `json:"last_message_at" gorm:"index"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Contact *Contact `json:"contact,omitempty" gorm:"foreignKey:ContactID;references:ID"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c Conversation) EntityID() string {
	return c.ID
}

// ClientToken is always empty for conversations; they are never written
// optimistically by the console.
func (c Conversation) ClientToken() string {
	return ""
}

// LastActivity returns the sort instant for the inbox ordering; rows that
// never had a message sort by creation time.
func (c Conversation) LastActivity() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}
