package domain

import "time"

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Delivery status values. A message is immutable once created except for
// transitions between these.
const (
	MessagePending   = "pending"
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
	MessageFailed    = "failed"
)

// Message is a single WhatsApp message inside a conversation. Ordering
// within a conversation is by CreatedAt with ID as tie-break, which gives a
// total order.
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	ConversationID string    `json:"conversation_id" gorm:"index;size:64"`
	Direction      string    `json:"direction" gorm:"size:16"` // inbound, outbound
	Type           string    `json:"type" gorm:"size:32"`      // text, image, ...
	Content        *string   `json:"content"`
	MediaURL       *string   `json:"media_url" gorm:"size:1024"`
	Status         string    `json:"status" gorm:"size:16"`
	Token          string    `json:"token,omitempty" gorm:"column:client_token;index;size:64"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

func (Message) TableName() string {
	return "messages"
}

func (m Message) EntityID() string {
	return m.ID
}

// ClientToken is the idempotency token assigned by the submitting client
// and echoed back by the store; it correlates an optimistic row with its
// confirmed counterpart.
func (m Message) ClientToken() string {
	return m.Token
}

// Body returns the textual content or empty for non-text messages.
func (m Message) Body() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}
