package domain

import "time"

const (
	PaymentOpen = "open"
	PaymentPaid = "paid"
)

// PaymentLink records an externally issued payment request. Amount is in
// minor units (cents); LinkURL stays nil until the provider confirms.
type PaymentLink struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	CompanyID   string    `json:"company_id" gorm:"index;size:64"`
	Amount      int64     `json:"amount"`
	Description *string   `json:"description" gorm:"size:256"`
	LinkURL     *string   `json:"link_url" gorm:"size:1024"`
	Phone       string    `json:"phone,omitempty" gorm:"size:32"`
	Status      string    `json:"status" gorm:"index;size:16"` // open, paid
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (PaymentLink) TableName() string {
	return "payment_links"
}

func (p PaymentLink) EntityID() string {
	return p.ID
}

func (p PaymentLink) ClientToken() string {
	return ""
}
