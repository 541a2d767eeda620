package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"go.uber.org/zap"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/store"
	"github.com/wappzakelijk/console/internal/sync"
	"github.com/wappzakelijk/console/pkg/metrics"
)

// Service requests payment links from the external provider and records
// them. Validation failures are reported before anything is persisted or
// sent.
type Service struct {
	url       string
	companyID string
	store     *store.Store
}

func NewService(url, companyID string, st *store.Store) *Service {
	return &Service{url: url, companyID: companyID, store: st}
}

// Request is a payment link creation request. Amount is in minor units.
type Request struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Phone       string `json:"phone,omitempty"`
}

func (r Request) validate() error {
	if r.Amount <= 0 {
		return &sync.ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if strings.TrimSpace(r.Description) == "" {
		return &sync.ValidationError{Field: "description", Reason: "is required"}
	}
	return nil
}

type providerResponse struct {
	PaymentLink string `json:"paymentLink"`
	Error       string `json:"error"`
}

// Create validates the request, calls the provider and persists the
// returned link. A provider failure still leaves a record in open state
// without a URL, so the attempt is visible and can be retried.
func (s *Service) Create(ctx context.Context, req Request) (domain.PaymentLink, error) {
	if err := req.validate(); err != nil {
		return domain.PaymentLink{}, err
	}

	desc := strings.TrimSpace(req.Description)
	link, err := s.store.CreatePaymentLink(ctx, domain.PaymentLink{
		CompanyID:   s.companyID,
		Amount:      req.Amount,
		Description: &desc,
		Phone:       req.Phone,
	})
	if err != nil {
		return domain.PaymentLink{}, sync.NewTransportError("payment create", err)
	}

	resp, err := s.callProvider(req)
	if err != nil {
		zap.L().Warn("payment: provider request failed",
			zap.String("payment_id", link.ID), zap.Error(err))
		metrics.Inc("payment_provider_failed")
		return link, sync.NewTransportError("payment provider", err)
	}

	link, err = s.store.SetPaymentLinkURL(ctx, link.ID, resp)
	if err != nil {
		return domain.PaymentLink{}, sync.NewTransportError("payment update", err)
	}
	metrics.Inc("payment_link_created")
	return link, nil
}

func (s *Service) callProvider(req Request) (string, error) {
	if s.url == "" {
		return "", fmt.Errorf("payment provider url not configured")
	}
	var out providerResponse
	var code int
	err := gout.POST(s.url).
		SetJSON(gout.H{
			"amount":      req.Amount,
			"description": strings.TrimSpace(req.Description),
		}).
		SetTimeout(15 * time.Second).
		BindJSON(&out).
		Code(&code).
		Do()
	if err != nil {
		return "", err
	}
	if code >= 300 {
		return "", fmt.Errorf("provider returned status %d", code)
	}
	if out.Error != "" {
		return "", fmt.Errorf("provider error: %s", out.Error)
	}
	if out.PaymentLink == "" {
		return "", fmt.Errorf("provider returned empty link")
	}
	return out.PaymentLink, nil
}

// MarkPaid settles a link, normally called from the provider webhook.
func (s *Service) MarkPaid(ctx context.Context, id string) (domain.PaymentLink, error) {
	return s.store.MarkPaymentPaid(ctx, id)
}
