package broadcast

import (
	"context"
	"strings"
	stdsync "sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/wappzakelijk/console/internal/delivery"
	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/store"
	"github.com/wappzakelijk/console/internal/sync"
	"github.com/wappzakelijk/console/pkg/metrics"
)

const namePlaceholder = "{{naam}}"

// RenderTemplate personalizes a campaign template for one recipient.
// Only the name placeholder is supported; unknown placeholders pass
// through untouched.
func RenderTemplate(template string, contact domain.Contact) string {
	return strings.ReplaceAll(template, namePlaceholder, contact.DisplayName())
}

// Service sends campaign messages to every opted-in contact through a
// bounded worker pool, so a large audience cannot saturate the gateway.
type Service struct {
	companyID string
	store     *store.Store
	gateway   *delivery.Client
	poolSize  int
}

func NewService(companyID string, st *store.Store, gateway *delivery.Client, poolSize int) *Service {
	if poolSize <= 0 {
		poolSize = 8
	}
	return &Service{companyID: companyID, store: st, gateway: gateway, poolSize: poolSize}
}

// CreateDraft validates and saves a campaign without sending anything.
func (s *Service) CreateDraft(ctx context.Context, name, template string) (domain.Broadcast, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Broadcast{}, &sync.ValidationError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(template) == "" {
		return domain.Broadcast{}, &sync.ValidationError{Field: "template", Reason: "is required"}
	}
	return s.store.CreateBroadcast(ctx, domain.Broadcast{
		CompanyID: s.companyID,
		Name:      strings.TrimSpace(name),
		Template:  template,
	})
}

// Dispatch sends a draft campaign to all opted-in contacts. The broadcast
// moves to sending immediately and to sent once every recipient has been
// handed to the gateway.
func (s *Service) Dispatch(ctx context.Context, broadcastID string) (domain.Broadcast, error) {
	b, err := s.store.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return domain.Broadcast{}, err
	}
	if b.Status != domain.BroadcastDraft {
		return domain.Broadcast{}, &sync.ValidationError{Field: "status", Reason: "broadcast is not a draft"}
	}

	audience, err := s.store.ListOptInContacts(ctx, s.companyID)
	if err != nil {
		return domain.Broadcast{}, sync.NewTransportError("broadcast audience", err)
	}

	b, err = s.store.UpdateBroadcastStatus(ctx, b.ID, domain.BroadcastSending, len(audience))
	if err != nil {
		return domain.Broadcast{}, err
	}

	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return domain.Broadcast{}, err
	}
	defer pool.Release()

	var wg stdsync.WaitGroup
	for _, contact := range audience {
		contact := contact
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			s.sendOne(ctx, b, contact)
		}); err != nil {
			wg.Done()
			zap.L().Error("broadcast: pool submit failed",
				zap.String("broadcast_id", b.ID), zap.Error(err))
		}
	}
	wg.Wait()

	b, err = s.store.UpdateBroadcastStatus(ctx, b.ID, domain.BroadcastSent, len(audience))
	if err != nil {
		return domain.Broadcast{}, err
	}
	metrics.Inc("broadcast_dispatched")
	zap.L().Info("broadcast dispatched",
		zap.String("broadcast_id", b.ID), zap.Int("recipients", len(audience)))
	return b, nil
}

func (s *Service) sendOne(ctx context.Context, b domain.Broadcast, contact domain.Contact) {
	conv, err := s.store.FindOrCreateConversation(ctx, s.companyID, contact.ID)
	if err != nil {
		zap.L().Error("broadcast: conversation lookup failed",
			zap.String("contact_id", contact.ID), zap.Error(err))
		return
	}

	content := RenderTemplate(b.Template, contact)
	msg, err := s.store.CreateMessage(ctx, domain.Message{
		ConversationID: conv.ID,
		Direction:      domain.DirectionOutbound,
		Type:           "text",
		Content:        &content,
	})
	if err != nil {
		zap.L().Error("broadcast: message persist failed",
			zap.String("contact_id", contact.ID), zap.Error(err))
		return
	}

	if err := s.store.TouchConversation(ctx, conv.ID, msg.CreatedAt); err != nil {
		zap.L().Warn("broadcast: touch conversation failed",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	if s.gateway != nil {
		s.gateway.Send(ctx, msg)
	}
	metrics.Inc("broadcast_message_sent")
}
