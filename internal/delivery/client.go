package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/guonaihong/gout"
	"go.uber.org/zap"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/pkg/metrics"
)

const (
	maxAttempts  = 8
	retryBase    = 30 * time.Second
	retryCeiling = 30 * time.Minute
)

// StatusUpdater marks a message failed once retries are exhausted.
type StatusUpdater interface {
	UpdateMessageStatus(ctx context.Context, id, status string) (domain.Message, error)
}

// Client hands confirmed outbound messages to the WhatsApp gateway. Send
// is fire-and-forget from the caller's perspective: gateway failures are
// journaled and retried in the background, never surfaced to the
// submitting session.
type Client struct {
	url     string
	journal *Journal
	status  StatusUpdater
}

func NewClient(url string, journal *Journal, status StatusUpdater) *Client {
	return &Client{url: url, journal: journal, status: status}
}

type sendPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
}

func (c *Client) post(p sendPayload) error {
	if c.url == "" {
		return fmt.Errorf("delivery url not configured")
	}
	var code int
	err := gout.POST(c.url).
		SetJSON(p).
		SetTimeout(10 * time.Second).
		Code(&code).
		Do()
	if err != nil {
		return err
	}
	if code >= 300 {
		return fmt.Errorf("gateway returned status %d", code)
	}
	return nil
}

// Send attempts immediate delivery and journals the message on failure.
func (c *Client) Send(ctx context.Context, msg domain.Message) {
	p := sendPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Content:        msg.Body(),
	}
	if err := c.post(p); err != nil {
		zap.L().Warn("delivery: gateway send failed, journaled for retry",
			zap.String("message_id", msg.ID), zap.Error(err))
		metrics.Inc("delivery_send_failed")
		c.enqueue(Entry{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			Content:        p.Content,
			Attempts:       1,
			NextAt:         time.Now().Add(retryBase),
		})
		return
	}
	metrics.Inc("delivery_send_ok")
}

func (c *Client) enqueue(e Entry) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Put(e); err != nil {
		zap.L().Error("delivery: journal write failed",
			zap.String("message_id", e.MessageID), zap.Error(err))
	}
}

// RetryPending is the cron entry point: it replays due journal entries
// and gives up after maxAttempts, marking the message failed.
func (c *Client) RetryPending(ctx context.Context) {
	if c.journal == nil {
		return
	}
	due, err := c.journal.Due(time.Now())
	if err != nil {
		zap.L().Error("delivery: journal read failed", zap.Error(err))
		return
	}
	for _, e := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.post(sendPayload{
			ConversationID: e.ConversationID,
			MessageID:      e.MessageID,
			Content:        e.Content,
		})
		if err == nil {
			metrics.Inc("delivery_retry_ok")
			_ = c.journal.Remove(e.MessageID)
			continue
		}

		e.Attempts++
		if e.Attempts >= maxAttempts {
			zap.L().Error("delivery: retries exhausted",
				zap.String("message_id", e.MessageID), zap.Error(err))
			metrics.Inc("delivery_retry_exhausted")
			_ = c.journal.Remove(e.MessageID)
			if c.status != nil {
				if _, serr := c.status.UpdateMessageStatus(ctx, e.MessageID, domain.MessageFailed); serr != nil {
					zap.L().Error("delivery: mark failed", zap.String("message_id", e.MessageID), zap.Error(serr))
				}
			}
			continue
		}

		backoff := retryBase << uint(e.Attempts-1)
		if backoff > retryCeiling {
			backoff = retryCeiling
		}
		e.NextAt = time.Now().Add(backoff)
		_ = c.journal.Put(e)
	}
}
