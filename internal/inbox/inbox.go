package inbox

import (
	"context"
	"fmt"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wappzakelijk/console/internal/delivery"
	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/internal/store"
	"github.com/wappzakelijk/console/internal/sync"
)

// correlationWindow bounds the content heuristic that pairs an optimistic
// message with a confirmed one when the change event carries no client
// token.
const correlationWindow = 30 * time.Second

const tempIDPrefix = "tmp:"

// FilterAll shows open and closed conversations together.
const FilterAll = ""

func conversationLess(a, b domain.Conversation) bool {
	at, bt := a.LastActivity(), b.LastActivity()
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.ID < b.ID
}

func messageLess(a, b domain.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// correlateMessages pairs a pending outbound message with a tokenless
// confirmed one by content and recency.
func correlateMessages(pending, incoming domain.Message) bool {
	if incoming.ClientToken() != "" {
		return false
	}
	if pending.Direction != domain.DirectionOutbound || incoming.Direction != domain.DirectionOutbound {
		return false
	}
	if pending.Body() == "" || pending.Body() != incoming.Body() {
		return false
	}
	gap := incoming.CreatedAt.Sub(pending.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap <= correlationWindow
}

// Service is one console session: the synchronized conversation list plus
// a message stream per opened conversation. Changing the status filter
// closes the old conversation subscription before opening the new one, so
// stale events from the previous filter can never leak into the new view.
type Service struct {
	companyID string
	store     *store.Store
	source    sync.EventSource
	gateway   *delivery.Client

	mu            stdsync.Mutex
	filter        string
	conversations *sync.Controller[domain.Conversation]
	threads       map[string]*Thread
	closed        bool
}

func NewService(companyID string, st *store.Store, source sync.EventSource, gateway *delivery.Client) *Service {
	return &Service{
		companyID: companyID,
		store:     st,
		source:    source,
		threads:   make(map[string]*Thread),
		gateway:   gateway,
	}
}

// Start opens the conversation list subscription with the unfiltered
// view.
func (s *Service) Start(ctx context.Context) error {
	return s.SetFilter(ctx, FilterAll)
}

func (s *Service) buildConversationController(filter string) *sync.Controller[domain.Conversation] {
	var match func(domain.Conversation) bool
	if filter != FilterAll {
		match = func(c domain.Conversation) bool { return c.Status == filter }
	}
	engine := sync.NewEngine[domain.Conversation](
		sync.Topic{Kind: sync.KindConversation},
		sync.Options[domain.Conversation]{
			Less:  conversationLess,
			Match: match,
		})
	loader := func(ctx context.Context) ([]domain.Conversation, error) {
		items, err := s.store.ListConversations(ctx, s.companyID, filter)
		if err != nil {
			return nil, sync.NewTransportError("list conversations", err)
		}
		return items, nil
	}
	return sync.NewController[domain.Conversation](engine, loader, s.source)
}

// SetFilter switches the conversation list between all, open and closed.
// The previous subscription is fully closed before the replacement opens;
// in-flight events for the old subscription are discarded by epoch.
func (s *Service) SetFilter(ctx context.Context, filter string) error {
	switch filter {
	case FilterAll, domain.ConversationOpen, domain.ConversationClosed:
	default:
		return &sync.ValidationError{Field: "filter", Reason: "must be open, closed or empty"}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return sync.ErrClosed
	}
	old := s.conversations
	next := s.buildConversationController(filter)
	s.conversations = next
	s.filter = filter
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			zap.L().Warn("inbox: close previous conversation subscription", zap.Error(err))
		}
	}
	return next.Open(ctx)
}

func (s *Service) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SubscribeConversations registers a view callback on the current
// conversation list and returns its cancel func.
func (s *Service) SubscribeConversations(fn func(sync.View[domain.Conversation])) (func(), error) {
	s.mu.Lock()
	ctrl := s.conversations
	s.mu.Unlock()
	if ctrl == nil {
		return nil, fmt.Errorf("inbox service not started")
	}
	return ctrl.Engine().Subscribe(fn), nil
}

// Conversations snapshots the current conversation view.
func (s *Service) Conversations() (sync.View[domain.Conversation], error) {
	s.mu.Lock()
	ctrl := s.conversations
	s.mu.Unlock()
	if ctrl == nil {
		return sync.View[domain.Conversation]{}, fmt.Errorf("inbox service not started")
	}
	return ctrl.Engine().CurrentView(), nil
}

// Refresh forces a coalesced snapshot reload of the conversation list.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	ctrl := s.conversations
	s.mu.Unlock()
	if ctrl == nil {
		return fmt.Errorf("inbox service not started")
	}
	return ctrl.Refresh(ctx)
}

// OpenConversation starts the message subscription for one thread. A
// second open of the same conversation returns the existing thread.
func (s *Service) OpenConversation(ctx context.Context, conversationID string) (*Thread, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, sync.ErrClosed
	}
	if t, ok := s.threads[conversationID]; ok {
		s.mu.Unlock()
		return t, nil
	}
	t := s.buildThread(conversationID)
	s.threads[conversationID] = t
	s.mu.Unlock()

	if err := t.controller.Open(ctx); err != nil {
		s.mu.Lock()
		delete(s.threads, conversationID)
		s.mu.Unlock()
		return nil, err
	}
	return t, nil
}

func (s *Service) buildThread(conversationID string) *Thread {
	engine := sync.NewEngine[domain.Message](
		sync.Topic{Kind: sync.KindMessage, Scope: conversationID},
		sync.Options[domain.Message]{
			Less:      messageLess,
			Correlate: correlateMessages,
		})
	loader := func(ctx context.Context) ([]domain.Message, error) {
		items, err := s.store.ListMessages(ctx, conversationID)
		if err != nil {
			return nil, sync.NewTransportError("list messages", err)
		}
		return items, nil
	}
	controller := sync.NewController[domain.Message](engine, loader, s.source)

	persist := func(ctx context.Context, draft domain.Message) (domain.Message, error) {
		msg, err := s.store.CreateMessage(ctx, draft)
		if err != nil {
			return domain.Message{}, sync.NewTransportError("create message", err)
		}
		return msg, nil
	}
	afterConfirm := func(ctx context.Context, confirmed domain.Message) {
		if err := s.store.TouchConversation(ctx, confirmed.ConversationID, confirmed.CreatedAt); err != nil {
			zap.L().Warn("inbox: touch conversation failed",
				zap.String("conversation_id", confirmed.ConversationID), zap.Error(err))
		}
		if s.gateway != nil {
			s.gateway.Send(ctx, confirmed)
		}
	}

	return &Thread{
		conversationID: conversationID,
		controller:     controller,
		coordinator:    sync.NewCoordinator[domain.Message](engine, persist, afterConfirm),
		drafts:         make(map[string]domain.Message),
	}
}

// CloseConversation tears down a thread subscription. Events still in
// flight for it are discarded.
func (s *Service) CloseConversation(conversationID string) {
	s.mu.Lock()
	t, ok := s.threads[conversationID]
	if ok {
		delete(s.threads, conversationID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := t.controller.Close(); err != nil {
		zap.L().Warn("inbox: close thread", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

// Close tears the whole session down.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	convs := s.conversations
	s.conversations = nil
	threads := s.threads
	s.threads = make(map[string]*Thread)
	s.mu.Unlock()

	if convs != nil {
		_ = convs.Close()
	}
	for _, t := range threads {
		_ = t.controller.Close()
	}
	return nil
}

// Thread is the live message stream of one opened conversation, with
// optimistic sending.
type Thread struct {
	conversationID string
	controller     *sync.Controller[domain.Message]
	coordinator    *sync.Coordinator[domain.Message]

	mu     stdsync.Mutex
	drafts map[string]domain.Message
}

func (t *Thread) ConversationID() string { return t.conversationID }

// Subscribe registers a message view callback.
func (t *Thread) Subscribe(fn func(sync.View[domain.Message])) func() {
	return t.controller.Engine().Subscribe(fn)
}

func (t *Thread) Messages() sync.View[domain.Message] {
	return t.controller.Engine().CurrentView()
}

// Refresh forces a snapshot reload of the thread.
func (t *Thread) Refresh(ctx context.Context) error {
	return t.controller.Refresh(ctx)
}

// Send submits an outbound text message. The message appears immediately
// in pending state and is persisted asynchronously.
func (t *Thread) Send(ctx context.Context, content string) (*sync.Handle[domain.Message], error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &sync.ValidationError{Field: "content", Reason: "is required"}
	}
	temp := domain.Message{
		ID:             tempIDPrefix + uuid.NewString(),
		ConversationID: t.conversationID,
		Direction:      domain.DirectionOutbound,
		Type:           "text",
		Content:        &content,
		Status:         domain.MessagePending,
		Token:          uuid.NewString(),
		CreatedAt:      time.Now(),
	}

	t.mu.Lock()
	t.drafts[temp.ID] = temp
	t.mu.Unlock()

	h := t.coordinator.Submit(ctx, temp)
	go t.reapDraft(h)
	return h, nil
}

// reapDraft forgets the draft once the write confirms; failed drafts stay
// for Retry.
func (t *Thread) reapDraft(h *sync.Handle[domain.Message]) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := h.Wait(ctx); err != nil {
		return
	}
	t.mu.Lock()
	delete(t.drafts, h.TempID)
	t.mu.Unlock()
}

// Retry re-submits a failed optimistic message under its original
// identity and token.
func (t *Thread) Retry(ctx context.Context, tempID string) (*sync.Handle[domain.Message], error) {
	t.mu.Lock()
	draft, ok := t.drafts[tempID]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no failed message %q", tempID)
	}
	h, ok := t.coordinator.Retry(ctx, draft)
	if !ok {
		return nil, fmt.Errorf("message %q is not in a failed state", tempID)
	}
	go t.reapDraft(h)
	return h, nil
}

// Discard drops a failed optimistic message on user request.
func (t *Thread) Discard(tempID string) {
	t.mu.Lock()
	delete(t.drafts, tempID)
	t.mu.Unlock()
	t.coordinator.Discard(tempID)
}
