package store

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wappzakelijk/console/internal/sync"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the persistence layer for the console. Every mutation that
// commits also emits a change event so that connected sessions converge
// without polling.
type Store struct {
	db  *gorm.DB
	pub sync.EventPublisher
}

func NewStore(db *gorm.DB, pub sync.EventPublisher) *Store {
	return &Store{db: db, pub: pub}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) publish(topic sync.Topic, op sync.Op, ent sync.Entity) {
	if s.pub == nil {
		return
	}
	body, err := codec.Marshal(ent)
	if err != nil {
		zap.L().Error("store: marshal change event failed",
			zap.String("topic", topic.Key()), zap.Error(err))
		return
	}
	s.pub.Publish(sync.ChangeEvent{
		Topic: topic,
		Op:    op,
		ID:    ent.EntityID(),
		Token: ent.ClientToken(),
		Body:  body,
		At:    time.Now(),
	})
}
