package delivery

import (
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

var journalBucket = []byte("delivery_retry")

// Entry is one undelivered outbound message waiting for a retry.
type Entry struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	Attempts       int       `json:"attempts"`
	NextAt         time.Time `json:"next_at"`
}

// Journal persists failed gateway sends across restarts so a console
// crash does not drop messages the user already sees as sent.
type Journal struct {
	db *bbolt.DB
}

func OpenJournal(workdir string) (*Journal, error) {
	dir := filepath.Join(workdir, "data")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	db, err := bbolt.Open(filepath.Join(dir, "delivery.db"), 0o600, &bbolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(journalBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Put(e Entry) error {
	buf, err := codec.Marshal(e)
	if err != nil {
		return errors.WithStack(err)
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(journalBucket).Put([]byte(e.MessageID), buf)
	})
}

func (j *Journal) Remove(messageID string) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(journalBucket).Delete([]byte(messageID))
	})
}

// Due returns the entries whose retry time has passed.
func (j *Journal) Due(now time.Time) ([]Entry, error) {
	var due []Entry
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(journalBucket).ForEach(func(_, v []byte) error {
			var e Entry
			if err := codec.Unmarshal(v, &e); err != nil {
				return nil
			}
			if !e.NextAt.After(now) {
				due = append(due, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return due, nil
}

// Len reports the journal depth for monitoring.
func (j *Journal) Len() (int, error) {
	var n int
	err := j.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(journalBucket).Stats().KeyN
		return nil
	})
	return n, err
}
