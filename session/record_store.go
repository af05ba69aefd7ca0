package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/teammesh/core"
)

// RecordStore persists conversations as JSON records in a core.DataStore, so
// they live wherever the rest of the team's data lives.
type RecordStore struct {
	store core.DataStore
	now   func() time.Time
}

var _ Store = (*RecordStore)(nil)

// NewRecordStore returns a Store over store.
func NewRecordStore(store core.DataStore) *RecordStore {
	return &RecordStore{store: store, now: time.Now}
}

func key(id string) string { return "session-" + id }

// Get implements Store.
func (s *RecordStore) Get(ctx context.Context, id string) (*Conversation, bool, error) {
	rec, ok, err := s.store.GetDataSingle(ctx, key(id), core.Meta{})
	if err != nil || !ok {
		return nil, false, err
	}

	var conv Conversation
	if err := json.Unmarshal([]byte(rec.Content), &conv); err != nil {
		return nil, false, fmt.Errorf("decode conversation %s: %w", id, err)
	}

	return &conv, true, nil
}

// Save implements Store.
func (s *RecordStore) Save(ctx context.Context, conv *Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("session: conversation id is empty")
	}

	cp := *conv
	cp.UpdatedAt = s.now()

	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}

	_, err = s.store.StoreData(ctx, core.Record{
		Key:     key(conv.ID),
		Content: string(raw),
	}, false)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}

	return nil
}

// Delete implements Store.
func (s *RecordStore) Delete(ctx context.Context, id string) error {
	rec, ok, err := s.store.GetDataSingle(ctx, key(id), core.Meta{})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("conversation %q: %w", id, core.ErrNotFound)
	}
	return s.store.DeleteData(ctx, rec.ID)
}
