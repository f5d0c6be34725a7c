package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"raseed/internal/core"
	"raseed/internal/storage"
)

// Persister reads and writes one device's session.
type Persister interface {
	// LoadSession returns a nil profile when nothing was persisted yet.
	LoadSession(ctx context.Context, deviceID string) (*core.UserProfile, error)
	SaveSession(ctx context.Context, deviceID string, user *core.UserProfile) error
}

// envelope is the persisted shape: only the user is stored, never the
// hydration flag.
type envelope struct {
	State struct {
		User *core.UserProfile `json:"user"`
	} `json:"state"`
	Version int `json:"version"`
}

// StoragePersister keeps sessions in a storage.KeyValue under
// storage.SessionKey.
type StoragePersister struct {
	kv storage.KeyValue
}

func NewStoragePersister(kv storage.KeyValue) *StoragePersister {
	return &StoragePersister{kv: kv}
}

func (p *StoragePersister) LoadSession(ctx context.Context, deviceID string) (*core.UserProfile, error) {
	raw, err := p.kv.Get(ctx, deviceID, storage.SessionKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return env.State.User, nil
}

func (p *StoragePersister) SaveSession(ctx context.Context, deviceID string, user *core.UserProfile) error {
	var env envelope
	env.State.User = user
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := p.kv.Put(ctx, deviceID, storage.SessionKey, raw); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
