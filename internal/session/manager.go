package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names the principal a session belongs to.
type Kind string

// Session kinds.
const (
	KindAdmin  Kind = "admin"
	KindClinic Kind = "clinic"
)

// Session is an authenticated login. Its ID is embedded in the issued token.
type Session struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	SubjectID uint64    `json:"subject_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager issues, validates and revokes sessions on a Store.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager creates a Manager on store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

func sessionKey(id string) string { return "session:" + id }

func pendingKey(purpose, id string) string { return "pending:" + purpose + ":" + id }

// Create starts a session for subjectID lasting ttl.
func (m *Manager) Create(ctx context.Context, kind Kind, subjectID uint64, ttl time.Duration) (*Session, error) {
	now := m.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		SubjectID: subjectID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	raw, errMarshal := json.Marshal(sess)
	if errMarshal != nil {
		return nil, errMarshal
	}
	if errSet := m.store.Set(ctx, sessionKey(sess.ID), raw, ttl); errSet != nil {
		return nil, fmt.Errorf("session: store: %w", errSet)
	}
	return sess, nil
}

// Validate returns the live session id if it belongs to kind and subjectID.
func (m *Manager) Validate(ctx context.Context, id string, kind Kind, subjectID uint64) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	raw, errGet := m.store.Get(ctx, sessionKey(id))
	if errGet != nil {
		return nil, errGet
	}
	var sess Session
	if errDecode := json.Unmarshal(raw, &sess); errDecode != nil {
		return nil, fmt.Errorf("session: decode: %w", errDecode)
	}
	if sess.Kind != kind || sess.SubjectID != subjectID {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Revoke ends a session. Revoking an unknown session is not an error.
func (m *Manager) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Delete(ctx, sessionKey(id))
}

// PutPending stores a short-lived value such as an unconfirmed TOTP secret.
func (m *Manager) PutPending(ctx context.Context, purpose, id, value string, ttl time.Duration) error {
	return m.store.Set(ctx, pendingKey(purpose, id), []byte(value), ttl)
}

// Pending returns a value stored by PutPending.
func (m *Manager) Pending(ctx context.Context, purpose, id string) (string, error) {
	raw, err := m.store.Get(ctx, pendingKey(purpose, id))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// TakePending returns a value stored by PutPending and removes it. Concurrent
// callers race for the value and only one of them gets it.
func (m *Manager) TakePending(ctx context.Context, purpose, id string) (string, error) {
	raw, err := m.store.Take(ctx, pendingKey(purpose, id))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DropPending removes a pending value.
func (m *Manager) DropPending(ctx context.Context, purpose, id string) error {
	return m.store.Delete(ctx, pendingKey(purpose, id))
}

// IsNotFound reports whether err means the entry is missing or expired.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
