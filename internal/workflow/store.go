package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrNoSuchSession is returned when no checkpoint exists for a session.
var ErrNoSuchSession = errors.New("workflow: no run for session")

// Store persists run checkpoints keyed by session identifier. The state
// machine depends only on this interface, not on a storage technology.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)
}

// MemoryStore keeps serialized checkpoints in process memory. It is used by
// tests and single-node deployments. Checkpoints round-trip through JSON so
// loads never alias a caller's live run state.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, cp *Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[cp.SessionID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Checkpoint, error) {
	s.mu.RLock()
	raw, ok := s.data[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNoSuchSession
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
