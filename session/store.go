// Package session persists workflow progress so that a crashed or
// interrupted run can resume from its last checkpoint. Each session is one
// JSON document under <projectRoot>/.agentpipe/sessions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
)

// ErrNotFound is returned when a session id has no stored snapshot.
var ErrNotFound = errors.New("session not found")

const sessionsDir = ".agentpipe/sessions"

// Snapshot is one persisted checkpoint of a run. Context holds the
// marshalled workflow context; the store does not interpret it.
type Snapshot struct {
	ID         string                  `json:"id"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
	Context    json.RawMessage         `json:"context"`
	TokenUsage []types.TokenUsageEntry `json:"token_usage"`
}

// Store persists and retrieves session snapshots.
type Store interface {
	// Save writes a snapshot. An empty sessionID allocates a new session;
	// the session's id is returned either way.
	Save(ctx context.Context, projectRoot string, wctx json.RawMessage, usage []types.TokenUsageEntry, sessionID string) (string, error)

	// Load reads the snapshot for sessionID. ErrNotFound when absent.
	Load(ctx context.Context, projectRoot, sessionID string) (*Snapshot, error)

	// Latest returns the most recently updated snapshot, ErrNotFound when
	// the project has none.
	Latest(ctx context.Context, projectRoot string) (*Snapshot, error)

	// List returns all session ids for the project, newest first.
	List(ctx context.Context, projectRoot string) ([]string, error)

	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, projectRoot, sessionID string) error
}

// FileStore is the default Store: one JSON file per session.
type FileStore struct {
	logger *zap.Logger
}

// NewFileStore creates a FileStore.
func NewFileStore(logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		logger: logger.With(zap.String("component", "session_store")),
	}
}

func (s *FileStore) dir(projectRoot string) string {
	return filepath.Join(projectRoot, sessionsDir)
}

func (s *FileStore) path(projectRoot, sessionID string) string {
	return filepath.Join(s.dir(projectRoot), sessionID+".json")
}

// Save implements Store. Writes go through a temp file and rename so a
// crash mid-write never corrupts the previous checkpoint.
func (s *FileStore) Save(ctx context.Context, projectRoot string, wctx json.RawMessage, usage []types.TokenUsageEntry, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := s.dir(projectRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create sessions dir: %w", err)
	}

	now := time.Now()
	snap := Snapshot{
		ID:         sessionID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Context:    wctx,
		TokenUsage: usage,
	}

	if snap.ID == "" {
		snap.ID = uuid.NewString()
	} else if existing, err := s.Load(ctx, projectRoot, snap.ID); err == nil {
		snap.CreatedAt = existing.CreatedAt
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	target := s.path(projectRoot, snap.ID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", fmt.Errorf("commit session: %w", err)
	}

	s.logger.Debug("session saved",
		zap.String("session_id", snap.ID),
		zap.String("path", target),
	)

	return snap.ID, nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, projectRoot, sessionID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(projectRoot, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &snap, nil
}

// Latest implements Store.
func (s *FileStore) Latest(ctx context.Context, projectRoot string) (*Snapshot, error) {
	ids, err := s.List(ctx, projectRoot)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.Load(ctx, projectRoot, ids[0])
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, projectRoot string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir(projectRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	type stamped struct {
		id      string
		updated time.Time
	}
	sessions := make([]stamped, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		snap, err := s.Load(ctx, projectRoot, id)
		if err != nil {
			s.logger.Warn("skipping unreadable session", zap.String("file", name), zap.Error(err))
			continue
		}
		sessions = append(sessions, stamped{id: id, updated: snap.UpdatedAt})
	}

	sort.Slice(sessions, func(a, b int) bool {
		return sessions[a].updated.After(sessions[b].updated)
	})

	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.id
	}
	return ids, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, projectRoot, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(s.path(projectRoot, sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
