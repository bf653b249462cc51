package ceilings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/storage"
)

// ErrPreviewNotFound is returned for unknown, malformed and expired tokens.
var ErrPreviewNotFound = errors.New("ceilings: preview not found or expired")

// PreviewPrefix is where previews are kept inside the object store.
const PreviewPrefix = "previews/tetos/"

// PreviewStore persists previews as JSON objects keyed by a random token.
type PreviewStore struct {
	store  storage.Store
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewPreviewStore(store storage.Store, ttl time.Duration, logger *zap.Logger) *PreviewStore {
	return &PreviewStore{store: store, ttl: ttl, now: time.Now, logger: logger}
}

// TTL is how long a saved preview can be confirmed.
func (s *PreviewStore) TTL() time.Duration {
	return s.ttl
}

func previewKey(token string) (string, bool) {
	id, err := uuid.Parse(token)
	if err != nil {
		return "", false
	}
	return PreviewPrefix + id.String() + ".json", true
}

// Save stores p under a new token, which is also set on p.
func (s *PreviewStore) Save(ctx context.Context, p *Preview) (string, error) {
	const operation = "ceilings.Save"

	p.Token = uuid.NewString()
	p.CreatedAt = s.now().UTC()

	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("%s: %w", operation, err)
	}
	key, _ := previewKey(p.Token)
	if _, err := s.store.Save(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("%s: %w", operation, err)
	}

	s.logger.Info("teto preview saved",
		zap.String("token", p.Token),
		zap.Int("rows", len(p.Rows)),
		zap.Int("errors", len(p.Errors)),
		zap.String("total", p.total().StringFixed(2)),
	)
	return p.Token, nil
}

// Load returns the preview saved under token. Previews older than the TTL
// are discarded and reported as not found.
func (s *PreviewStore) Load(ctx context.Context, token string) (*Preview, error) {
	const operation = "ceilings.Load"

	key, ok := previewKey(strings.TrimSpace(token))
	if !ok {
		return nil, ErrPreviewNotFound
	}

	rc, _, err := s.store.Open(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPreviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rc.Close()

	var p Preview
	if err := json.NewDecoder(rc).Decode(&p); err != nil {
		s.logger.Warn("discarding unreadable teto preview", zap.String("token", token), zap.Error(err))
		_ = s.store.Delete(ctx, key)
		return nil, ErrPreviewNotFound
	}

	if s.ttl > 0 && s.now().Sub(p.CreatedAt) > s.ttl {
		_ = s.store.Delete(ctx, key)
		return nil, ErrPreviewNotFound
	}
	return &p, nil
}

// Discard removes a preview. Unknown tokens are ignored.
func (s *PreviewStore) Discard(ctx context.Context, token string) error {
	key, ok := previewKey(strings.TrimSpace(token))
	if !ok {
		return nil
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("ceilings.Discard: %w", err)
	}
	return nil
}

// Sweep deletes previews last written before now minus maxAge and returns
// how many were removed.
func (s *PreviewStore) Sweep(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	const operation = "ceilings.Sweep"

	files, err := s.store.List(ctx, PreviewPrefix)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", operation, err)
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	for _, f := range files {
		if !f.ModTime.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, f.Path); err != nil {
			s.logger.Warn("failed to delete expired teto preview", zap.String("path", f.Path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
