// Package history keeps each user's most recent CBHPM simulations so they
// can be restored later.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Rafael-Renck/sistema-preco/internal/cache"
	"github.com/Rafael-Renck/sistema-preco/internal/cbhpm"
)

const (
	// MaxEntries is how many simulations are kept per user.
	MaxEntries = 5
	// MaxLabelLength caps entry labels, in ASCII characters.
	MaxLabelLength = 120
	// DefaultLabel is used when the request names nothing printable.
	DefaultLabel = "Simulacao CBHPM"
)

// entryNamespace seeds the deterministic entry ids.
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sistema-preco/simulacao_cbhpm"))

// Entry is one remembered simulation. Payload is the request that
// reproduces it.
type Entry struct {
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	CreatedAt time.Time       `json:"criado_em"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEntry builds the entry for a simulation request. Two identical
// requests get the same id.
func NewEntry(req cbhpm.Request, now time.Time) (Entry, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Entry{}, fmt.Errorf("history.NewEntry: %w", err)
	}
	return Entry{
		ID:        uuid.NewSHA1(entryNamespace, payload).String(),
		Label:     Label(req),
		CreatedAt: now.UTC(),
		Payload:   payload,
	}, nil
}

// Label describes a request as "code | codigos A, B, ... | version".
func Label(req cbhpm.Request) string {
	var parts []string
	if code := strings.TrimSpace(req.Code); code != "" {
		parts = append(parts, code)
	}
	if len(req.Codes) > 0 {
		n := min(len(req.Codes), 2)
		snippet := strings.Join(req.Codes[:n], ", ")
		if len(req.Codes) > 2 {
			snippet += ", ..."
		}
		parts = append(parts, "codigos "+snippet)
	}
	if v := strings.TrimSpace(req.Version); v != "" {
		parts = append(parts, v)
	}

	label := strings.TrimSpace(foldASCII(strings.Join(parts, " | ")))
	if len(label) > MaxLabelLength {
		label = strings.TrimSpace(label[:MaxLabelLength])
	}
	if label == "" {
		return DefaultLabel
	}
	return label
}

// foldASCII strips accents and drops whatever is still not ASCII.
func foldASCII(s string) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}
	return out
}

// Cache is the subset of the redis client the store needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store keeps the per-user lists in redis.
type Store struct {
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewStore(c Cache, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{cache: c, ttl: ttl, logger: logger}
}

func key(user string) string {
	return "cbhpm:historico:" + user
}

// List returns the user's entries, newest first.
func (s *Store) List(ctx context.Context, user string) ([]Entry, error) {
	const operation = "history.List"

	data, err := s.cache.Get(ctx, key(user))
	if errors.Is(err, cache.ErrMiss) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("dropping unreadable simulation history", zap.String("user", user), zap.Error(err))
		return []Entry{}, nil
	}
	return entries, nil
}

// Record puts e first in the user's list, replacing an older entry with the
// same id, and keeps the newest MaxEntries.
func (s *Store) Record(ctx context.Context, user string, e Entry) error {
	const operation = "history.Record"

	entries, err := s.List(ctx, user)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	out := make([]Entry, 0, MaxEntries)
	out = append(out, e)
	for _, old := range entries {
		if len(out) == MaxEntries {
			break
		}
		if old.ID != e.ID {
			out = append(out, old)
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if err := s.cache.Set(ctx, key(user), data, s.ttl); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}
