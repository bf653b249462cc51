package rules

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// DefaultName is reported as the rule set name when the built-in rules apply.
const DefaultName = "Padrao"

// cacheKey holds the serialized current Record.
const cacheKey = "cbhpm:ruleset:current"

// Record is a stored rule set.
type Record struct {
	ID          int64           `json:"id"`
	Name        string          `json:"nome"`
	Version     *string         `json:"versao"`
	Description *string         `json:"descricao"`
	Active      bool            `json:"ativo"`
	Rules       json.RawMessage `json:"regras"`
	CreatedAt   time.Time       `json:"criado_em"`
	UpdatedAt   time.Time       `json:"atualizado_em"`
}

// Meta identifies the rule set a simulation ran with.
type Meta struct {
	ID          *int64  `json:"id"`
	Name        string  `json:"nome"`
	Version     *string `json:"versao"`
	Description *string `json:"descricao"`
}

// Source reads stored rule sets.
type Source interface {
	// CurrentRuleSet returns the active rule set, or the most recently
	// updated one when none is active. It returns nil, nil when the store
	// is empty.
	CurrentRuleSet(ctx context.Context) (*Record, error)
}

// Cache is the subset of the redis client the store needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Store resolves the rule set that applies to a simulation.
type Store struct {
	source Source
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore creates a Store. cache may be nil.
func NewStore(source Source, cache Cache, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{source: source, cache: cache, ttl: ttl, logger: logger}
}

// Active returns the rules to apply and the metadata of the rule set they
// came from. It never fails: storage errors and unusable documents are
// logged and the built-in rules are returned instead.
func (s *Store) Active(ctx context.Context) (RuleSet, Meta) {
	rec, err := s.current(ctx)
	if err != nil {
		s.logger.Warn("failed to load active rule set, using defaults", zap.Error(err))
		return s.fallback()
	}
	if rec == nil {
		return s.fallback()
	}

	rs, err := Parse(rec.Rules)
	if err != nil {
		s.logger.Warn("stored rule set is not usable, using defaults",
			zap.Int64("ruleset_id", rec.ID),
			zap.Error(err),
		)
		rs = Default()
	}

	id := rec.ID
	meta := Meta{ID: &id, Name: rec.Name, Version: rec.Version, Description: rec.Description}
	if meta.Name == "" {
		meta.Name = DefaultName
	}
	return rs, meta
}

// Invalidate drops the cached rule set so the next read goes to the source.
func (s *Store) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey); err != nil {
		s.logger.Warn("failed to invalidate rule set cache", zap.Error(err))
	}
}

func (s *Store) current(ctx context.Context) (*Record, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var rec Record
			if err := json.Unmarshal(data, &rec); err == nil {
				return &rec, nil
			}
		}
	}

	rec, err := s.source.CurrentRuleSet(ctx)
	if err != nil || rec == nil {
		return rec, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(rec); err == nil {
			if err := s.cache.Set(ctx, cacheKey, data, s.ttl); err != nil {
				s.logger.Debug("failed to cache rule set", zap.Error(err))
			}
		}
	}
	return rec, nil
}

func (s *Store) fallback() (RuleSet, Meta) {
	rs := Default()
	desc := rs.Description
	return rs, Meta{Name: DefaultName, Description: &desc}
}
