// Package database holds the Postgres connection and the repositories that
// read the imported price tables, the rule sets and the ceilings.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/config"
)

// ErrNotFound is returned when a row addressed by key does not exist.
var ErrNotFound = errors.New("database: not found")

// Service exposes the pool to repositories and health checks.
type Service interface {
	GetPool() *pgxpool.Pool
	Health(ctx context.Context) map[string]string
	Close()
}

type service struct {
	pool *pgxpool.Pool
}

// New connects to Postgres, retrying with exponential backoff until
// cfg.ConnectTimeout elapses.
func New(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (Service, error) {
	const operation = "database.New"

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%s: parse config: %w", operation, err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.MaxElapsedTime = cfg.ConnectTimeout
	retryPolicy.MaxInterval = 15 * time.Second

	logger.Info("connecting to PostgreSQL", zap.String("host", poolCfg.ConnConfig.Host))

	var pool *pgxpool.Pool
	err = backoff.RetryNotify(
		func() error {
			p, err := pgxpool.NewWithConfig(ctx, poolCfg)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			if err := p.Ping(ctx); err != nil {
				p.Close()
				return fmt.Errorf("ping: %w", err)
			}
			pool = p
			return nil
		},
		backoff.WithContext(retryPolicy, ctx),
		func(err error, next time.Duration) {
			logger.Warn("PostgreSQL connection failed, retrying",
				zap.Error(err),
				zap.Duration("next_attempt_in", next))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect after retries: %w", operation, err)
	}

	logger.Info("connected to PostgreSQL")
	return &service{pool: pool}, nil
}

func (s *service) GetPool() *pgxpool.Pool {
	return s.pool
}

// Health pings the database and reports pool statistics.
func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	stats := map[string]string{}
	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}

	st := s.pool.Stat()
	stats["status"] = "up"
	stats["total_conns"] = fmt.Sprint(st.TotalConns())
	stats["idle_conns"] = fmt.Sprint(st.IdleConns())
	stats["acquired_conns"] = fmt.Sprint(st.AcquiredConns())
	return stats
}

func (s *service) Close() {
	s.pool.Close()
}
