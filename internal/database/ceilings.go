package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
)

// CeilingRepository stores the per-code ceilings (cbhpm_teto).
type CeilingRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewCeilingRepository(db Service, logger *zap.Logger) *CeilingRepository {
	return &CeilingRepository{pool: db.GetPool(), logger: logger}
}

const ceilingCols = `codigo, descricao, valor_total::text, COALESCE(updated_at, NOW())`

func scanCeiling(row rowScanner) (catalog.Ceiling, bool, error) {
	var (
		c     catalog.Ceiling
		desc  *string
		total *string
	)
	if err := row.Scan(&c.Code, &desc, &total, &c.UpdatedAt); err != nil {
		return c, false, err
	}
	c.Description = str(desc)
	v := nullDecimal(total)
	if !v.Valid {
		return c, false, nil
	}
	c.Total = v.Decimal
	return c, true, nil
}

// Ceilings implements cbhpm.CeilingSource. Rows without a usable value are
// left out.
func (r *CeilingRepository) Ceilings(ctx context.Context, codes []string) (map[string]catalog.Ceiling, error) {
	const operation = "database.Ceilings"

	out := map[string]catalog.Ceiling{}
	keys := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = catalog.NormalizeCode(c); c != "" {
			keys = append(keys, c)
		}
	}
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+ceilingCols+` FROM cbhpm_teto WHERE codigo = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	for rows.Next() {
		c, ok, err := scanCeiling(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", operation, err)
		}
		if ok {
			out[catalog.NormalizeCode(c.Code)] = c
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return out, nil
}

// List returns one page of ceilings ordered by code, and the total count.
// q matches code or description as a substring.
func (r *CeilingRepository) List(ctx context.Context, q string, page, perPage int) ([]catalog.Ceiling, int, error) {
	const operation = "database.ListCeilings"

	page = max(page, 1)
	term := likeEscape(strings.TrimSpace(q))
	where := `WHERE ($1 = '' OR codigo ILIKE '%' || $1 || '%' ESCAPE '\' OR descricao ILIKE '%' || $1 || '%' ESCAPE '\')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cbhpm_teto `+where, term).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", operation, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+ceilingCols+`
		FROM cbhpm_teto `+where+`
		ORDER BY codigo
		LIMIT $2 OFFSET $3`,
		term, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	out := []catalog.Ceiling{}
	for rows.Next() {
		c, _, err := scanCeiling(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: scan: %w", operation, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", operation, err)
	}
	return out, total, nil
}

// Upsert writes ceilings in one batch and reports how many codes were new.
func (r *CeilingRepository) Upsert(ctx context.Context, ceilings []catalog.Ceiling) (inserted, updated int, err error) {
	const operation = "database.UpsertCeilings"

	if len(ceilings) == 0 {
		return 0, 0, nil
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range ceilings {
			// xmax is 0 only for rows this statement inserted.
			batch.Queue(`
				INSERT INTO cbhpm_teto (codigo, descricao, valor_total, updated_at)
				VALUES ($1, $2, $3::numeric, NOW())
				ON CONFLICT (codigo) DO UPDATE
				SET descricao = EXCLUDED.descricao, valor_total = EXCLUDED.valor_total, updated_at = NOW()
				RETURNING (xmax = 0)`,
				catalog.NormalizeCode(c.Code), c.Description, c.Total.String())
		}

		results := tx.SendBatch(ctx, batch)
		for range ceilings {
			var isNew bool
			if err := results.QueryRow().Scan(&isNew); err != nil {
				results.Close()
				return err
			}
			if isNew {
				inserted++
			} else {
				updated++
			}
		}
		return results.Close()
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", operation, err)
	}

	r.logger.Info("teto import applied",
		zap.Int("total", len(ceilings)),
		zap.Int("inserted", inserted),
		zap.Int("updated", updated),
	)
	return inserted, updated, nil
}

// Delete removes the ceiling of code.
func (r *CeilingRepository) Delete(ctx context.Context, code string) error {
	const operation = "database.DeleteCeiling"

	tag, err := r.pool.Exec(ctx, `DELETE FROM cbhpm_teto WHERE codigo = $1`, catalog.NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: ceiling %s: %w", operation, code, ErrNotFound)
	}
	return nil
}
