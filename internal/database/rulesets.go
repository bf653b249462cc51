package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/models"
	"github.com/Rafael-Renck/sistema-preco/internal/rules"
)

// RuleSetRepository stores the CBHPM rule sets.
type RuleSetRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewRuleSetRepository(db Service, logger *zap.Logger) *RuleSetRepository {
	return &RuleSetRepository{pool: db.GetPool(), logger: logger}
}

const ruleSetCols = `id, nome, versao, descricao, COALESCE(ativo, false), regras, criado_em, atualizado_em`

func scanRuleSet(row rowScanner) (*rules.Record, error) {
	var rec rules.Record
	var doc []byte
	err := row.Scan(&rec.ID, &rec.Name, &rec.Version, &rec.Description, &rec.Active, &doc, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Rules = doc
	return &rec, nil
}

// CurrentRuleSet implements rules.Source.
func (r *RuleSetRepository) CurrentRuleSet(ctx context.Context) (*rules.Record, error) {
	const operation = "database.CurrentRuleSet"

	rec, err := scanRuleSet(r.pool.QueryRow(ctx, `
		SELECT `+ruleSetCols+`
		FROM cbhpm_rulesets
		ORDER BY ativo DESC NULLS LAST, atualizado_em DESC, id DESC
		LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return rec, nil
}

// List returns every rule set, the active one first.
func (r *RuleSetRepository) List(ctx context.Context) ([]rules.Record, error) {
	const operation = "database.ListRuleSets"

	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleSetCols+`
		FROM cbhpm_rulesets
		ORDER BY ativo DESC NULLS LAST, atualizado_em DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	out := []rules.Record{}
	for rows.Next() {
		rec, err := scanRuleSet(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", operation, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return out, nil
}

// Get returns ErrNotFound for an unknown id.
func (r *RuleSetRepository) Get(ctx context.Context, id int64) (*rules.Record, error) {
	const operation = "database.GetRuleSet"

	rec, err := scanRuleSet(r.pool.QueryRow(ctx,
		`SELECT `+ruleSetCols+` FROM cbhpm_rulesets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: rule set %d: %w", operation, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return rec, nil
}

// Create inserts a rule set. An active one deactivates the others in the
// same transaction.
func (r *RuleSetRepository) Create(ctx context.Context, req models.RuleSetRequest) (*rules.Record, error) {
	const operation = "database.CreateRuleSet"

	var rec *rules.Record
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if req.Active {
			if _, err := tx.Exec(ctx, `UPDATE cbhpm_rulesets SET ativo = false WHERE ativo`); err != nil {
				return fmt.Errorf("deactivate: %w", err)
			}
		}
		var err error
		rec, err = scanRuleSet(tx.QueryRow(ctx, `
			INSERT INTO cbhpm_rulesets (nome, versao, descricao, ativo, regras, criado_em, atualizado_em)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			RETURNING `+ruleSetCols,
			req.Name, req.VersionOrNil(), req.DescriptionOrNil(), req.Active, []byte(req.Rules)))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	r.logger.Info("rule set created", zap.Int64("id", rec.ID), zap.String("nome", rec.Name), zap.Bool("ativo", rec.Active))
	return rec, nil
}

// Update replaces every field of a rule set.
func (r *RuleSetRepository) Update(ctx context.Context, id int64, req models.RuleSetRequest) (*rules.Record, error) {
	const operation = "database.UpdateRuleSet"

	var rec *rules.Record
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if req.Active {
			if _, err := tx.Exec(ctx, `UPDATE cbhpm_rulesets SET ativo = false WHERE ativo AND id <> $1`, id); err != nil {
				return fmt.Errorf("deactivate: %w", err)
			}
		}
		var err error
		rec, err = scanRuleSet(tx.QueryRow(ctx, `
			UPDATE cbhpm_rulesets
			SET nome = $2, versao = $3, descricao = $4, ativo = $5, regras = $6, atualizado_em = NOW()
			WHERE id = $1
			RETURNING `+ruleSetCols,
			id, req.Name, req.VersionOrNil(), req.DescriptionOrNil(), req.Active, []byte(req.Rules)))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: rule set %d: %w", operation, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	r.logger.Info("rule set updated", zap.Int64("id", rec.ID), zap.Bool("ativo", rec.Active))
	return rec, nil
}

// Activate makes id the only active rule set.
func (r *RuleSetRepository) Activate(ctx context.Context, id int64) (*rules.Record, error) {
	const operation = "database.ActivateRuleSet"

	var rec *rules.Record
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		rec, err = scanRuleSet(tx.QueryRow(ctx, `
			UPDATE cbhpm_rulesets SET ativo = true, atualizado_em = NOW()
			WHERE id = $1
			RETURNING `+ruleSetCols, id))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE cbhpm_rulesets SET ativo = false WHERE ativo AND id <> $1`, id)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: rule set %d: %w", operation, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	r.logger.Info("rule set activated", zap.Int64("id", id))
	return rec, nil
}
