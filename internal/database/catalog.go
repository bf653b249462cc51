package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/money"
)

// CatalogRepository reads the imported price tables.
type CatalogRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewCatalogRepository(db Service, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{pool: db.GetPool(), logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const tableColumns = `t.id, t.nome, t.id_operadora, t.uf, t.tipo_tabela, t.data_vigencia, t.uco_valor::text, t.prestador`

func scanTable(row rowScanner) (*catalog.PriceTable, error) {
	var (
		t         catalog.PriceTable
		uf, typ   *string
		provider  *string
		ucoValue  *string
		effective *time.Time
	)
	if err := row.Scan(&t.ID, &t.Name, &t.OperatorID, &uf, &typ, &effective, &ucoValue, &provider); err != nil {
		return nil, err
	}
	t.UF = str(uf)
	t.Type = catalog.TableType(str(typ))
	t.EffectiveDate = effective
	t.UCOValue = nullDecimal(ucoValue)
	t.Provider = str(provider)
	return &t, nil
}

func (r *CatalogRepository) queryTable(ctx context.Context, operation, sql string, args ...any) (*catalog.PriceTable, error) {
	t, err := scanTable(r.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return t, nil
}

// ── Pricing reads ────────────────────────────────────────────────

// FindProcedure implements cbhpm.Catalog.
func (r *CatalogRepository) FindProcedure(ctx context.Context, q catalog.ProcedureQuery) (*catalog.ProcedureItem, *catalog.PriceTable, error) {
	const operation = "database.FindProcedure"

	if q.Code == "" {
		return nil, nil, nil
	}

	row := r.pool.QueryRow(ctx, `
		SELECT i.id, i.id_tabela, i.codigo, i.procedimento, i.uf,
		       i.porte, i.fracao_porte::text, i.valor_porte::text, i.total_porte::text,
		       i.filme::text, i.incidencias, i.total_filme::text,
		       i.uco::text, i.total_uco::text,
		       i.porte_anestesico, i.valor_porte_anestesico::text, i.total_porte_anestesico::text,
		       i.numero_auxiliares, i.total_auxiliares::text,
		       i.total_1_aux::text, i.total_2_aux::text, i.total_3_aux::text, i.total_4_aux::text,
		       i.subtotal::text,
		       `+tableColumns+`
		FROM cbhpm_itens i
		JOIN tabelas t ON t.id = i.id_tabela
		WHERE (i.codigo = $1 OR i.codigo ILIKE $2 ESCAPE '\')
		  AND (($3 = '' AND t.tipo_tabela = 'cbhpm') OR ($3 <> '' AND t.nome = $3))
		  AND ($4 = '' OR i.uf = $4 OR t.uf = $4)
		ORDER BY (i.codigo = $1) DESC, i.id
		LIMIT 1`,
		q.Code, likeEscape(q.Code)+"%", q.TableName, q.UF)

	var (
		item                                    catalog.ProcedureItem
		uf, porte, anesthPorte, incidences      *string
		fraction, porteValue, totalPorte        *string
		film, totalFilm, uco, totalUCO          *string
		anesthValue, totalAnesth, totalAux, sub *string
		aux                                     [catalog.MaxAssistantSlots]*string
		t                                       catalog.PriceTable
		tUF, tType, tProvider, tUCO             *string
		tEffective                              *time.Time
	)
	err := row.Scan(
		&item.ID, &item.TableID, &item.Code, &item.Description, &uf,
		&porte, &fraction, &porteValue, &totalPorte,
		&film, &incidences, &totalFilm,
		&uco, &totalUCO,
		&anesthPorte, &anesthValue, &totalAnesth,
		&item.AssistantCount, &totalAux,
		&aux[0], &aux[1], &aux[2], &aux[3],
		&sub,
		&t.ID, &t.Name, &t.OperatorID, &tUF, &tType, &tEffective, &tUCO, &tProvider,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", operation, err)
	}

	item.UF = str(uf)
	item.PorteCode = str(porte)
	item.PorteFraction = nullDecimal(fraction)
	item.PorteValue = nullDecimal(porteValue)
	item.TotalPorte = nullDecimal(totalPorte)
	item.FilmValue = nullDecimal(film)
	item.Incidences = nullDecimal(incidences)
	item.TotalFilm = nullDecimal(totalFilm)
	item.UCOCount = nullDecimal(uco)
	item.TotalUCO = nullDecimal(totalUCO)
	item.AnesthesiaPorteCode = str(anesthPorte)
	item.AnesthesiaPorteValue = nullDecimal(anesthValue)
	item.TotalAnesthesia = nullDecimal(totalAnesth)
	item.TotalAssistants = nullDecimal(totalAux)
	for i, v := range aux {
		item.AssistantTotals[i] = nullDecimal(v)
	}
	item.Subtotal = nullDecimal(sub)

	t.UF = str(tUF)
	t.Type = catalog.TableType(str(tType))
	t.EffectiveDate = tEffective
	t.UCOValue = nullDecimal(tUCO)
	t.Provider = str(tProvider)
	return &item, &t, nil
}

// TableByName implements cbhpm.Catalog.
func (r *CatalogRepository) TableByName(ctx context.Context, name string) (*catalog.PriceTable, error) {
	return r.queryTable(ctx, "database.TableByName",
		`SELECT `+tableColumns+` FROM tabelas t WHERE t.nome = $1 ORDER BY t.id LIMIT 1`, name)
}

// FirstTableOfType implements cbhpm.Catalog.
func (r *CatalogRepository) FirstTableOfType(ctx context.Context, typ catalog.TableType) (*catalog.PriceTable, error) {
	return r.queryTable(ctx, "database.FirstTableOfType",
		`SELECT `+tableColumns+` FROM tabelas t WHERE t.tipo_tabela = $1 ORDER BY t.id LIMIT 1`, string(typ))
}

// DefaultOperatorID implements cbhpm.Catalog.
func (r *CatalogRepository) DefaultOperatorID(ctx context.Context) (int64, error) {
	const operation = "database.DefaultOperatorID"

	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM operadoras ORDER BY id LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", operation, err)
	}
	return id, nil
}

// LatestTable implements catalog.TableSource.
func (r *CatalogRepository) LatestTable(ctx context.Context, q catalog.TableQuery) (*catalog.PriceTable, error) {
	return r.queryTable(ctx, "database.LatestTable", `
		SELECT `+tableColumns+`
		FROM tabelas t
		WHERE t.tipo_tabela = $1
		  AND t.id_operadora = $2
		  AND ($3 = '' OR t.uf = $3)
		  AND ($4 = '' OR t.nome ILIKE '%' || $4 || '%' ESCAPE '\')
		ORDER BY t.data_vigencia DESC NULLS LAST, t.id DESC
		LIMIT 1`,
		string(q.Type), q.OperatorID, q.UF, likeEscape(q.NameContains))
}

// TierValue implements catalog.TableSource.
func (r *CatalogRepository) TierValue(ctx context.Context, tableID int64, kind catalog.TableType, code string) (decimal.NullDecimal, error) {
	const operation = "database.TierValue"

	var sql string
	switch kind {
	case catalog.TablePorte:
		sql = `SELECT valor::text FROM porte_valores WHERE id_tabela = $1 AND porte = $2 LIMIT 1`
	case catalog.TablePorteAnestesico:
		sql = `SELECT valor::text FROM porte_anestesico_valores WHERE id_tabela = $1 AND porte_an = $2 LIMIT 1`
	default:
		return decimal.NullDecimal{}, fmt.Errorf("%s: no tier values for table type %q", operation, kind)
	}

	var value *string
	err := r.pool.QueryRow(ctx, sql, tableID, code).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.NullDecimal{}, nil
	}
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s: %w", operation, err)
	}
	return nullDecimal(value), nil
}

// ── Browse reads ─────────────────────────────────────────────────

// SearchPackages lists the rows of a diárias/taxas/pacotes table.
func (r *CatalogRepository) SearchPackages(ctx context.Context, q catalog.PackageQuery) ([]catalog.PackageItem, error) {
	const operation = "database.SearchPackages"

	limit := q.Limit
	if limit <= 0 {
		limit = catalog.DefaultPackageLimit
	}
	term := likeEscape(q.Query)

	rows, err := r.pool.Query(ctx, `
		SELECT p.codigo, p.descricao, p.valor::text, t.nome, COALESCE(p.uf, '')
		FROM procedimentos p
		JOIN tabelas t ON t.id = p.id_tabela
		WHERE t.id = (
			SELECT id FROM tabelas WHERE nome = $1 AND tipo_tabela = 'diarias_taxas_pacotes' ORDER BY id LIMIT 1
		)
		  AND ($2 = '' OR p.uf = $2 OR t.uf = $2)
		  AND ($3 = '' OR p.codigo = $4 OR p.codigo ILIKE $3 || '%' ESCAPE '\' OR p.descricao ILIKE '%' || $3 || '%' ESCAPE '\')
		ORDER BY p.codigo
		LIMIT $5`,
		q.TableName, q.UF, term, q.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	items := []catalog.PackageItem{}
	for rows.Next() {
		var (
			p     catalog.PackageItem
			value *string
		)
		if err := rows.Scan(&p.Code, &p.Description, &value, &p.TableName, &p.UF); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", operation, err)
		}
		p.Value = money.NewAmount(nullDecimal(value))
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return items, nil
}

// VersionsForCode lists the cbhpm tables that carry code.
func (r *CatalogRepository) VersionsForCode(ctx context.Context, code, uf string) ([]string, error) {
	return r.strings(ctx, "database.VersionsForCode", `
		SELECT DISTINCT t.nome
		FROM tabelas t
		JOIN cbhpm_itens i ON i.id_tabela = t.id
		WHERE t.tipo_tabela = 'cbhpm'
		  AND ($2 = '' OR t.uf = $2 OR i.uf = $2)
		  AND (i.codigo = $1 OR i.codigo ILIKE $3 ESCAPE '\')
		ORDER BY t.nome`,
		code, uf, likeEscape(code)+"%")
}

// ProvidersForCode lists the providers of a table that carry code.
func (r *CatalogRepository) ProvidersForCode(ctx context.Context, tableName, code, uf string) ([]string, error) {
	return r.strings(ctx, "database.ProvidersForCode", `
		SELECT DISTINCT p.prestador
		FROM procedimentos p
		JOIN tabelas t ON t.id = p.id_tabela
		WHERE t.nome = $1
		  AND ($3 = '' OR t.uf = $3 OR p.uf = $3)
		  AND (p.codigo = $2 OR p.codigo ILIKE $4 ESCAPE '\')
		  AND p.prestador IS NOT NULL AND p.prestador <> ''
		ORDER BY p.prestador`,
		tableName, code, uf, likeEscape(code)+"%")
}

func (r *CatalogRepository) strings(ctx context.Context, operation, sql string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// Observations reads the prices to compare, in table then code order.
func (r *CatalogRepository) Observations(ctx context.Context, q catalog.ObservationQuery) ([]catalog.PriceObservation, error) {
	const operation = "database.Observations"

	if len(q.Codes) == 0 {
		return nil, nil
	}
	columns := q.Columns
	if columns == nil {
		columns = []string{}
	}

	var (
		rows pgx.Rows
		err  error
	)
	switch q.Mode {
	case catalog.CompareVersions:
		rows, err = r.pool.Query(ctx, `
			SELECT i.codigo, i.procedimento, t.nome,
			       i.subtotal::text, i.total_porte::text, i.valor_porte::text,
			       i.total_uco::text, i.uco::text, i.total_filme::text, i.filme::text
			FROM cbhpm_itens i
			JOIN tabelas t ON t.id = i.id_tabela
			WHERE t.tipo_tabela = 'cbhpm'
			  AND i.codigo = ANY($1)
			  AND (cardinality($2::text[]) = 0 OR t.nome = ANY($2))
			  AND ($3 = '' OR t.uf = $3 OR i.uf = $3)
			ORDER BY t.nome, i.codigo, i.id`,
			q.Codes, columns, q.UF)
	case catalog.CompareProviders:
		rows, err = r.pool.Query(ctx, `
			SELECT p.codigo, p.descricao, COALESCE(NULLIF(p.prestador, ''), $5), p.valor::text
			FROM procedimentos p
			JOIN tabelas t ON t.id = p.id_tabela
			WHERE t.nome = $1
			  AND p.codigo = ANY($2)
			  AND (cardinality($3::text[]) = 0 OR COALESCE(NULLIF(p.prestador, ''), $5) = ANY($3))
			  AND ($4 = '' OR t.uf = $4 OR p.uf = $4)
			ORDER BY p.codigo, p.id`,
			q.TableName, q.Codes, columns, q.UF, catalog.NoProvider)
	default:
		return nil, fmt.Errorf("%s: unknown mode %q", operation, q.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	var out []catalog.PriceObservation
	for rows.Next() {
		var o catalog.PriceObservation
		if q.Mode == catalog.CompareVersions {
			var item catalog.ProcedureItem
			var sub, tp, vp, tu, u, tf, f *string
			if err := rows.Scan(&o.Code, &o.Description, &o.Column, &sub, &tp, &vp, &tu, &u, &tf, &f); err != nil {
				return nil, fmt.Errorf("%s: scan: %w", operation, err)
			}
			item.Subtotal, item.TotalPorte, item.PorteValue = nullDecimal(sub), nullDecimal(tp), nullDecimal(vp)
			item.TotalUCO, item.UCOCount = nullDecimal(tu), nullDecimal(u)
			item.TotalFilm, item.FilmValue = nullDecimal(tf), nullDecimal(f)
			o.Value = item.ListValue()
		} else {
			var value *string
			if err := rows.Scan(&o.Code, &o.Description, &o.Column, &value); err != nil {
				return nil, fmt.Errorf("%s: scan: %w", operation, err)
			}
			o.Value = nullDecimal(value)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return out, nil
}

// ── Writes ───────────────────────────────────────────────────────

// SetUCOValue sets the UCO unit value of a cbhpm table and returns it.
func (r *CatalogRepository) SetUCOValue(ctx context.Context, tableID int64, value decimal.NullDecimal) (*catalog.PriceTable, error) {
	const operation = "database.SetUCOValue"

	t, err := scanTable(r.pool.QueryRow(ctx, `
		UPDATE tabelas t SET uco_valor = $2::numeric
		WHERE t.id = $1 AND t.tipo_tabela = 'cbhpm'
		RETURNING `+tableColumns,
		tableID, textOrNil(value)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: table %d: %w", operation, tableID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return t, nil
}
