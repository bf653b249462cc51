package catalog

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Resolution is the outcome of a tier lookup: the value found and the
// table it came from. Both are empty on a miss.
type Resolution struct {
	Value     decimal.NullDecimal
	TableName string
}

// Resolver looks up porte and anesthesia-porte values for procedure items
// that do not carry a value of their own.
type Resolver struct {
	source TableSource
	logger *zap.Logger
}

// NewResolver creates a Resolver over source.
func NewResolver(source TableSource, logger *zap.Logger) *Resolver {
	return &Resolver{source: source, logger: logger}
}

// Resolve finds the value of code in a table of the given kind.
//
// Tables whose name contains hint are tried first; on a miss the newest
// table of the kind for the operator (and UF, when set) is used. Backend
// errors are logged and treated as misses.
func (r *Resolver) Resolve(ctx context.Context, kind TableType, operatorID int64, uf, hint, code string) Resolution {
	code = strings.TrimSpace(code)
	if code == "" {
		return Resolution{}
	}

	base := TableQuery{Type: kind, OperatorID: operatorID, UF: strings.TrimSpace(uf)}

	if hint = strings.TrimSpace(hint); hint != "" {
		q := base
		q.NameContains = hint
		if res, ok := r.lookup(ctx, q, code); ok {
			return res
		}
	}

	if res, ok := r.lookup(ctx, base, code); ok {
		return res
	}
	return Resolution{}
}

func (r *Resolver) lookup(ctx context.Context, q TableQuery, code string) (Resolution, bool) {
	table, err := r.source.LatestTable(ctx, q)
	if err != nil {
		r.logger.Warn("tier table lookup failed",
			zap.String("kind", string(q.Type)),
			zap.Int64("operator_id", q.OperatorID),
			zap.String("hint", q.NameContains),
			zap.Error(err),
		)
		return Resolution{}, false
	}
	if table == nil {
		return Resolution{}, false
	}

	v, err := r.source.TierValue(ctx, table.ID, q.Type, code)
	if err != nil {
		r.logger.Warn("tier value lookup failed",
			zap.Int64("table_id", table.ID),
			zap.String("code", code),
			zap.Error(err),
		)
		return Resolution{}, false
	}
	if !v.Valid {
		return Resolution{}, false
	}
	return Resolution{Value: v, TableName: table.Name}, true
}

// PorteValue resolves a surgical porte value.
func (r *Resolver) PorteValue(ctx context.Context, operatorID int64, uf, hint, code string) decimal.NullDecimal {
	return r.Resolve(ctx, TablePorte, operatorID, uf, hint, code).Value
}

// PorteTableName reports which porte table PorteValue would read from.
func (r *Resolver) PorteTableName(ctx context.Context, operatorID int64, uf, hint, code string) string {
	return r.Resolve(ctx, TablePorte, operatorID, uf, hint, code).TableName
}

// AnesthesiaValue resolves an anesthesia porte value.
func (r *Resolver) AnesthesiaValue(ctx context.Context, operatorID int64, uf, hint, code string) decimal.NullDecimal {
	return r.Resolve(ctx, TablePorteAnestesico, operatorID, uf, hint, code).Value
}

// AnesthesiaTableName reports which anesthesia table AnesthesiaValue would read from.
func (r *Resolver) AnesthesiaTableName(ctx context.Context, operatorID int64, uf, hint, code string) string {
	return r.Resolve(ctx, TablePorteAnestesico, operatorID, uf, hint, code).TableName
}
