package bunstore

import (
	"regexp"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-indexcache/repositorycache"
)

var orderColumn = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type orderBy struct {
	column string
	desc   bool
}

// parseOrder accepts "column", "column ASC" or "column DESC". The column is
// quoted when rendered, so no other SQL reaches the query.
func parseOrder(entries []string) ([]orderBy, error) {
	out := make([]orderBy, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Fields(entry)
		if len(parts) == 0 || len(parts) > 2 || !orderColumn.MatchString(parts[0]) {
			return nil, invalidOrder(entry)
		}
		o := orderBy{column: parts[0]}
		if len(parts) == 2 {
			switch strings.ToUpper(parts[1]) {
			case "ASC":
			case "DESC":
				o.desc = true
			default:
				return nil, invalidOrder(entry)
			}
		}
		out = append(out, o)
	}
	return out, nil
}

func (o orderBy) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if o.desc {
		return q.OrderExpr("? DESC", bun.Ident(o.column))
	}
	return q.OrderExpr("? ASC", bun.Ident(o.column))
}

// applyQuery adds the order, limit and offset of query to q.
func applyQuery(q *bun.SelectQuery, query repositorycache.Query) (*bun.SelectQuery, error) {
	orders, err := parseOrder(query.Order)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		q = o.apply(q)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	if query.Offset > 0 {
		q = q.Offset(query.Offset)
	}
	return q, nil
}

func invalidOrder(entry string) error {
	return goerrors.New("invalid order expression", goerrors.CategoryBadInput).
		WithMetadata(map[string]any{"order": entry})
}
