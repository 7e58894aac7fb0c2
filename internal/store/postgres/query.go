package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// query assembles a statement with positional arguments.
type query struct {
	sb   strings.Builder
	args []any
}

func newQuery(base string) *query {
	q := &query{}
	q.sb.WriteString(base)
	return q
}

func (q *query) raw(s string) { q.sb.WriteString(s) }

// where appends " AND <cond>" with the next placeholder substituted for %s.
func (q *query) where(cond string, arg any) {
	q.args = append(q.args, arg)
	q.sb.WriteString(" AND ")
	q.sb.WriteString(fmt.Sprintf(cond, fmt.Sprintf("$%d", len(q.args))))
}

func (q *query) window(col string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.where(col+" >= %s", *opts.Since)
	}
	if opts.Until != nil {
		q.where(col+" <= %s", *opts.Until)
	}
}

func (q *query) page(opts domain.ListOpts) {
	if opts.Limit > 0 {
		q.args = append(q.args, opts.Limit)
		q.sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(q.args)))
	}
	if opts.Offset > 0 {
		q.args = append(q.args, opts.Offset)
		q.sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(q.args)))
	}
}

func (q *query) build() (string, []any) { return q.sb.String(), q.args }
