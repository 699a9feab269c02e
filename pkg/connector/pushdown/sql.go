package pushdown

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
)

// sqlOperators maps host operators onto their remote spelling. Quals with
// other operators stay local.
var sqlOperators = map[string]string{
	"=":      "=",
	"<>":     "<>",
	"!=":     "<>",
	"<":      "<",
	"<=":     "<=",
	">":      ">",
	">=":     ">=",
	"like":   "like",
	"~~":     "like",
	"!~~":    "not like",
	"ilike":  "ilike",
	"~~*":    "ilike",
	"!~~*":   "not ilike",
	"is":     "is",
	"is not": "is not",
}

// literalEscaper escapes the characters that end or escape a quoted
// ClickHouse string: a backslash is doubled, as is a single quote.
var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `''`)

// Literal renders a cell as a ClickHouse SQL literal. Strings, dates,
// timestamps and json are single-quoted with backslashes and quotes
// escaped; an absent cell is null.
func Literal(c *models.Cell) string {
	if c == nil {
		return "null"
	}
	switch c.Type {
	case models.TypeString:
		return quoteLiteral(c.Str)
	case models.TypeDate:
		return quoteLiteral(c.Time.Format(models.DateLayout))
	case models.TypeTimestamp:
		return quoteLiteral(c.Time.Format(models.TimestampLayout))
	case models.TypeJSON:
		return quoteLiteral(string(c.JSON))
	}
	return c.Text()
}

func quoteLiteral(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}

// SQLPlan is a deparsed remote query
type SQLPlan struct {
	SQL string
	// Params are quals consumed by ${field} placeholders in the table
	Params []query.Qual
	// Targets are the columns selected remotely
	Targets []string
	// Unconsumed quals could not be expressed remotely
	Unconsumed []query.Qual
	Empty      bool
}

// DeparseSQL builds "select .. from .. where .. order by .. limit .." for
// table. The table may be a parenthesised sub-query with ${field}
// placeholders; those fields are consumed and excluded from the target list
// and the where clause. The offset is never sent, only the limit ceiling.
func DeparseSQL(table string, quals []query.Qual, columns []models.Column, sorts []query.Sort, limit *query.Limit) (*SQLPlan, error) {
	if strings.TrimSpace(table) == "" {
		return nil, errors.New(errors.ErrorTypePlanning, "table is required")
	}

	plan := &SQLPlan{Empty: limit != nil && limit.Count == 0}

	if HasPlaceholders(table) {
		var err error
		table, plan.Params, err = ResolveTemplate(table, quals, Literal)
		if err != nil {
			return nil, err
		}
	}

	for _, col := range columns {
		if !isParam(plan.Params, col.Name) {
			plan.Targets = append(plan.Targets, col.Name)
		}
	}
	targets := "*"
	if len(plan.Targets) > 0 {
		targets = strings.Join(plan.Targets, ", ")
	}

	var b strings.Builder
	b.WriteString("select ")
	b.WriteString(targets)
	b.WriteString(" from ")
	b.WriteString(table)

	var conds []string
	for _, q := range quals {
		if isParam(plan.Params, q.Field) {
			continue
		}
		op, ok := sqlOperators[strings.ToLower(q.Operator)]
		if !ok {
			plan.Unconsumed = append(plan.Unconsumed, q)
			continue
		}
		q.Operator = op
		cond, err := q.DeparseWith(Literal)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypePlanning, "malformed predicate").
				WithDetail("field", q.Field)
		}
		conds = append(conds, cond)
	}
	if len(conds) > 0 {
		b.WriteString(" where ")
		b.WriteString(strings.Join(conds, " and "))
	}

	if len(sorts) > 0 {
		keys := make([]string, len(sorts))
		for i, s := range sorts {
			keys[i] = s.Deparse()
		}
		b.WriteString(" order by ")
		b.WriteString(strings.Join(keys, ", "))
	}

	if limit != nil {
		b.WriteString(" limit ")
		b.WriteString(strconv.FormatInt(limit.Ceiling(), 10))
	}

	plan.SQL = b.String()
	return plan, nil
}
