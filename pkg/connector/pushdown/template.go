// Package pushdown translates quals, sorts and limits into remote-native
// requests: query-string URLs for REST connectors and SQL text for SQL
// connectors.
package pushdown

import (
	"regexp"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
)

var placeholderRe = regexp.MustCompile(`\$\{(\w+)\}`)

// HasPlaceholders reports whether s contains ${field} placeholders
func HasPlaceholders(s string) bool {
	return placeholderRe.MatchString(s)
}

// ResolveTemplate substitutes every ${field} placeholder in tmpl with the
// value of the first qual on that field, rendered by render. The quals
// used are returned as consumed params, once each, in placeholder order.
func ResolveTemplate(tmpl string, quals []query.Qual, render func(*models.Cell) string) (string, []query.Qual, error) {
	var (
		params  []query.Qual
		planErr error
	)

	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		if planErr != nil {
			return m
		}
		field := placeholderRe.FindStringSubmatch(m)[1]
		q, ok := findQual(quals, field)
		if !ok {
			planErr = errors.Newf(errors.ErrorTypePlanning, "unmatched query parameter: %s", field).
				WithDetail("field", field)
			return m
		}
		if q.Value.IsArray() || q.Value.Cell == nil {
			planErr = errors.Newf(errors.ErrorTypePlanning, "invalid query parameter: %s", field).
				WithDetail("field", field)
			return m
		}
		if _, seen := findQual(params, field); !seen {
			params = append(params, q)
		}
		return render(q.Value.Cell)
	})
	if planErr != nil {
		return "", nil, planErr
	}
	return out, params, nil
}

// EchoParams overwrites row cells for columns that were consumed as
// template params with the param's value, since the remote never returns
// them.
func EchoParams(row *models.Row, params []query.Qual, columns []models.Column) {
	for _, col := range columns {
		if q, ok := findQual(params, col.Name); ok && !q.Value.IsArray() {
			row.Push(col.Name, q.Value.Cell.Clone())
		}
	}
}

func findQual(quals []query.Qual, field string) (query.Qual, bool) {
	for _, q := range quals {
		if q.Field == field {
			return q, true
		}
	}
	return query.Qual{}, false
}

func isParam(params []query.Qual, field string) bool {
	_, ok := findQual(params, field)
	return ok
}

// PageCeiling returns the maximum number of pages a limit can require,
// (offset+count)/pageSize+1, or 0 for no bound.
func PageCeiling(limit *query.Limit, pageSize int64) int64 {
	if limit == nil || pageSize <= 0 {
		return 0
	}
	return limit.Ceiling()/pageSize + 1
}
