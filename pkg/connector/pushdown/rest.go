package pushdown

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
)

// RESTObject describes one remote list endpoint
type RESTObject struct {
	// Path is appended to the base URL. It may contain ${field} placeholders.
	Path string
	// IDField enables point lookups on "IDField = value" for string or integer
	// values; empty disables them.
	IDField string
	// Pushable lists the fields the endpoint accepts as equality filters
	Pushable []string
	// Unpaginated endpoints get neither page size nor cursor parameters
	Unpaginated bool
}

func (o RESTObject) pushable(field string) bool {
	for _, f := range o.Pushable {
		if f == field {
			return true
		}
	}
	return false
}

// RESTPlanner builds request URLs for a REST API
type RESTPlanner struct {
	BaseURL       string
	PageSize      int64
	PageSizeParam string
	CursorParam   string
}

// RESTPlan is the outcome of planning one REST scan
type RESTPlan struct {
	Object      RESTObject
	Endpoint    string
	Params      url.Values
	PageSize    int64
	PointLookup bool
	// MaxPages bounds the pagination loop; 0 means unbounded
	MaxPages int64
	// Empty is set when no rows were requested
	Empty bool
	// Consumed quals were substituted into the path
	Consumed []query.Qual
	// Unconsumed quals were not pushed and must be evaluated by the host
	Unconsumed []query.Qual

	pageSizeParam string
	cursorParam   string
}

// Plan plans a scan of obj
func (p *RESTPlanner) Plan(obj RESTObject, quals []query.Qual, limit *query.Limit) (*RESTPlan, error) {
	path := obj.Path
	var consumed []query.Qual
	if HasPlaceholders(path) {
		var err error
		path, consumed, err = ResolveTemplate(path, quals, func(c *models.Cell) string {
			return url.PathEscape(c.Text())
		})
		if err != nil {
			return nil, err
		}
	}

	plan := &RESTPlan{
		Object:        obj,
		Endpoint:      joinURL(p.BaseURL, path),
		Params:        url.Values{},
		PageSize:      p.PageSize,
		Consumed:      consumed,
		pageSizeParam: p.PageSizeParam,
		cursorParam:   p.CursorParam,
	}

	if limit != nil && limit.Count == 0 {
		plan.Empty = true
		return plan, nil
	}

	if id, ok := pointLookup(obj, quals); ok {
		plan.Endpoint = plan.Endpoint + "/" + url.PathEscape(id)
		plan.PointLookup = true
		plan.MaxPages = 1
		return plan, nil
	}

	for _, q := range quals {
		if isParam(consumed, q.Field) {
			continue
		}
		if v, ok := pushableValue(obj, q); ok {
			plan.Params.Add(q.Field, v)
			continue
		}
		plan.Unconsumed = append(plan.Unconsumed, q)
	}

	if obj.Unpaginated {
		plan.MaxPages = 1
	} else {
		plan.MaxPages = PageCeiling(limit, p.PageSize)
	}
	return plan, nil
}

// URL renders the request URL for the page at cursor
func (rp *RESTPlan) URL(cursor query.Cursor) string {
	if rp.PointLookup {
		return rp.Endpoint
	}
	params := url.Values{}
	for k, v := range rp.Params {
		params[k] = append([]string(nil), v...)
	}
	if !rp.Object.Unpaginated {
		if rp.pageSizeParam != "" && rp.PageSize > 0 {
			params.Set(rp.pageSizeParam, strconv.FormatInt(rp.PageSize, 10))
		}
		if rp.cursorParam != "" && !cursor.IsFirst() {
			params.Set(rp.cursorParam, cursor.String())
		}
	}
	if len(params) == 0 {
		return rp.Endpoint
	}
	return rp.Endpoint + "?" + params.Encode()
}

// pointLookup matches exactly one "id = <scalar>" qual. The id is the
// cell's text form, so integer ids address /object/7.
func pointLookup(obj RESTObject, quals []query.Qual) (string, bool) {
	if obj.IDField == "" || len(quals) != 1 {
		return "", false
	}
	q := quals[0]
	if q.Field != obj.IDField || !q.IsScalarEquality() {
		return "", false
	}
	switch q.Value.Cell.Type {
	case models.TypeString, models.TypeI16, models.TypeI32, models.TypeI64:
		return q.Value.Cell.Text(), true
	}
	return "", false
}

// pushableValue encodes an equality qual on a pushable field. Only bool and
// string values have a query-string form.
func pushableValue(obj RESTObject, q query.Qual) (string, bool) {
	if !obj.pushable(q.Field) || !q.IsScalarEquality() {
		return "", false
	}
	switch q.Value.Cell.Type {
	case models.TypeBool:
		return strconv.FormatBool(q.Value.Cell.Bool), true
	case models.TypeString:
		return q.Value.Cell.Str, true
	}
	return "", false
}

func joinURL(base, path string) string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return strings.TrimSuffix(base, "/")
	}
	return strings.TrimSuffix(base, "/") + "/" + path
}

// NotImplemented is the planning error for an unknown object name
func NotImplemented(obj string) error {
	return errors.Newf(errors.ErrorTypePlanning, "'%s' object is not implemented", obj).
		WithDetail("object", obj)
}
