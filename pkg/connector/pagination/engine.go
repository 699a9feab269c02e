// Package pagination drives the page loop of a remote scan: it fetches pages
// until a termination condition fires, advancing the cursor between pages
// according to the connector's cursor policy.
//
// Termination is checked in this order:
//
//  1. no rows were requested (before any fetch)
//  2. the remote answered not-found (a point lookup on a missing id)
//  3. the page carried a has-more flag set to false
//  4. the page was empty
//  5. the page ceiling derived from the limit was reached
//
// A fetch error aborts the scan and discards every row gathered so far.
package pagination

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/logger"
	"github.com/ajitpratap0/remotescan/pkg/metrics"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
)

const tracerName = "github.com/ajitpratap0/remotescan/pkg/connector/pagination"

// CursorPolicy selects where the next page's cursor comes from
type CursorPolicy int

const (
	// CursorFromServer uses the token the server returned with the page
	CursorFromServer CursorPolicy = iota
	// CursorFromLastRow uses a value derived from the page's last record
	CursorFromLastRow
	// CursorPreferServer uses the server token when present, else the last row
	CursorPreferServer
	// SinglePage never requests a second page
	SinglePage
)

// String returns the policy name
func (p CursorPolicy) String() string {
	switch p {
	case CursorFromServer:
		return "server"
	case CursorFromLastRow:
		return "last_row"
	case CursorPreferServer:
		return "prefer_server"
	case SinglePage:
		return "single_page"
	}
	return "unknown"
}

// StopReason records why the loop ended
type StopReason string

const (
	StopZeroLimit      StopReason = "zero_limit"
	StopNotFound       StopReason = "not_found"
	StopNoMore         StopReason = "no_more"
	StopEmptyPage      StopReason = "empty_page"
	StopPageCeiling    StopReason = "page_ceiling"
	StopSinglePage     StopReason = "single_page"
	StopNoCursor       StopReason = "no_cursor"
	StopRepeatedCursor StopReason = "repeated_cursor"
)

// Page is one decoded remote page
type Page struct {
	Rows []*models.Row
	// HasMore is the remote's has-more flag, nil when the remote sent none
	HasMore *bool
	// ServerCursor is the next-page token returned by the server
	ServerCursor string
	// LastRowCursor is the cursor derived from the last record
	LastRowCursor string
	// NotFound marks a not-found answer that should end the scan empty
	NotFound bool
	Bytes    int64
}

// Fetcher fetches the page at cursor. page counts from 0.
type Fetcher interface {
	Fetch(ctx context.Context, cursor query.Cursor, page int) (*Page, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, cursor query.Cursor, page int) (*Page, error)

// Fetch calls f
func (f FetcherFunc) Fetch(ctx context.Context, cursor query.Cursor, page int) (*Page, error) {
	return f(ctx, cursor, page)
}

// Config configures one pagination run
type Config struct {
	Connector string
	Object    string
	Policy    CursorPolicy
	// MaxPages bounds the number of pages; 0 means unbounded
	MaxPages int64
	// Empty short-circuits the run before the first fetch
	Empty bool
	// StopWithoutHasMore ends the loop when a page carries no has-more flag
	StopWithoutHasMore bool
	// OnCursor, when set, receives the cursor of every page after the first
	// before that page is fetched
	OnCursor func(query.Cursor)
}

// Result is the outcome of a successful run
type Result struct {
	Rows     []*models.Row
	Pages    int
	Requests int
	Bytes    int64
	Reason   StopReason
}

// Engine runs the page loop
type Engine struct {
	config Config
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates an engine
func New(config Config, log *zap.Logger) *Engine {
	if log == nil {
		log = logger.Get()
	}
	return &Engine{
		config: config,
		logger: log.With(zap.String("component", "pagination")),
		tracer: otel.Tracer(tracerName),
	}
}

// Run fetches pages until a termination condition fires
func (e *Engine) Run(ctx context.Context, f Fetcher) (*Result, error) {
	res := &Result{}
	if e.config.Empty {
		res.Reason = StopZeroLimit
		return res, nil
	}

	log := logger.FromContext(ctx, e.logger)
	ctx, span := e.tracer.Start(ctx, "remotescan.scan", trace.WithAttributes(
		attribute.String("connector", e.config.Connector),
		attribute.String("object", e.config.Object),
		attribute.String("cursor_policy", e.config.Policy.String()),
	))
	defer span.End()

	timer := metrics.NewTimer()
	defer func() {
		metrics.ScanDuration.WithLabelValues(e.config.Connector).Observe(timer.Elapsed().Seconds())
	}()

	cursor := query.Cursor{}
	seen := make(map[string]struct{})

	for {
		if e.config.MaxPages > 0 && int64(res.Pages) >= e.config.MaxPages {
			res.Reason = StopPageCeiling
			break
		}

		page, err := e.fetch(ctx, f, cursor, res.Pages)
		res.Requests++
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "page fetch failed")
			log.Error("scan aborted",
				zap.Int("page", res.Pages+1),
				zap.Int("discarded_rows", len(res.Rows)),
				zap.Error(err))
			return nil, errors.Wrap(err, errors.ErrorTypeTransport, fmt.Sprintf("fetch page %d", res.Pages+1))
		}
		res.Pages++
		res.Bytes += page.Bytes
		metrics.PagesFetched.WithLabelValues(e.config.Connector).Inc()

		if page.NotFound {
			res.Reason = StopNotFound
			break
		}

		res.Rows = append(res.Rows, page.Rows...)

		if page.HasMore != nil && !*page.HasMore {
			res.Reason = StopNoMore
			break
		}
		if len(page.Rows) == 0 {
			res.Reason = StopEmptyPage
			break
		}
		if page.HasMore == nil && e.config.StopWithoutHasMore {
			res.Reason = StopNoMore
			break
		}

		token, reason := e.nextCursor(page)
		if reason != "" {
			res.Reason = reason
			break
		}
		if _, dup := seen[token]; dup {
			log.Warn("remote returned a cursor it already returned, stopping",
				zap.String("cursor", token),
				zap.Int("pages", res.Pages))
			res.Reason = StopRepeatedCursor
			break
		}
		seen[token] = struct{}{}
		cursor = query.TokenCursor(token)
		if e.config.OnCursor != nil {
			e.config.OnCursor(cursor)
		}
	}

	span.SetAttributes(
		attribute.Int("pages", res.Pages),
		attribute.Int("rows", len(res.Rows)),
		attribute.String("stop_reason", string(res.Reason)),
	)
	log.Debug("scan fetched",
		zap.Int("pages", res.Pages),
		zap.Int("rows", len(res.Rows)),
		zap.String("stop_reason", string(res.Reason)))
	return res, nil
}

func (e *Engine) fetch(ctx context.Context, f Fetcher, cursor query.Cursor, n int) (*Page, error) {
	ctx, span := e.tracer.Start(ctx, "remotescan.page", trace.WithAttributes(
		attribute.Int("page", n+1),
		attribute.String("cursor", cursor.String()),
	))
	defer span.End()

	page, err := f.Fetch(ctx, cursor, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if page == nil {
		page = &Page{}
	}
	span.SetAttributes(attribute.Int("rows", len(page.Rows)))
	return page, nil
}

// nextCursor applies the cursor policy. A non-empty reason ends the loop.
func (e *Engine) nextCursor(page *Page) (string, StopReason) {
	var token string
	switch e.config.Policy {
	case SinglePage:
		return "", StopSinglePage
	case CursorFromServer:
		token = page.ServerCursor
	case CursorFromLastRow:
		token = page.LastRowCursor
	case CursorPreferServer:
		token = page.ServerCursor
		if token == "" {
			token = page.LastRowCursor
		}
	}
	if token == "" {
		return "", StopNoCursor
	}
	return token, ""
}
