package base

import (
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/connector/pagination"
	"github.com/ajitpratap0/remotescan/pkg/models"
	"github.com/ajitpratap0/remotescan/pkg/query"
)

// SessionState is the lifecycle state of a scan session
type SessionState int

const (
	StateNew SessionState = iota
	StateOpened
	StateFetching
	StateBuffered
	StateDraining
	StateClosed
)

// String returns the state name
func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOpened:
		return "opened"
	case StateFetching:
		return "fetching"
	case StateBuffered:
		return "buffered"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ScanSession holds the state of one scan: the resolved object, the row
// buffer and the request counter. Rows are drained in arrival order, one
// per Next call. A closed session is not reusable.
type ScanSession struct {
	id        string
	connector string
	object    string
	state     SessionState

	buffer []*models.Row
	cursor query.Cursor

	requests int64
	rowsIn   int64
	rowsOut  int64
	bytesIn  int64

	logger *zap.Logger
}

// NewScanSession creates a session in the New state
func NewScanSession(connector string, logger *zap.Logger) *ScanSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &ScanSession{
		id:        id,
		connector: connector,
		state:     StateNew,
		logger:    logger.With(zap.String("scan_id", id)),
	}
}

// ID returns the session id
func (s *ScanSession) ID() string { return s.id }

// Object returns the resolved object id, or "" when unconfigured
func (s *ScanSession) Object() string { return s.object }

// State returns the current state
func (s *ScanSession) State() SessionState { return s.state }

// Open binds the session to object. An empty object leaves the session
// unconfigured: it moves straight to Closed and yields no rows.
func (s *ScanSession) Open(object string) bool {
	if s.state != StateNew {
		return s.Configured() && s.state != StateClosed
	}
	if object == "" {
		s.logger.Warn("scan is not configured, returning no rows")
		s.state = StateClosed
		return false
	}
	s.object = object
	s.state = StateOpened
	s.logger = s.logger.With(zap.String("object", object))
	return true
}

// Configured reports whether the session was bound to an object
func (s *ScanSession) Configured() bool { return s.object != "" }

// BeginFetch moves an opened session to Fetching
func (s *ScanSession) BeginFetch() bool {
	if s.state != StateOpened {
		return false
	}
	s.state = StateFetching
	return true
}

// Fill buffers a pagination result and moves the session to Buffered
func (s *ScanSession) Fill(res *pagination.Result) {
	if s.state == StateClosed {
		return
	}
	if res != nil {
		s.buffer = append(s.buffer, res.Rows...)
		atomic.AddInt64(&s.requests, int64(res.Requests))
		atomic.AddInt64(&s.rowsIn, int64(len(res.Rows)))
		atomic.AddInt64(&s.bytesIn, res.Bytes)
	}
	s.state = StateBuffered
}

// Requests returns the number of remote requests made
func (s *ScanSession) Requests() int64 { return atomic.LoadInt64(&s.requests) }

// Cursor returns the position of the most recently requested page; the
// zero cursor means the scan is still on its first page
func (s *ScanSession) Cursor() query.Cursor { return s.cursor }

// SetCursor records the position of the next page
func (s *ScanSession) SetCursor(c query.Cursor) { s.cursor = c }

// Next removes and returns the first buffered row. ok is false once the
// buffer is empty or the session is closed.
func (s *ScanSession) Next() (*models.Row, bool) {
	switch s.state {
	case StateBuffered:
		s.state = StateDraining
	case StateDraining:
	default:
		return nil, false
	}
	if len(s.buffer) == 0 {
		return nil, false
	}
	row := s.buffer[0]
	s.buffer[0] = nil
	s.buffer = s.buffer[1:]
	atomic.AddInt64(&s.rowsOut, 1)
	return row, true
}

// Buffered returns the number of rows not yet drained
func (s *ScanSession) Buffered() int { return len(s.buffer) }

// Counters returns rows fetched, rows returned and bytes received
func (s *ScanSession) Counters() (rowsIn, rowsOut, bytesIn int64) {
	return atomic.LoadInt64(&s.rowsIn), atomic.LoadInt64(&s.rowsOut), atomic.LoadInt64(&s.bytesIn)
}

// Close discards the buffer. It is safe to call more than once.
func (s *ScanSession) Close() {
	if s.state != StateClosed && len(s.buffer) > 0 {
		s.logger.Debug("discarding undrained rows", zap.Int("rows", len(s.buffer)))
	}
	s.buffer = nil
	s.state = StateClosed
}
