package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
)

// Response is one scripted answer
type Response struct {
	Status int
	Body   string
	Header map[string]string
}

// JSON builds a scripted response from v
func JSON(status int, v interface{}) Response {
	b, err := jsonpool.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Response{Status: status, Body: string(b)}
}

// RecordedRequest is a request the server received
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Form   url.Values
	Body   []byte
}

// PageServer is an HTTP fake that answers each "METHOD path" with a queue
// of scripted responses. The last response of a queue repeats; unscripted
// routes answer 404.
type PageServer struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string][]Response
	requests []RecordedRequest
}

// NewPageServer starts a server that is closed when the test ends
func NewPageServer(t *testing.T) *PageServer {
	t.Helper()
	s := &PageServer{routes: make(map[string][]Response)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// On scripts the responses for method and path
func (s *PageServer) On(method, path string, responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.routes[key] = append(s.routes[key], responses...)
}

// Requests returns the requests received so far
func (s *PageServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns the number of requests received
func (s *PageServer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *PageServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec := RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		rec.Form, _ = url.ParseQuery(string(body))
	}

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	key := r.Method + " " + r.URL.Path
	queue := s.routes[key]
	var resp Response
	switch len(queue) {
	case 0:
		resp = Response{Status: http.StatusNotFound, Body: `{"error":{"message":"no such route"}}`}
	case 1:
		resp = queue[0]
	default:
		resp = queue[0]
		s.routes[key] = queue[1:]
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp.Body)
}
