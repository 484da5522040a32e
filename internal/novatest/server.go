// Package novatest runs an in-memory stand-in for the NovaDB CMS and Index
// APIs. It implements enough of both surfaces for the client and tool tests:
// objects with cursor paging, branches, comments, jobs with artifacts,
// chunked uploads with single-use tokens, files, code generation and a
// naive index search.
package novatest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"pkt.systems/pslog"
)

const (
	// CMSPrefix and IndexPrefix are the API roots served by Server.
	CMSPrefix   = "/apis/cms/v1"
	IndexPrefix = "/apis/index/v1"

	// BranchTypeRef is the type assigned to branch objects.
	BranchTypeRef = 40
)

// Credentials used by Start unless overridden.
const (
	DefaultCMSUser       = "cms-user"
	DefaultCMSPassword   = "cms-secret"
	DefaultIndexUser     = "index-user"
	DefaultIndexPassword = "index-secret"
)

// Request is a recorded inbound request.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Server is a running fake NovaDB.
type Server struct {
	srv    *httptest.Server
	logger pslog.Logger

	cmsUser, cmsPassword     string
	indexUser, indexPassword string

	mu       sync.Mutex
	nextID   int64
	tokenSeq int64
	objects  map[int64]*object
	comments map[int64]*comment
	jobs     map[int64]*job
	uploads  map[string]*upload
	files    map[string]storedFile
	requests []Request
	failures []failure
}

type failure struct {
	suffix    string
	status    int
	body      string
	remaining int
}

// Option customises Start.
type Option func(*Server)

// WithCMSCredentials overrides the accepted CMS credentials.
func WithCMSCredentials(user, password string) Option {
	return func(s *Server) { s.cmsUser, s.cmsPassword = user, password }
}

// WithIndexCredentials overrides the accepted Index credentials.
func WithIndexCredentials(user, password string) Option {
	return func(s *Server) { s.indexUser, s.indexPassword = user, password }
}

// WithLogger routes server logs to logger.
func WithLogger(logger pslog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New starts a server. Call Close when done.
func New(opts ...Option) *Server {
	s := &Server{
		logger:        pslog.NoopLogger(),
		cmsUser:       DefaultCMSUser,
		cmsPassword:   DefaultCMSPassword,
		indexUser:     DefaultIndexUser,
		indexPassword: DefaultIndexPassword,
		nextID:        100000,
		objects:       make(map[int64]*object),
		comments:      make(map[int64]*comment),
		jobs:          make(map[int64]*job),
		uploads:       make(map[string]*upload),
		files:         make(map[string]storedFile),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(s.routes())
	return s
}

// Start is New plus a Close registered on t's cleanup, logging through t.
func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(NewTestingLogger(t, pslog.InfoLevel))}, opts...)
	s := New(opts...)
	t.Cleanup(s.Close)
	return s
}

// Close stops the server.
func (s *Server) Close() {
	if s == nil || s.srv == nil {
		return
	}
	s.srv.Close()
}

// URL returns the server root (scheme://host:port).
func (s *Server) URL() string { return s.srv.URL }

// CMSBaseURL returns the CMS API root.
func (s *Server) CMSBaseURL() string { return s.srv.URL + CMSPrefix }

// IndexBaseURL returns the Index API root.
func (s *Server) IndexBaseURL() string { return s.srv.URL + IndexPrefix }

// HTTPClient returns a client wired to the server.
func (s *Server) HTTPClient() *http.Client { return s.srv.Client() }

// CMSCredentials returns the accepted CMS credentials.
func (s *Server) CMSCredentials() (string, string) { return s.cmsUser, s.cmsPassword }

// IndexCredentials returns the accepted Index credentials.
func (s *Server) IndexCredentials() (string, string) { return s.indexUser, s.indexPassword }

// Requests returns a copy of every recorded request.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns how many requests reached the server.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// LastRequest returns the most recent request.
func (s *Server) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// FailNext makes the next n requests whose path ends with suffix fail with
// status and body.
func (s *Server) FailNext(suffix string, status, n int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{suffix: suffix, status: status, body: body, remaining: n})
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	s.registerObjects(mux)
	s.registerBranches(mux)
	s.registerComments(mux)
	s.registerJobs(mux)
	s.registerUploads(mux)
	s.registerIndex(mux)
	return s.middleware(mux)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		s.record(r, body)
		s.logger.Debug("novatest.request", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery)

		user, password, ok := r.BasicAuth()
		switch {
		case strings.HasPrefix(r.URL.Path, CMSPrefix):
			if !ok || user != s.cmsUser || password != s.cmsPassword {
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
		case strings.HasPrefix(r.URL.Path, IndexPrefix):
			if !ok || user != s.indexUser || password != s.indexPassword {
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
		default:
			writeError(w, http.StatusNotFound, "unknown api root")
			return
		}
		if status, msg, fail := s.injectedFailure(r.URL.Path); fail {
			writeError(w, status, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) record(r *http.Request, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     body,
	})
}

func (s *Server) injectedFailure(path string) (int, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.failures {
		f := &s.failures[i]
		if f.remaining > 0 && strings.HasSuffix(path, f.suffix) {
			f.remaining--
			return f.status, f.body, true
		}
	}
	return 0, "", false
}

func (s *Server) allocID() int64 {
	s.nextID++
	return s.nextID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"title":  http.StatusText(status),
		"detail": detail,
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}
